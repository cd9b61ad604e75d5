package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/safari/internal/board"
	"github.com/celerix-dev/safari/internal/view"
	"github.com/celerix-dev/safari/pkg/schema"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the store port answers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer client.Close()

		if err := client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "PONG")
		return nil
	},
}

var (
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent action items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer client.Close()

		snap, err := board.NewService(client, logger).ListWithStats(ctx, listLimit)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd, snap.Items)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBUILDING\tCREATED\tBY\tNOTE\tSTATUS")
		for _, item := range snap.Items {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				item.ID, item.Building, view.FormatPST(&item.TimeCreated),
				actorLabel(item.Creator), item.CreatorNote, status(item))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d  Complete: %d  Incomplete: %d\n",
			snap.Stats.Total, snap.Stats.Complete, snap.Stats.Incomplete)
		return nil
	},
}

var (
	createBuilding string
	createNote     string
	noteFlag       string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an action item",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer client.Close()

		item, err := board.NewService(client, logger).CreateItem(ctx, createBuilding, createNote, nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, item)
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark an action item as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, ctx, cancel, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer client.Close()

		item, err := board.NewService(client, logger).CompleteItem(ctx, args[0], noteFlag, nil)
		if err != nil {
			return err
		}
		return printJSON(cmd, item)
	},
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", board.DefaultFetchLimit, "maximum number of items to fetch")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print items as JSON")

	createCmd.Flags().StringVar(&createBuilding, "building", "", "building number")
	createCmd.Flags().StringVar(&createNote, "note", "", "creator note")
	_ = createCmd.MarkFlagRequired("building")

	completeCmd.Flags().StringVar(&noteFlag, "note", "", "completer note")
}

func actorLabel(a *schema.Actor) string {
	if a == nil {
		return "anonymous"
	}
	if a.Email != "" {
		return a.Email
	}
	return a.ID
}

func status(item schema.ActionItem) string {
	if !item.Completed {
		return "open"
	}
	return "done " + view.FormatPST(item.TimeCompleted)
}
