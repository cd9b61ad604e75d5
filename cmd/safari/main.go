// Command safari talks to a safarid store port from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/config"
	"github.com/celerix-dev/safari/internal/logging"
	"github.com/celerix-dev/safari/pkg/sdk"
)

const defaultAddr = "localhost:7001"

var (
	storeAddr string
	useTLS    bool
	timeout   time.Duration
	verbose   bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "safari",
	Short: "Command line client for the Safari action item board",
	Long: `safari reads and writes action items through a running safarid's store port.
The migrate subcommand works directly on local backends instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		l, err := logging.New(config.LogConfig{Level: level, Format: "console"})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync(logger)
	},
}

func init() {
	addr := os.Getenv("SAFARI_STORE_REMOTE_ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	rootCmd.PersistentFlags().StringVar(&storeAddr, "addr", addr, "address of the safarid store port (env SAFARI_STORE_REMOTE_ADDR)")
	rootCmd.PersistentFlags().BoolVar(&useTLS, "tls", os.Getenv("SAFARI_STORE_TLS") != "false", "use TLS for the store port (env SAFARI_STORE_TLS)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(pingCmd, listCmd, createCmd, completeCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect dials the store port named by the root flags.
func connect(cmd *cobra.Command) (*sdk.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	client, err := sdk.Connect(ctx, storeAddr, useTLS, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect to %s: %w", storeAddr, err)
	}
	return client, ctx, cancel, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
