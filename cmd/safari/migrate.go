package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/engine"
	contract "github.com/celerix-dev/safari/pkg/engine"
)

var (
	fromOpts engine.Options
	toOpts   engine.Options
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy every action item from one local backend to another",
	Long: `migrate opens two local backends and copies all items, oldest first,
keeping their ids and timestamps. Items already present in the destination
are overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		toOpts.Universe = fromOpts.Universe

		n, err := migrateBackends(cmd.Context(), engine.Open, fromOpts, toOpts)
		if err != nil {
			return err
		}

		logger.Info("migration finished", zap.Int("items", n))
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d items\n", n)
		return nil
	},
}

type openFunc func(ctx context.Context, opts engine.Options) (contract.Backend, error)

// migrateBackends copies every item from one backend into another. Both are
// closed exactly once; the destination's Close error is returned because
// that is where its writes are flushed.
func migrateBackends(ctx context.Context, open openFunc, from, to engine.Options) (n int, err error) {
	src, err := open(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := open(ctx, to)
	if err != nil {
		return 0, fmt.Errorf("open destination: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("flush destination: %w", cerr)
		}
	}()

	importer, ok := dst.(contract.Importer)
	if !ok {
		return 0, fmt.Errorf("%w: destination driver %q cannot import", contract.ErrInvalidInput, to.Driver)
	}

	n, err = engine.Migrate(ctx, src, importer)
	if err != nil {
		return n, fmt.Errorf("migrated %d items before failing: %w", n, err)
	}
	return n, nil
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&fromOpts.Driver, "from-driver", engine.DriverMemory, "source driver: memory, sqlite or postgres")
	f.StringVar(&fromOpts.DataDir, "from-data-dir", "", "source data directory")
	f.StringVar(&fromOpts.DSN, "from-dsn", "", "source dsn")
	f.StringVar(&toOpts.Driver, "to-driver", engine.DriverSQLite, "destination driver: memory, sqlite or postgres")
	f.StringVar(&toOpts.DataDir, "to-data-dir", "", "destination data directory")
	f.StringVar(&toOpts.DSN, "to-dsn", "", "destination dsn")
	f.StringVar(&fromOpts.Universe, "universe", contract.DefaultUniverse, "partition to copy")
}
