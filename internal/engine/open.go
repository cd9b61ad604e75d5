package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/celerix-dev/safari/pkg/engine"
)

// DriverMemory keeps items in memory with JSON snapshots under DataDir.
const DriverMemory = "memory"

// Options selects and configures a local backend.
type Options struct {
	Driver   string
	DataDir  string
	DSN      string
	Universe string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (engine.Backend, error) {
	switch opts.Driver {
	case DriverMemory, "":
		if opts.DataDir == "" {
			return NewMemStore(opts.Universe, Snapshot{}, nil), nil
		}
		p, err := NewPersistence(opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrStoreUnavailable, err)
		}
		universe := opts.Universe
		if universe == "" {
			universe = engine.DefaultUniverse
		}
		snap, err := p.Load(universe)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", universe, err)
		}
		return NewMemStore(universe, snap, p), nil

	case DriverSQLite:
		dsn := opts.DSN
		if dsn == "" {
			if opts.DataDir != "" {
				if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
					return nil, fmt.Errorf("%w: %v", engine.ErrStoreUnavailable, err)
				}
			}
			dsn = filepath.Join(opts.DataDir, "safari.db")
		}
		return OpenSQL(ctx, DriverSQLite, dsn, opts.Universe)

	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("%w: postgres driver requires a dsn", engine.ErrInvalidInput)
		}
		return OpenSQL(ctx, DriverPostgres, opts.DSN, opts.Universe)
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", engine.ErrInvalidInput, opts.Driver)
}
