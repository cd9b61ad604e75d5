package sdk

import (
	"context"

	"go.uber.org/zap"

	local "github.com/celerix-dev/safari/internal/engine"
	"github.com/celerix-dev/safari/pkg/engine"
)

// Options chooses between a remote store and a local backend.
type Options struct {
	// RemoteAddr, when set, selects the remote store at that address.
	RemoteAddr string
	TLS        bool
	// Local configures the embedded backend used when RemoteAddr is empty.
	Local  local.Options
	Logger *zap.Logger
}

// New returns the configured store. Callers see the same engine.Backend
// whether the items live in this process or behind a safarid store port.
// A configured but unreachable remote is an error; there is no silent
// fallback to local data.
func New(ctx context.Context, opts Options) (engine.Backend, error) {
	if opts.RemoteAddr != "" {
		client, err := Connect(ctx, opts.RemoteAddr, opts.TLS, opts.Logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return local.Open(ctx, opts.Local)
}
