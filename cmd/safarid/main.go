// Command safarid serves the Safari action item board.
//
// It runs the HTTP board and, when store.listen_addr is set, exposes its
// Item Store on a TCP port for the safari CLI and other safarid instances.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/celerix-dev/safari/internal/api"
	"github.com/celerix-dev/safari/internal/board"
	"github.com/celerix-dev/safari/internal/config"
	"github.com/celerix-dev/safari/internal/engine"
	"github.com/celerix-dev/safari/internal/identity"
	"github.com/celerix-dev/safari/internal/logging"
	"github.com/celerix-dev/safari/internal/server"
	"github.com/celerix-dev/safari/internal/vault"
	"github.com/celerix-dev/safari/internal/view"
	"github.com/celerix-dev/safari/pkg/sdk"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "safarid",
	Short:        "Safari action item board daemon",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("SAFARI_CONFIG"), "path to a YAML config file (env SAFARI_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sdk.New(ctx, sdk.Options{
		RemoteAddr: cfg.Store.RemoteAddr,
		TLS:        cfg.Store.TLS,
		Local: engine.Options{
			Driver:   cfg.Store.Driver,
			DataDir:  cfg.Store.DataDir,
			DSN:      cfg.Store.DSN,
			Universe: cfg.Store.Universe,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		logger.Info("finalizing store writes")
		if err := store.Close(); err != nil {
			logger.Error("store close failed", zap.Error(err))
		}
	}()
	logger.Info("store ready",
		zap.String("driver", cfg.Store.Driver),
		zap.String("remote_addr", cfg.Store.RemoteAddr),
		zap.String("universe", cfg.Store.Universe))

	provider, err := newIdentity(cfg.Identity, logger)
	if err != nil {
		return err
	}

	views, err := view.NewRenderer(cfg.Board.PollInterval)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler := &api.Handler{
		Board:      board.NewService(store, logger),
		Identity:   provider,
		Views:      views,
		Metrics:    api.NewMetrics(),
		Logger:     logger,
		FetchLimit: cfg.Board.FetchLimit,
	}

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http board listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var storePort *server.Router
	if cfg.Store.ListenAddr != "" {
		storePort = server.NewRouter(store, logger)
		if cfg.Store.TLS {
			cert, err := vault.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("generate store certificate: %w", err)
			}
			storePort.SetCertificate(cert)
		} else {
			logger.Warn("store port TLS disabled")
		}
		go func() {
			if err := storePort.Listen(cfg.Store.ListenAddr); err != nil {
				errCh <- fmt.Errorf("store port: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if storePort != nil {
		if err := storePort.Stop(); err != nil {
			logger.Debug("store port stop", zap.Error(err))
		}
	}
	return runErr
}

func newIdentity(cfg config.IdentityConfig, logger *zap.Logger) (identity.Provider, error) {
	if cfg.Mode == "header" {
		return &identity.HeaderProvider{
			UserHeader:    cfg.UserHeader,
			EmailHeader:   cfg.EmailHeader,
			LoginPattern:  cfg.LoginURL,
			LogoutPattern: cfg.LogoutURL,
		}, nil
	}

	var key []byte
	if cfg.SessionKey != "" {
		var err error
		if key, err = hex.DecodeString(cfg.SessionKey); err != nil {
			return nil, fmt.Errorf("decode session key: %w", err)
		}
	} else {
		var err error
		if key, err = vault.NewKey(); err != nil {
			return nil, err
		}
		logger.Warn("identity.session_key not set; sessions will not survive a restart")
	}
	return identity.NewSessionProvider(key, cfg.CookieName, logger)
}
