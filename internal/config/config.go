// Package config provides configuration loading for the Safari board.
//
// Values come from an optional YAML file and SAFARI_* environment variables,
// with environment taking precedence. Configuration is read once at startup
// and treated as read-only afterwards.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "SAFARI_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Config holds the complete daemon configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Identity IdentityConfig `koanf:"identity"`
	Board    BoardConfig    `koanf:"board"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPAddr        string        `koanf:"http_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig selects the Item Store backend.
type StoreConfig struct {
	Driver     string `koanf:"driver"`      // memory, sqlite, postgres
	DataDir    string `koanf:"data_dir"`    // snapshot dir for memory, default location for sqlite
	DSN        string `koanf:"dsn"`         // sqlite path or postgres url
	RemoteAddr string `koanf:"remote_addr"` // use a remote safarid store instead of a local backend
	ListenAddr string `koanf:"listen_addr"` // expose the store over TCP; empty disables
	TLS        bool   `koanf:"tls"`
	Universe   string `koanf:"universe"`
}

// IdentityConfig configures how the current actor is resolved.
type IdentityConfig struct {
	Mode        string `koanf:"mode"` // session or header
	SessionKey  string `koanf:"session_key"`
	CookieName  string `koanf:"cookie_name"`
	UserHeader  string `koanf:"user_header"`
	EmailHeader string `koanf:"email_header"`
	LoginURL    string `koanf:"login_url"`
	LogoutURL   string `koanf:"logout_url"`
}

// BoardConfig holds presentation settings.
type BoardConfig struct {
	FetchLimit   int           `koanf:"fetch_limit"`
	PollInterval time.Duration `koanf:"poll_interval"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:   "memory",
			DataDir:  "./data",
			TLS:      true,
			Universe: "universe",
		},
		Identity: IdentityConfig{
			Mode:        "session",
			CookieName:  "safari_session",
			UserHeader:  "X-Forwarded-User",
			EmailHeader: "X-Forwarded-Email",
		},
		Board: BoardConfig{
			FetchLimit:   1000,
			PollInterval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from path (optional, may be empty) and the environment.
//
// Environment variables map onto keys by stripping SAFARI_, lower-casing, and
// splitting section from field at the first underscore:
//
//	SAFARI_STORE_DRIVER      -> store.driver
//	SAFARI_SERVER_HTTP_ADDR  -> server.http_addr
//	SAFARI_IDENTITY_MODE     -> identity.mode
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	if c.Store.RemoteAddr == "" {
		switch c.Store.Driver {
		case "memory", "sqlite":
		case "postgres":
			if c.Store.DSN == "" {
				errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
			}
		default:
			errs = append(errs, fmt.Errorf("store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver))
		}
	}
	if c.Store.Universe == "" {
		errs = append(errs, errors.New("store.universe is required"))
	}

	switch c.Identity.Mode {
	case "session":
		if c.Identity.SessionKey != "" {
			key, err := hex.DecodeString(c.Identity.SessionKey)
			if err != nil || len(key) != 32 {
				errs = append(errs, errors.New("identity.session_key must be 64 hex characters"))
			}
		}
		if c.Identity.CookieName == "" {
			errs = append(errs, errors.New("identity.cookie_name is required"))
		}
	case "header":
		if c.Identity.UserHeader == "" {
			errs = append(errs, errors.New("identity.user_header is required in header mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("identity.mode must be session or header, got %q", c.Identity.Mode))
	}

	if c.Board.FetchLimit <= 0 {
		errs = append(errs, errors.New("board.fetch_limit must be positive"))
	}
	if c.Board.PollInterval <= 0 {
		errs = append(errs, errors.New("board.poll_interval must be positive"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
