// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting for the API server. All fields come
// from PROVENLY_* environment variables.
type Config struct {
	Addr string `env:"PROVENLY_ADDR" envDefault:":8080"`

	// Ledger backend. When RPC URL is empty the server runs the
	// in-process ledger, which is the development default.
	LedgerRPCURL    string `env:"PROVENLY_LEDGER_RPC_URL"`
	ContractAddress string `env:"PROVENLY_CONTRACT_ADDRESS"`
	AdminAddress    string `env:"PROVENLY_ADMIN_ADDRESS"`

	// Content store. When the URL is empty the server pins into memory.
	StorageURL   string `env:"PROVENLY_STORAGE_URL"`
	StorageToken string `env:"PROVENLY_STORAGE_TOKEN"`

	SignedURLTTL time.Duration `env:"PROVENLY_SIGNED_URL_TTL" envDefault:"1h"`
	SessionTTL   time.Duration `env:"PROVENLY_SESSION_TTL" envDefault:"24h"`

	// Optional Postgres archive for provenance queries. Empty disables it.
	PostgresDSN string `env:"PROVENLY_PG_DSN"`

	MaxBodyBytes int64   `env:"PROVENLY_MAX_BODY_BYTES" envDefault:"1048576"`
	RateLimitRPS float64 `env:"PROVENLY_RATE_LIMIT_RPS" envDefault:"50"`
	RateBurst    int     `env:"PROVENLY_RATE_LIMIT_BURST" envDefault:"100"`

	CORSAllowOrigin string `env:"PROVENLY_CORS_ALLOW_ORIGIN" envDefault:"*"`

	ShutdownGrace time.Duration `env:"PROVENLY_SHUTDOWN_GRACE" envDefault:"10s"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LedgerRPCURL != "" && c.ContractAddress == "" {
		return fmt.Errorf("PROVENLY_CONTRACT_ADDRESS is required when PROVENLY_LEDGER_RPC_URL is set")
	}
	if c.LedgerRPCURL == "" && c.AdminAddress == "" {
		return fmt.Errorf("PROVENLY_ADMIN_ADDRESS is required for the in-process ledger")
	}
	if c.StorageURL != "" && c.StorageToken == "" {
		return fmt.Errorf("PROVENLY_STORAGE_TOKEN is required when PROVENLY_STORAGE_URL is set")
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("PROVENLY_SIGNED_URL_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}

// UseRemoteLedger reports whether the server should talk to an external
// ledger node instead of the in-process one.
func (c Config) UseRemoteLedger() bool { return c.LedgerRPCURL != "" }

// UseGatewayStorage reports whether pinning goes through a remote gateway.
func (c Config) UseGatewayStorage() bool { return c.StorageURL != "" }
