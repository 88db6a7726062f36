// Package config holds process configuration, populated from the
// environment and overridable by CLI flags.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration. Every field can be set
// through the environment with the FUSLINK_ prefix, e.g.
// FUSLINK_LISTEN_ADDR=:9090.
type Config struct {
	// Server
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	// Upstream endpoints. Overridable mainly for contract tests against
	// recorded fixtures.
	FUSBaseURL  string `envconfig:"FUS_BASE_URL" default:""`
	DownloadURL string `envconfig:"DOWNLOAD_URL" default:""`
	CatalogURL  string `envconfig:"CATALOG_URL" default:""`

	// Streaming
	ChunkSize      int           `envconfig:"CHUNK_SIZE" default:"1048576"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Proxy: none, system, basic or ntlm.
	ProxyMode     string `envconfig:"PROXY_MODE" default:"system"`
	ProxyHost     string `envconfig:"PROXY_HOST"`
	ProxyPort     string `envconfig:"PROXY_PORT"`
	ProxyUser     string `envconfig:"PROXY_USER"`
	ProxyPassword string `envconfig:"PROXY_PASSWORD"`
	NoProxy       string `envconfig:"NO_PROXY"`

	// Identity generation: optional override for the built-in model→TAC
	// table.
	TACTableFile string `envconfig:"TAC_TABLE_FILE"`

	Verbose bool `envconfig:"VERBOSE"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("fuslink", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would only fail later at request
// time.
func (c *Config) Validate() error {
	switch c.ProxyMode {
	case "", "none", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("config: unknown proxy mode %q", c.ProxyMode)
	}
	if (c.ProxyMode == "basic" || c.ProxyMode == "ntlm") && c.ProxyHost == "" {
		return fmt.Errorf("config: proxy mode %q requires a proxy host", c.ProxyMode)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk size must be positive, got %d", c.ChunkSize)
	}
	return nil
}
