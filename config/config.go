// Package config loads folioscoped's runtime configuration from a YAML file
// with environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for folioscoped.
type Config struct {
	Listen       string        `yaml:"listen"`
	Environment  string        `yaml:"environment"`
	LogFile      string        `yaml:"log_file"`
	RegistryPath string        `yaml:"registry"`
	AuditDBPath  string        `yaml:"audit_db"`
	Ledger       LedgerConfig  `yaml:"ledger"`
	Advisor      AdvisorConfig `yaml:"advisor"`
	Multisig     Multisig      `yaml:"multisig"`
	Polling      Polling       `yaml:"polling"`
	SubmitToken  string        `yaml:"submit_token"`
}

// LedgerConfig points at the remote ledger RPC and pool contract.
type LedgerConfig struct {
	RPCEndpoint string   `yaml:"rpc_endpoint"`
	PoolAddress string   `yaml:"pool_address"`
	CallTimeout Duration `yaml:"call_timeout"`
}

// AdvisorConfig points at the market/recommendation provider.
type AdvisorConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	Timeout        Duration `yaml:"timeout"`
	CallsPerMinute int      `yaml:"calls_per_minute"`
}

// Multisig points at the external multisignature execution backend.
type Multisig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// Polling tunes the refresh schedules.
type Polling struct {
	// Accounts lists the accounts whose portfolios refresh continuously.
	Accounts []string `yaml:"accounts"`
	// EventLookbackBlocks bounds each events refresh window.
	EventLookbackBlocks uint64 `yaml:"event_lookback_blocks"`
}

// Environment variable overrides. Secrets in particular should arrive via
// env rather than the config file.
const (
	envListen       = "FOLIO_LISTEN"
	envRPCEndpoint  = "FOLIO_RPC_ENDPOINT"
	envAdvisorKey   = "FOLIO_ADVISOR_API_KEY"
	envMultisigKey  = "FOLIO_MULTISIG_API_KEY"
	envSubmitToken  = "FOLIO_SUBMIT_TOKEN"
	envLogFile      = "FOLIO_LOG_FILE"
	envRegistryPath = "FOLIO_REGISTRY"
)

// Load reads, overrides, and validates the configuration at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envListen)); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(envRPCEndpoint)); v != "" {
		cfg.Ledger.RPCEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(envAdvisorKey)); v != "" {
		cfg.Advisor.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envMultisigKey)); v != "" {
		cfg.Multisig.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envSubmitToken)); v != "" {
		cfg.SubmitToken = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogFile)); v != "" {
		cfg.LogFile = v
	}
	if v := strings.TrimSpace(os.Getenv(envRegistryPath)); v != "" {
		cfg.RegistryPath = v
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "0.0.0.0:8090"
	}
	if cfg.Ledger.CallTimeout.Duration <= 0 {
		cfg.Ledger.CallTimeout.Duration = 5 * time.Second
	}
	if cfg.Advisor.Timeout.Duration <= 0 {
		cfg.Advisor.Timeout.Duration = 10 * time.Second
	}
	if cfg.Advisor.CallsPerMinute <= 0 {
		cfg.Advisor.CallsPerMinute = 30
	}
	if cfg.Multisig.Timeout.Duration <= 0 {
		cfg.Multisig.Timeout.Duration = 15 * time.Second
	}
	if cfg.Polling.EventLookbackBlocks == 0 {
		cfg.Polling.EventLookbackBlocks = 5000
	}
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Ledger.RPCEndpoint) == "" {
		return fmt.Errorf("config: ledger rpc_endpoint required")
	}
	if strings.TrimSpace(cfg.Ledger.PoolAddress) == "" {
		return fmt.Errorf("config: ledger pool_address required")
	}
	if strings.TrimSpace(cfg.RegistryPath) == "" {
		return fmt.Errorf("config: registry path required")
	}
	return nil
}
