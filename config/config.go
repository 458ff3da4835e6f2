package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Collateral describes one approved collateral asset and its price feed.
type Collateral struct {
	Symbol       string `toml:"Symbol"`
	FeedURL      string `toml:"FeedURL"`
	FeedDecimals uint8  `toml:"FeedDecimals"`
}

// Config captures the runtime configuration for the solvency engine daemon.
type Config struct {
	ListenAddress      string       `toml:"ListenAddress"`
	Environment        string       `toml:"Environment"`
	CustodyAddress     string       `toml:"CustodyAddress"`
	DebtSymbol         string       `toml:"DebtSymbol"`
	MaxQuoteAgeSeconds int64        `toml:"MaxQuoteAgeSeconds"`
	Collateral         []Collateral `toml:"collateral"`
}

// Load reads and validates the TOML configuration at path.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg = cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalise applies defaults and canonical casing to the configuration.
func (c Config) Normalise() Config {
	cfg := c
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8645"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.CustodyAddress = strings.TrimSpace(cfg.CustodyAddress)
	cfg.DebtSymbol = strings.ToUpper(strings.TrimSpace(cfg.DebtSymbol))
	if cfg.DebtSymbol == "" {
		cfg.DebtSymbol = "SUSD"
	}
	if cfg.MaxQuoteAgeSeconds <= 0 {
		cfg.MaxQuoteAgeSeconds = 300
	}
	collateral := make([]Collateral, 0, len(cfg.Collateral))
	for _, entry := range cfg.Collateral {
		entry.Symbol = strings.ToUpper(strings.TrimSpace(entry.Symbol))
		entry.FeedURL = strings.TrimSpace(entry.FeedURL)
		if entry.FeedDecimals == 0 {
			entry.FeedDecimals = 8
		}
		collateral = append(collateral, entry)
	}
	cfg.Collateral = collateral
	return cfg
}

// Validate rejects configurations that cannot initialise the engine.
func (c Config) Validate() error {
	if len(c.Collateral) == 0 {
		return fmt.Errorf("config: at least one collateral entry is required")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for i, entry := range c.Collateral {
		if entry.Symbol == "" {
			return fmt.Errorf("config: collateral %d: symbol required", i)
		}
		if _, dup := seen[entry.Symbol]; dup {
			return fmt.Errorf("config: duplicate collateral symbol %s", entry.Symbol)
		}
		seen[entry.Symbol] = struct{}{}
		if entry.FeedURL == "" {
			return fmt.Errorf("config: collateral %s: feed url required", entry.Symbol)
		}
		if entry.FeedDecimals > 18 {
			return fmt.Errorf("config: collateral %s: feed decimals above 18", entry.Symbol)
		}
	}
	return nil
}

// MaxQuoteAge returns the configured freshness window as a duration.
func (c Config) MaxQuoteAge() time.Duration {
	return time.Duration(c.MaxQuoteAgeSeconds) * time.Second
}
