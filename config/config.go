// Package config loads the TOML parameter file that seeds a ledger: system
// owner, fees, collateral types, oracle prices and pools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultDataDir = "./ledger-data"
	// DefaultOwner is the well known development owner written into fresh
	// config files. Production deployments must replace it.
	DefaultOwner = "0x00000000000000000000000000000000000000a1"
)

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	c.Owner = strings.TrimSpace(c.Owner)
	if strings.TrimSpace(c.MinLiquidityRatio) == "" {
		c.MinLiquidityRatio = "0"
	}
	if strings.TrimSpace(c.Fees.MintFee) == "" {
		c.Fees.MintFee = "0"
	}
	if strings.TrimSpace(c.Fees.BurnFee) == "" {
		c.Fees.BurnFee = "0"
	}
	if c.Oracle.Prices == nil {
		c.Oracle.Prices = map[string]string{}
	}
	for i := range c.Collateral {
		if strings.TrimSpace(c.Collateral[i].LiquidationReward) == "" {
			c.Collateral[i].LiquidationReward = "0"
		}
		if strings.TrimSpace(c.Collateral[i].MinDelegation) == "" {
			c.Collateral[i].MinDelegation = "0"
		}
	}
}

// createDefault creates and saves a development configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:           DefaultDataDir,
		Owner:             DefaultOwner,
		MinLiquidityRatio: "0",
		Fees:              Fees{MintFee: "0", BurnFee: "0"},
		Oracle:            Oracle{Prices: map[string]string{}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
