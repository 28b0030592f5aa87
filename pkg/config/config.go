// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/deploy"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

var ErrInvalid = errors.New("config: invalid")

// Config of a certreg node. Loaded from YAML, then CERTREG_* environment
// variables, then command line flags.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Chain    ChainConfig    `yaml:"chain"`
	Cache    cache.Config   `yaml:"cache"`
	Metadata MetadataConfig `yaml:"metadata"`
	Log      LogConfig      `yaml:"log"`
}

type NodeConfig struct {
	Listen string `yaml:"listen"` // e.g. :8080
}

type ChainConfig struct {
	// deploys all contracts and becomes super admin
	Deployer stx.Principal                  `yaml:"deployer"`
	TxFee    stx.MicroStx                   `yaml:"tx_fee"`
	Balances map[stx.Principal]stx.MicroStx `yaml:"balances"`

	// manager contract names, the first one is activated at genesis
	Managers []string `yaml:"managers"`

	// schools registered and funded at genesis
	Schools []deploy.School `yaml:"schools"`

	// interval of empty blocks so that expiration heights pass, 0 disables
	BlockTime time.Duration `yaml:"block_time"`

	// ledger state file, empty disables persistence
	Checkpoint         string        `yaml:"checkpoint"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

type MetadataConfig struct {
	Dir       string `yaml:"dir"`
	PublicURL string `yaml:"public_url"` // base URL documents are served under
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Listen: ":8080",
		},
		Chain: ChainConfig{
			TxFee:              ledger.DefaultTxFee,
			Balances:           make(map[stx.Principal]stx.MicroStx),
			CheckpointInterval: time.Minute,
		},
		Cache: cache.Config{
			Driver: cache.DriverSqlite,
			DSN:    "certreg.db",
		},
		Metadata: MetadataConfig{
			Dir:       "metadata",
			PublicURL: "http://localhost:8080/metadata",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. An empty path only applies defaults
// and environment overrides.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	if err := applyEnvOverrides(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv("CERTREG_LISTEN"); v != "" {
		c.Node.Listen = v
	}
	if v := os.Getenv("CERTREG_DEPLOYER"); v != "" {
		c.Chain.Deployer = stx.Principal(v)
	}
	if v := os.Getenv("CERTREG_TX_FEE"); v != "" {
		fee, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: CERTREG_TX_FEE: %v", ErrInvalid, err)
		}
		c.Chain.TxFee = stx.MicroStx(fee)
	}
	if v := os.Getenv("CERTREG_CHECKPOINT"); v != "" {
		c.Chain.Checkpoint = v
	}
	if v := os.Getenv("CERTREG_CACHE_DRIVER"); v != "" {
		c.Cache.Driver = v
	}
	if v := os.Getenv("CERTREG_CACHE_DSN"); v != "" {
		c.Cache.DSN = v
	}
	if v := os.Getenv("CERTREG_METADATA_DIR"); v != "" {
		c.Metadata.Dir = v
	}
	if v := os.Getenv("CERTREG_PUBLIC_URL"); v != "" {
		c.Metadata.PublicURL = v
	}
	if v := os.Getenv("CERTREG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) Validate() error {
	if !c.Chain.Deployer.IsValid() || c.Chain.Deployer.IsContract() {
		return fmt.Errorf("%w: deployer %q is not a standard principal", ErrInvalid, c.Chain.Deployer)
	}
	if c.Chain.TxFee == 0 {
		return fmt.Errorf("%w: tx fee must be positive", ErrInvalid)
	}
	for p := range c.Chain.Balances {
		if !p.IsValid() {
			return fmt.Errorf("%w: balance for invalid principal %q", ErrInvalid, p)
		}
	}
	for _, s := range c.Chain.Schools {
		if !s.Principal.IsValid() || s.Name == "" {
			return fmt.Errorf("%w: school %q needs a principal and a name", ErrInvalid, s.Principal)
		}
	}
	switch c.Cache.Driver {
	case cache.DriverSqlite, cache.DriverPostgres, "":
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalid, c.Cache.Driver)
	}
	if c.Metadata.Dir == "" || !strings.HasPrefix(c.Metadata.PublicURL, "http") {
		return fmt.Errorf("%w: metadata needs a dir and an http public url", ErrInvalid)
	}
	return nil
}
