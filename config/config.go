// Package config loads storefront settings from JSON and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/filmarket/chains"
	"github.com/vitwit/filmarket/types"
)

// Environment overrides
const (
	EnvBridgeURL = "FILMARKET_BRIDGE_URL"
	EnvMerchant  = "FILMARKET_MERCHANT"
	EnvLogLevel  = "FILMARKET_LOG_LEVEL"
)

var validate = validator.New()

type Config struct {
	// BridgeURL is the wallet bridge JSON-RPC endpoint. Empty selects no provider.
	BridgeURL       string   `json:"bridgeUrl" validate:"omitempty,url"`
	MerchantAddress string   `json:"merchantAddress" validate:"required,eth_addr"`
	// ExpectedChainID is the chain the wallet is steered to. It must be a registry entry.
	ExpectedChainID string   `json:"expectedChainId" validate:"required,hexadecimal"`
	Timeout         Duration `json:"timeout"`
	LogLevel        string   `json:"logLevel" validate:"oneof=debug info warn error"`
	EnableMetrics   bool     `json:"enableMetrics"`
	MetricsAddr     string   `json:"metricsAddr" validate:"omitempty,hostname_port"`

	PreserveCartOnChainChange bool   `json:"preserveCartOnChainChange"`
	CatalogFile               string `json:"catalogFile,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		MerchantAddress: types.DefaultMerchantAddress,
		ExpectedChainID: types.ChainIDFilecoinMainnet,
		Timeout:         Duration(30 * time.Second),
		LogLevel:        "info",
		MetricsAddr:     ":9090",
	}
}

// Parse reads JSON over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, types.NewError(types.ErrCodeConfig, "failed to parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("failed to read config %s", path), err)
	}
	return Parse(data)
}

// ApplyEnv overrides fields from FILMARKET_* variables and revalidates.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvBridgeURL); ok {
		c.BridgeURL = v
	}
	if v, ok := os.LookupEnv(EnvMerchant); ok {
		c.MerchantAddress = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return types.NewError(types.ErrCodeConfig, "validation failed", err)
	}
	if _, ok := chains.Lookup(c.ExpectedChainID); !ok {
		return types.NewError(types.ErrCodeConfig, fmt.Sprintf("expectedChainId %s is not a known Filecoin network", c.ExpectedChainID), nil)
	}
	if c.Timeout <= 0 {
		return types.NewError(types.ErrCodeConfig, "timeout must be positive", nil)
	}
	if c.EnableMetrics && c.MetricsAddr == "" {
		return types.NewError(types.ErrCodeConfig, "metricsAddr is required when metrics are enabled", nil)
	}
	return nil
}

// Duration is a time.Duration written as "30s" in JSON. Bare numbers are seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		secs, perr := strconv.ParseFloat(string(b), 64)
		if perr != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}
