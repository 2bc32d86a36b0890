package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// LedgerConfig holds the Stellar settings, read from STELLAR_* variables.
type LedgerConfig struct {
	Network        string        `envconfig:"NETWORK" default:"testnet"`
	HorizonURL     string        `envconfig:"HORIZON_URL"`
	FriendbotURL   string        `envconfig:"FRIENDBOT_URL" default:"https://friendbot.stellar.org"`
	IssuerSecret   string        `envconfig:"ISSUER_SECRET"`
	TrustlineLimit string        `envconfig:"TRUSTLINE_LIMIT" default:"1000"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	TxTimeout      time.Duration `envconfig:"TX_TIMEOUT" default:"30s"`
	BaseFee        int64         `envconfig:"BASE_FEE" default:"100"`
}

const (
	NetworkTestnet = "testnet"
	NetworkPublic  = "public"
)

func (c LedgerConfig) IsTestnet() bool {
	return c.Network != NetworkPublic
}

// Horizon returns the configured Horizon URL or the SDF default for the network.
func (c LedgerConfig) Horizon() string {
	if c.HorizonURL != "" {
		return c.HorizonURL
	}
	if c.IsTestnet() {
		return "https://horizon-testnet.stellar.org"
	}
	return "https://horizon.stellar.org"
}

func LoadLedgerConfig() (LedgerConfig, error) {
	var cfg LedgerConfig
	if err := envconfig.Process("stellar", &cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}
