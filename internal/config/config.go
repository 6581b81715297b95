package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ministake/ministake/internal/logging"
	"github.com/ministake/ministake/internal/staking"
)

// Environment overrides applied after the file is parsed
const (
	EnvRPCURL         = "MINISTAKE_RPC_URL"
	EnvWSEndpoint     = "MINISTAKE_WS_ENDPOINT"
	EnvTokenAddress   = "MINISTAKE_TOKEN_ADDRESS"
	EnvStakingAddress = "MINISTAKE_STAKING_ADDRESS"
)

// Config represents the complete client configuration
type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Contracts ContractsConfig `yaml:"contracts"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Staking   StakingConfig   `yaml:"staking"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Mock      bool            `yaml:"mock"` // in-memory ledger, no RPC
}

// ChainConfig contains RPC connection settings
type ChainConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	WSEndpoint         string `yaml:"ws_endpoint"` // optional, enables WithdrawDebug subscriptions
	ChainID            int64  `yaml:"chain_id"`
	BlockConfirmations int    `yaml:"block_confirmations"`
	MaxGasPriceGwei    int64  `yaml:"max_gas_price_gwei"` // 0 disables the cap
}

// MaxGasPriceWei returns the gas price cap in wei, or nil when uncapped
func (c ChainConfig) MaxGasPriceWei() *big.Int {
	if c.MaxGasPriceGwei <= 0 {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(c.MaxGasPriceGwei), big.NewInt(1e9))
}

// ContractsConfig holds the deployed contract addresses
type ContractsConfig struct {
	TokenAddress   string `yaml:"token_address"`
	StakingAddress string `yaml:"staking_address"`
}

// WalletConfig locates the signing key
type WalletConfig struct {
	KeystoreDir  string `yaml:"keystore_dir"`
	Address      string `yaml:"address"`       // keystore account to use; empty picks the only one
	PasswordFile string `yaml:"password_file"` // optional file holding the keystore password
}

// StakingConfig tunes the read-model and the write flows
type StakingConfig struct {
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
	ConfirmTimeout    time.Duration `yaml:"confirm_timeout"`
	ReadRatePerSecond float64       `yaml:"read_rate_per_second"`
	TokenDecimals     uint8         `yaml:"token_decimals"`
	WatchUsers        []string      `yaml:"watch_users"` // extra accounts for the health check
}

// SessionConfig converts the staking section into a session configuration
func (s StakingConfig) SessionConfig() staking.SessionConfig {
	return staking.SessionConfig{
		RefreshInterval:   s.RefreshInterval,
		ReadinessInterval: s.ReadinessInterval,
		ConfirmTimeout:    s.ConfirmTimeout,
		ReadsPerSecond:    s.ReadRatePerSecond,
		Decimals:          s.TokenDecimals,
	}
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultConfig returns the default configuration. Contract addresses have
// no default; set them or enable mock mode.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".ministake")

	return &Config{
		Chain: ChainConfig{
			RPCURL:             "https://sepolia.base.org",
			ChainID:            84532, // Base Sepolia
			BlockConfirmations: 1,
			MaxGasPriceGwei:    100,
		},
		Wallet: WalletConfig{
			KeystoreDir: filepath.Join(dataDir, "keystore"),
		},
		Staking: StakingConfig{
			RefreshInterval:   15 * time.Second,
			ReadinessInterval: staking.DefaultReadinessInterval,
			ConfirmTimeout:    5 * time.Minute,
			ReadRatePerSecond: 5,
			TokenDecimals:     staking.DefaultDecimals,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// Load reads the config file at path. A missing file yields the defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	return LoadWith(path, nil)
}

// LoadWith is Load with command-line overrides applied after the
// environment and before validation.
func LoadWith(path string, override func(*Config)) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		cfg.applyEnv()
		if override != nil {
			override(cfg)
		}
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.expandPaths()
	if override != nil {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks ranges and, unless mock mode is on, the contract
// addresses.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != string(logging.FormatJSON) && c.Log.Format != string(logging.FormatText) {
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}

	if c.Staking.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive")
	}
	if c.Staking.ReadinessInterval <= 0 {
		return fmt.Errorf("readiness_interval must be positive")
	}
	if c.Staking.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm_timeout must be positive")
	}
	if c.Staking.ReadRatePerSecond < 0 {
		return fmt.Errorf("read_rate_per_second must not be negative")
	}
	if c.Staking.TokenDecimals > 36 {
		return fmt.Errorf("invalid token_decimals: %d", c.Staking.TokenDecimals)
	}
	for _, u := range c.Staking.WatchUsers {
		if err := validateEthAddress("watch_users entry", u); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	if c.Mock {
		return nil
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("rpc_url is required when mock is false")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("invalid chain_id: %d", c.Chain.ChainID)
	}
	if c.Chain.BlockConfirmations < 0 || c.Chain.BlockConfirmations > 64 {
		return fmt.Errorf("block_confirmations must be between 0 and 64, got %d", c.Chain.BlockConfirmations)
	}
	addrs := []struct{ name, addr string }{
		{"token_address", c.Contracts.TokenAddress},
		{"staking_address", c.Contracts.StakingAddress},
	}
	for _, a := range addrs {
		if a.addr == "" {
			return fmt.Errorf("%s is required when mock is false", a.name)
		}
		if err := validateEthAddress(a.name, a.addr); err != nil {
			return err
		}
	}
	if c.Wallet.Address != "" {
		if err := validateEthAddress("wallet.address", c.Wallet.Address); err != nil {
			return err
		}
	}
	return nil
}

func validateEthAddress(name, addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%s must start with 0x, got %q", name, addr)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return fmt.Errorf("%s must be 42 characters (0x + 40 hex), got %d", name, len(addr))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("%s contains invalid hex characters: %w", name, err)
	}
	if strings.Trim(hexPart, "0") == "" {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvRPCURL, &c.Chain.RPCURL},
		{EnvWSEndpoint, &c.Chain.WSEndpoint},
		{EnvTokenAddress, &c.Contracts.TokenAddress},
		{EnvStakingAddress, &c.Contracts.StakingAddress},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// expandPaths expands ~ in all path fields
func (c *Config) expandPaths() {
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ministake", "config.yaml")
}
