package configloader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Wallet modes.
const (
	// WalletModeNode uses the accounts managed by the RPC node; it signs via eth_sendTransaction.
	WalletModeNode = "node"
	// WalletModeKey signs locally with a private key read from the environment.
	WalletModeKey = "key"
)

// DefaultContractAddress is the first contract address of a fresh local Hardhat node.
const DefaultContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
	EnablePprof  bool   `yaml:"enablePprof"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level       string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
	Development bool   `yaml:"development"`
}

// NetworkConfig describes the chain the ATM contract is deployed on.
type NetworkConfig struct {
	Name                     string   `yaml:"name"`
	ChainID                  int64    `yaml:"chainID"`
	PrimaryRPCURL            string   `yaml:"primaryRpcUrl"`
	FallbackRPCURLs          []string `yaml:"fallbackRpcUrls"`
	ConnectionTimeoutSeconds int      `yaml:"connectionTimeoutSeconds"`
	RPCCallTimeoutSeconds    int      `yaml:"rpcCallTimeoutSeconds"`
	RateLimit                float64  `yaml:"rateLimit"` // requests per second, 0 disables limiting
	BurstLimit               int      `yaml:"burstLimit"`
}

// ContractConfig points at the deployed ATM contract.
type ContractConfig struct {
	Address string `yaml:"address"`
	// ABIFile is either a Hardhat artifact or a raw ABI array. Empty uses the built-in ABI.
	ABIFile string `yaml:"abiFile"`
}

// WalletConfig selects how accounts are obtained and transactions signed.
type WalletConfig struct {
	Mode          string `yaml:"mode"`
	PrivateKeyEnv string `yaml:"privateKeyEnv"`
}

// BridgeConfig holds tunables of the wallet-contract bridge.
type BridgeConfig struct {
	ConfirmationTimeoutSeconds int `yaml:"confirmationTimeoutSeconds"`
	ReceiptPollMillis          int `yaml:"receiptPollMillis"`
	AccountPollSeconds         int `yaml:"accountPollSeconds"` // 0 disables account polling
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	SpecFile string `yaml:"specFile"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Network  NetworkConfig  `yaml:"network"`
	Contract ContractConfig `yaml:"contract"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Swagger  SwaggerConfig  `yaml:"swagger"`
}

// Load reads the YAML configuration file from the given path, unmarshals it and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML configuration data and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
		logrus.Infof("Server.Port not set, defaulting to %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 10
	}
	// Actions block until the transaction is mined, so the write timeout has to outlast the confirmation wait.
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 180
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Network.Name == "" {
		cfg.Network.Name = "localhost"
	}
	if cfg.Network.ChainID == 0 {
		cfg.Network.ChainID = 31337 // Hardhat
		logrus.Infof("Network.ChainID not set, defaulting to %d", cfg.Network.ChainID)
	}
	if cfg.Network.PrimaryRPCURL == "" {
		cfg.Network.PrimaryRPCURL = "http://127.0.0.1:8545"
		logrus.Infof("Network.PrimaryRPCURL not set, defaulting to %s", cfg.Network.PrimaryRPCURL)
	}
	if cfg.Network.ConnectionTimeoutSeconds <= 0 {
		cfg.Network.ConnectionTimeoutSeconds = 10
	}
	if cfg.Network.RPCCallTimeoutSeconds <= 0 {
		cfg.Network.RPCCallTimeoutSeconds = 10
	}
	if cfg.Network.RateLimit > 0 && cfg.Network.BurstLimit <= 0 {
		cfg.Network.BurstLimit = 1
	}

	if cfg.Contract.Address == "" {
		cfg.Contract.Address = DefaultContractAddress
		logrus.Infof("Contract.Address not set, defaulting to %s", cfg.Contract.Address)
	}

	if cfg.Wallet.Mode == "" {
		cfg.Wallet.Mode = WalletModeNode
	}
	if cfg.Wallet.PrivateKeyEnv == "" {
		cfg.Wallet.PrivateKeyEnv = "ATM_PRIVATE_KEY"
	}

	if cfg.Bridge.ConfirmationTimeoutSeconds <= 0 {
		cfg.Bridge.ConfirmationTimeoutSeconds = 120
		logrus.Infof("Bridge.ConfirmationTimeoutSeconds not set, defaulting to %d", cfg.Bridge.ConfirmationTimeoutSeconds)
	}
	if cfg.Bridge.ReceiptPollMillis <= 0 {
		cfg.Bridge.ReceiptPollMillis = 1000
	}

	if cfg.Swagger.Path == "" {
		cfg.Swagger.Path = "/swagger"
	}
	if cfg.Swagger.SpecFile == "" {
		cfg.Swagger.SpecFile = "./docs/swagger.yaml"
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("contract.address %q is not a hex address", c.Contract.Address)
	}
	switch strings.ToLower(c.Wallet.Mode) {
	case WalletModeNode, WalletModeKey:
		c.Wallet.Mode = strings.ToLower(c.Wallet.Mode)
	default:
		return fmt.Errorf("wallet.mode %q is not one of %q, %q", c.Wallet.Mode, WalletModeNode, WalletModeKey)
	}
	if c.Bridge.AccountPollSeconds < 0 {
		return fmt.Errorf("bridge.accountPollSeconds must not be negative")
	}
	return nil
}
