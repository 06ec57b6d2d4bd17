package client

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"sync"

	"atm_bridge/internal/app/port"
	"atm_bridge/internal/infrastructure/configloader"
	"atm_bridge/internal/infrastructure/network/contract"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	_ port.ProviderDetector = (*Detector)(nil)
	_ contract.Wallet       = (*NodeWallet)(nil)
	_ contract.Wallet       = (*KeyWallet)(nil)
	_ contract.Backend      = (*EVMClient)(nil)
)

// Detector finds the wallet provider of the configured network. The RPC connection is
// dialed on first use and cached.
type Detector struct {
	logger port.Logger
	netCfg configloader.NetworkConfig
	wallet configloader.WalletConfig
	dial   func(ctx context.Context, netCfg configloader.NetworkConfig) (*EVMClient, error)

	mu     sync.Mutex
	client *EVMClient
}

// NewDetector creates a Detector for cfg.
func NewDetector(cfg *configloader.Config, logger port.Logger) *Detector {
	return &Detector{
		logger: logger,
		netCfg: cfg.Network,
		wallet: cfg.Wallet,
		dial:   NewEVMClient,
	}
}

// Detect implements port.ProviderDetector. An unreachable node or a missing signing key
// counts as no provider.
func (d *Detector) Detect(ctx context.Context) (port.WalletProvider, bool) {
	evmClient, err := d.connect(ctx)
	if err != nil {
		d.logger.Error("Failed to reach wallet node", "network", d.netCfg.Name, "error", err)
		return nil, false
	}

	switch d.wallet.Mode {
	case configloader.WalletModeKey:
		wallet, err := NewKeyWallet(evmClient, os.Getenv(d.wallet.PrivateKeyEnv))
		if err != nil {
			d.logger.Error("Failed to load signing key", "env", d.wallet.PrivateKeyEnv, "error", err)
			return nil, false
		}
		d.logger.Info("Using local key wallet", "account", wallet.address.Hex(), "rpc", evmClient.URL())
		return wallet, true
	default:
		d.logger.Info("Using node-managed wallet", "rpc", evmClient.URL())
		return &NodeWallet{client: evmClient}, true
	}
}

func (d *Detector) connect(ctx context.Context) (*EVMClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	evmClient, err := d.dial(ctx, d.netCfg)
	if err != nil {
		return nil, err
	}
	d.logger.Info("Connected to RPC", "network", d.netCfg.Name, "rpc", evmClient.URL(), "chain_id", evmClient.ChainIDValue())
	d.client = evmClient
	return evmClient, nil
}

// Close releases the cached RPC connection.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
}

// NodeWallet uses the accounts unlocked on the RPC node. Those accounts are authorized
// already, so both account methods resolve to eth_accounts.
type NodeWallet struct {
	client *EVMClient
}

func (w *NodeWallet) RequestAccounts(ctx context.Context, _ string) ([]string, error) {
	return w.client.Accounts(ctx, port.MethodAccounts)
}

func (w *NodeWallet) Backend() contract.Backend {
	return w.client
}

// TransactOpts returns nil: the node signs with eth_sendTransaction.
func (w *NodeWallet) TransactOpts(context.Context, common.Address) (*bind.TransactOpts, error) {
	return nil, nil //nolint:nilnil
}

// KeyWallet signs locally with a single private key.
type KeyWallet struct {
	client  *EVMClient
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet parses a hex private key, with or without the 0x prefix.
func NewKeyWallet(evmClient *EVMClient, hexKey string) (*KeyWallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyWallet{client: evmClient, key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// RequestAccounts returns the key's address for either method.
func (w *KeyWallet) RequestAccounts(context.Context, string) ([]string, error) {
	return []string{w.address.Hex()}, nil
}

func (w *KeyWallet) Backend() contract.Backend {
	return w.client
}

func (w *KeyWallet) TransactOpts(_ context.Context, account common.Address) (*bind.TransactOpts, error) {
	if account != w.address {
		return nil, fmt.Errorf("no key for account %s", account.Hex())
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.client.ChainIDValue())
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return opts, nil
}
