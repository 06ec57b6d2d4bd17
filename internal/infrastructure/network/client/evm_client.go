package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"atm_bridge/internal/infrastructure/configloader"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// EVMClient is the chain connection behind a wallet provider. It embeds *ethclient.Client,
// so it can back a bind.BoundContract. Reads, receipts, submission and the nonce, gas and
// header lookups a locally signed transaction needs go through a rate limiter and a
// per-call timeout. Log filtering is not used and stays on the embedded client.
type EVMClient struct {
	*ethclient.Client

	rpcClient      *rpc.Client
	chainID        *big.Int
	rpcURL         string
	rpcCallTimeout time.Duration
	limiter        *rate.Limiter
}

// NewEVMClient dials the primary RPC URL and then the fallbacks, keeping the first endpoint
// that answers eth_chainId with the configured chain ID.
func NewEVMClient(ctx context.Context, netCfg configloader.NetworkConfig) (*EVMClient, error) {
	rpcURLs := append([]string{netCfg.PrimaryRPCURL}, netCfg.FallbackRPCURLs...)
	connectionTimeout := time.Duration(netCfg.ConnectionTimeoutSeconds) * time.Second

	var limiter *rate.Limiter
	if netCfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(netCfg.RateLimit), netCfg.BurstLimit)
	}

	var lastErr error
	for _, rpcURL := range rpcURLs {
		dialCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
		rpcClient, err := rpc.DialContext(dialCtx, rpcURL)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
			continue
		}

		ethClient := ethclient.NewClient(rpcClient)
		chainID, err := ethClient.ChainID(dialCtx)
		cancel()
		if err != nil {
			ethClient.Close()
			lastErr = fmt.Errorf("failed to verify chainID for %s: %w", rpcURL, err)
			continue
		}
		if netCfg.ChainID != 0 && chainID.Int64() != netCfg.ChainID {
			ethClient.Close()
			lastErr = fmt.Errorf("chainID mismatch for %s: expected %d, got %s", rpcURL, netCfg.ChainID, chainID)
			continue
		}

		return &EVMClient{
			Client:         ethClient,
			rpcClient:      rpcClient,
			chainID:        chainID,
			rpcURL:         rpcURL,
			rpcCallTimeout: time.Duration(netCfg.RPCCallTimeoutSeconds) * time.Second,
			limiter:        limiter,
		}, nil
	}

	return nil, fmt.Errorf("all RPC connection attempts failed for network %s: %w", netCfg.Name, lastErr)
}

// ChainIDValue returns the chain ID verified at dial time.
func (c *EVMClient) ChainIDValue() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// URL returns the RPC endpoint in use.
func (c *EVMClient) URL() string {
	return c.rpcURL
}

// callContext waits for the rate limiter and bounds the call by rpcCallTimeout.
func (c *EVMClient) callContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	if c.rpcCallTimeout <= 0 {
		callCtx, cancel := context.WithCancel(ctx)
		return callCtx, cancel, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	return callCtx, cancel, nil
}

// Accounts performs eth_accounts or eth_requestAccounts against the node.
func (c *EVMClient) Accounts(ctx context.Context, method string) ([]string, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var accounts []common.Address
	if err := c.rpcClient.CallContext(callCtx, &accounts, method); err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}

	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out, nil
}

// BalanceAt returns the wei balance of account at the latest block.
func (c *EVMClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.BalanceAt(callCtx, account, blockNumber)
}

// CallContract executes a read-only contract call.
func (c *EVMClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.CallContract(callCtx, msg, blockNumber)
}

// SendTransaction submits a locally signed transaction.
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return c.Client.SendTransaction(callCtx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction or ethereum.NotFound.
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.TransactionReceipt(callCtx, txHash)
}

// SendUnsignedTransaction asks the node to sign and submit a call from one of its own
// accounts via eth_sendTransaction.
func (c *EVMClient) SendUnsignedTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer cancel()

	args := map[string]interface{}{
		"from": from,
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	var hash common.Hash
	if err := c.rpcClient.CallContext(callCtx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction failed: %w", err)
	}
	return hash, nil
}

// PendingNonceAt returns the next nonce for account.
func (c *EVMClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return c.Client.PendingNonceAt(callCtx, account)
}

func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.SuggestGasPrice(callCtx)
}

func (c *EVMClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.SuggestGasTipCap(callCtx)
}

func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return c.Client.EstimateGas(callCtx, msg)
}

// HeaderByNumber is used to pick between legacy and dynamic fee transactions.
func (c *EVMClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.HeaderByNumber(callCtx, number)
}

func (c *EVMClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.PendingCodeAt(callCtx, account)
}

func (c *EVMClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	callCtx, cancel, err := c.callContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return c.Client.CodeAt(callCtx, account, blockNumber)
}
