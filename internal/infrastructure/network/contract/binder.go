package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"atm_bridge/internal/app/port"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultReceiptPollInterval is used when the binder is created without a poll interval.
const DefaultReceiptPollInterval = time.Second

// ErrInvalidAddress is returned when an address argument is not 20 hex bytes.
var ErrInvalidAddress = errors.New("invalid address")

// ErrUnsupportedProvider is returned when a provider cannot back a contract handle.
var ErrUnsupportedProvider = errors.New("wallet provider cannot sign contract calls")

var _ port.ContractBinder = (*Binder)(nil)

// Backend is the chain access a contract handle needs.
type Backend interface {
	bind.ContractBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// SendUnsignedTransaction lets the node sign for one of its own accounts.
	SendUnsignedTransaction(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error)
}

// Wallet is a wallet provider that can also back contract handles.
type Wallet interface {
	port.WalletProvider
	Backend() Backend
	// TransactOpts returns a local signer for account, or nil when the node signs.
	TransactOpts(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
}

// Binder binds the deployed ATM contract to an account of a Wallet.
type Binder struct {
	address      common.Address
	abi          abi.ABI
	clock        clock.Clock
	pollInterval time.Duration
}

// NewBinder creates a Binder for the contract at address.
func NewBinder(address common.Address, parsed abi.ABI, clk clock.Clock, pollInterval time.Duration) *Binder {
	if clk == nil {
		clk = clock.New()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultReceiptPollInterval
	}
	return &Binder{address: address, abi: parsed, clock: clk, pollInterval: pollInterval}
}

// Bind implements port.ContractBinder.
func (b *Binder) Bind(ctx context.Context, provider port.WalletProvider, account string) (port.ATMContract, error) {
	wallet, ok := provider.(Wallet)
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: account %q", ErrInvalidAddress, account)
	}
	from := common.HexToAddress(account)

	opts, err := wallet.TransactOpts(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer for %s: %w", account, err)
	}

	backend := wallet.Backend()
	return &atm{
		binder:  b,
		backend: backend,
		bound:   bind.NewBoundContract(b.address, b.abi, backend, backend, backend),
		from:    from,
		opts:    opts,
	}, nil
}

// atm is a contract handle signing for one account.
type atm struct {
	binder  *Binder
	backend Backend
	bound   *bind.BoundContract
	from    common.Address
	opts    *bind.TransactOpts
}

func (a *atm) Account() string {
	return strings.ToLower(a.from.Hex())
}

func (a *atm) GetBalance(ctx context.Context) (*big.Int, error) {
	input, err := a.binder.abi.Pack(MethodGetBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", MethodGetBalance, err)
	}
	msg := ethereum.CallMsg{From: a.from, To: &a.binder.address, Data: input}
	output, err := a.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", MethodGetBalance, err)
	}

	unpacked, err := a.binder.abi.Unpack(MethodGetBalance, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", MethodGetBalance, err)
	}
	if len(unpacked) == 0 {
		return nil, fmt.Errorf("%s returned no values", MethodGetBalance)
	}
	balance, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, expected *big.Int", MethodGetBalance, unpacked[0])
	}
	return balance, nil
}

func (a *atm) NativeBalance(ctx context.Context) (*big.Int, error) {
	return a.backend.BalanceAt(ctx, a.from, nil)
}

func (a *atm) Deposit(ctx context.Context, amount *big.Int) (port.Transaction, error) {
	return a.transact(ctx, MethodDeposit, amount)
}

func (a *atm) Withdraw(ctx context.Context, amount *big.Int) (port.Transaction, error) {
	return a.transact(ctx, MethodWithdraw, amount)
}

func (a *atm) MultiplyBalance(ctx context.Context, factor *big.Int) (port.Transaction, error) {
	return a.transact(ctx, MethodMultiplyBalance, factor)
}

func (a *atm) TransferOwnership(ctx context.Context, newOwner string) (port.Transaction, error) {
	if !common.IsHexAddress(newOwner) {
		return nil, fmt.Errorf("%w: new owner %q", ErrInvalidAddress, newOwner)
	}
	return a.transact(ctx, MethodTransferOwnership, common.HexToAddress(newOwner))
}

// transact signs locally when the wallet holds a key and otherwise lets the node sign.
func (a *atm) transact(ctx context.Context, method string, params ...interface{}) (port.Transaction, error) {
	if a.opts != nil {
		opts := *a.opts
		opts.Context = ctx
		tx, err := a.bound.Transact(&opts, method, params...)
		if err != nil {
			return nil, fmt.Errorf("%s transaction failed: %w", method, err)
		}
		return a.track(tx.Hash()), nil
	}

	input, err := a.binder.abi.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	hash, err := a.backend.SendUnsignedTransaction(ctx, a.from, a.binder.address, input)
	if err != nil {
		return nil, fmt.Errorf("%s transaction failed: %w", method, err)
	}
	return a.track(hash), nil
}

func (a *atm) track(hash common.Hash) *transaction {
	return &transaction{
		hash:         hash,
		backend:      a.backend,
		clock:        a.binder.clock,
		pollInterval: a.binder.pollInterval,
	}
}
