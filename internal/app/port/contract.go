package port

import (
	"context"
	"math/big"
)

// Transaction is a handle to a submitted state-changing call.
type Transaction interface {
	Hash() string
	// Wait blocks until the transaction is mined. A reverted transaction is reported as an error.
	Wait(ctx context.Context) error
}

// ATMContract is the deployed ATM contract bound to one account's signer.
type ATMContract interface {
	// Account returns the lowercase hex address the handle signs for.
	Account() string

	GetBalance(ctx context.Context) (*big.Int, error)
	// NativeBalance returns the account's native balance in wei.
	NativeBalance(ctx context.Context) (*big.Int, error)

	Deposit(ctx context.Context, amount *big.Int) (Transaction, error)
	Withdraw(ctx context.Context, amount *big.Int) (Transaction, error)
	MultiplyBalance(ctx context.Context, factor *big.Int) (Transaction, error)
	// TransferOwnership submits newOwner as given. Malformed addresses fail at submission.
	TransferOwnership(ctx context.Context, newOwner string) (Transaction, error)
}

// ContractBinder creates contract handles for an account of a provider.
type ContractBinder interface {
	Bind(ctx context.Context, provider WalletProvider, account string) (ATMContract, error)
}
