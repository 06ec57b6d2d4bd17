package port

import "context"

// Wallet provider request methods.
const (
	// MethodAccounts lists already-authorized accounts without prompting.
	MethodAccounts = "eth_accounts"
	// MethodRequestAccounts asks the wallet to authorize an account. It may prompt and may be rejected.
	MethodRequestAccounts = "eth_requestAccounts"
)

// WalletProvider is the request-style capability of a wallet.
type WalletProvider interface {
	// RequestAccounts performs one of the account methods above and returns the addresses it yields.
	RequestAccounts(ctx context.Context, method string) ([]string, error)
}

// ProviderDetector looks for a wallet provider. Absence is not an error.
type ProviderDetector interface {
	Detect(ctx context.Context) (WalletProvider, bool)
}
