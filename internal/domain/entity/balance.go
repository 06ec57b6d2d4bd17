package entity

import "math/big"

// Balances holds the last-fetched balances for the connected account.
type Balances struct {
	// Contract is the ATM-held balance in whole units as returned by getBalance().
	Contract *big.Int
	// Wallet is the native balance of the account in wei.
	Wallet *big.Int
	// FormattedWallet is Wallet scaled by 18 decimals.
	FormattedWallet string
}

// ContractDisplay narrows the contract balance for display.
// The second return value is false when the balance does not fit into int64,
// in which case the narrowed value is meaningless and the exact string must be shown.
func (b Balances) ContractDisplay() (int64, bool) {
	if b.Contract == nil {
		return 0, true
	}
	if !b.Contract.IsInt64() {
		return 0, false
	}
	return b.Contract.Int64(), true
}
