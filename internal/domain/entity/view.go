package entity

// ViewBranch is the three-way render decision derived from the connection state.
type ViewBranch string

const (
	// BranchInstall is shown when no wallet provider was detected.
	BranchInstall ViewBranch = "install"
	// BranchConnect is shown when a provider exists but no account is authorized.
	BranchConnect ViewBranch = "connect"
	// BranchAccount is the full balance/actions view.
	BranchAccount ViewBranch = "account"
)

// View is a snapshot of everything a front-end needs to render the ATM page.
type View struct {
	Branch     ViewBranch `json:"branch"`
	Message    string     `json:"message,omitempty"`
	Connecting bool       `json:"connecting,omitempty"`
	Account    string     `json:"account,omitempty"`

	// Balance is the contract balance narrowed to int64. It is only exact when
	// BalanceExact is true; BalanceString always carries the full value.
	Balance       *int64 `json:"balance,omitempty"`
	BalanceExact  bool   `json:"balanceExact,omitempty"`
	BalanceString string `json:"balanceString,omitempty"`
	WalletBalance string `json:"walletBalance,omitempty"`

	Pending []Action          `json:"pending,omitempty"`
	Errors  map[Action]string `json:"errors,omitempty"`
	Notices []string          `json:"notices,omitempty"`
}
