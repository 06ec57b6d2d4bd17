package entity

// Action identifies a state-changing ATM call.
type Action string

const (
	ActionDeposit           Action = "deposit"
	ActionWithdraw          Action = "withdraw"
	ActionMultiplyBalance   Action = "multiplyBalance"
	ActionTransferOwnership Action = "transferOwnership"
)

// Actions lists every mutating action in display order.
var Actions = []Action{ //nolint:gochecknoglobals
	ActionDeposit,
	ActionWithdraw,
	ActionMultiplyBalance,
	ActionTransferOwnership,
}

// String implements fmt.Stringer.
func (a Action) String() string {
	return string(a)
}
