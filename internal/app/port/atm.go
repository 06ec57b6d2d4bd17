package port

import (
	"context"

	"atm_bridge/internal/domain/entity"
)

// ATMService is the bridge surface consumed by the HTTP layer.
type ATMService interface {
	ConnectAccount(ctx context.Context) error
	RefreshBalances(ctx context.Context) error

	Deposit(ctx context.Context) error
	Withdraw(ctx context.Context) error
	MultiplyBalance(ctx context.Context) error
	TransferOwnership(ctx context.Context, newOwner string) error

	View() entity.View
	DrainNotices() []string
}
