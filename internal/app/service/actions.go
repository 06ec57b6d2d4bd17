package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"atm_bridge/internal/app/port"
	"atm_bridge/internal/domain/entity"
	"atm_bridge/internal/pkg/metrics"

	"github.com/benbjohnson/clock"
)

// Fixed call arguments of the ATM page.
const (
	DepositAmount  = 1
	WithdrawAmount = 1
	MultiplyFactor = 2
)

// ErrorFlagTTL is how long a failed action keeps its error flag.
const ErrorFlagTTL = 5 * time.Second

var failureMessages = map[entity.Action]string{ //nolint:gochecknoglobals
	entity.ActionDeposit:           "Error: Failed to deposit",
	entity.ActionWithdraw:          "Error: Failed to withdraw",
	entity.ActionMultiplyBalance:   "Error: Failed to multiply balance",
	entity.ActionTransferOwnership: "Error: Failed to transfer ownership",
}

type errorFlag struct {
	message string
	timer   *clock.Timer
}

type submitFunc func(ctx context.Context, contract port.ATMContract) (port.Transaction, error)

type successFunc func(ctx context.Context)

// Deposit deposits DepositAmount into the ATM and refreshes balances once it is mined.
func (b *Bridge) Deposit(ctx context.Context) error {
	return b.submitAndAwait(ctx, entity.ActionDeposit,
		func(ctx context.Context, c port.ATMContract) (port.Transaction, error) {
			return c.Deposit(ctx, big.NewInt(DepositAmount))
		},
		b.refreshAfterConfirmation,
	)
}

// Withdraw withdraws WithdrawAmount from the ATM and refreshes balances once it is mined.
func (b *Bridge) Withdraw(ctx context.Context) error {
	return b.submitAndAwait(ctx, entity.ActionWithdraw,
		func(ctx context.Context, c port.ATMContract) (port.Transaction, error) {
			return c.Withdraw(ctx, big.NewInt(WithdrawAmount))
		},
		b.refreshAfterConfirmation,
	)
}

// MultiplyBalance multiplies the ATM balance by MultiplyFactor.
func (b *Bridge) MultiplyBalance(ctx context.Context) error {
	return b.submitAndAwait(ctx, entity.ActionMultiplyBalance,
		func(ctx context.Context, c port.ATMContract) (port.Transaction, error) {
			return c.MultiplyBalance(ctx, big.NewInt(MultiplyFactor))
		},
		b.refreshAfterConfirmation,
	)
}

// TransferOwnership hands the contract's privileged role to newOwner. The address is
// submitted as typed; the chain (or the encoder) decides whether it is acceptable.
// On success a one-time notice is queued; balances are not refreshed.
func (b *Bridge) TransferOwnership(ctx context.Context, newOwner string) error {
	if strings.TrimSpace(newOwner) == "" {
		return ErrNoOwner
	}
	return b.submitAndAwait(ctx, entity.ActionTransferOwnership,
		func(ctx context.Context, c port.ATMContract) (port.Transaction, error) {
			return c.TransferOwnership(ctx, newOwner)
		},
		func(context.Context) {
			b.mu.Lock()
			b.notices = append(b.notices, fmt.Sprintf("Ownership transferred to %s", newOwner))
			b.mu.Unlock()
		},
	)
}

func (b *Bridge) refreshAfterConfirmation(ctx context.Context) {
	if err := b.RefreshBalances(ctx); err != nil {
		b.logger.Warn("Balance refresh after confirmation failed", "error", err)
	}
}

// submitAndAwait is the single failure boundary of every mutating call: it submits through
// the currently bound contract, waits for confirmation and runs onSuccess exactly once.
// Failures are logged, flagged for ErrorFlagTTL and leave balances untouched. A failed
// ownership transfer returns only the generic message; the details stay in the log.
func (b *Bridge) submitAndAwait(ctx context.Context, action entity.Action, submit submitFunc, onSuccess successFunc) error {
	b.mu.Lock()
	c, ok := b.state.(*connected)
	if !ok {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if b.pending[action] {
		b.mu.Unlock()
		return ErrActionInFlight
	}
	b.pending[action] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, action)
		b.mu.Unlock()
	}()

	started := b.clock.Now()
	b.logger.Info("Submitting transaction", "action", action, "account", c.account)

	tx, err := submit(ctx, c.contract)
	if err != nil {
		return b.fail(action, started, fmt.Errorf("%w: submit %s: %w", ErrTransactionFailed, action, err))
	}
	b.logger.Info("Transaction submitted, waiting for confirmation", "action", action, "tx", tx.Hash())

	// A submitted transaction is awaited to the end even if the caller goes away;
	// only the confirmation timeout bounds the wait.
	detached := context.WithoutCancel(ctx)
	waitCtx := detached
	if b.confirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = b.clock.WithTimeout(detached, b.confirmationTimeout)
		defer cancel()
	}
	if err := tx.Wait(waitCtx); err != nil {
		return b.fail(action, started, fmt.Errorf("%w: confirm %s (%s): %w", ErrTransactionFailed, action, tx.Hash(), err))
	}

	b.metrics.RecordTransaction(action.String(), metrics.StatusConfirmed, b.clock.Since(started))
	b.logger.Info("Transaction confirmed", "action", action, "tx", tx.Hash())
	onSuccess(detached)
	return nil
}

func (b *Bridge) fail(action entity.Action, started time.Time, err error) error {
	b.metrics.RecordTransaction(action.String(), metrics.StatusFailed, b.clock.Since(started))
	b.logger.Error("Transaction failed", "action", action, "error", err)

	b.mu.Lock()
	b.setErrorFlagLocked(action, failureMessages[action])
	b.mu.Unlock()

	if action == entity.ActionTransferOwnership {
		return &redactedError{message: failureMessages[action], cause: err}
	}
	return err
}

// redactedError reports only a generic message while keeping the cause reachable
// through errors.Is and errors.As.
type redactedError struct {
	message string
	cause   error
}

func (e *redactedError) Error() string { return e.message }

func (e *redactedError) Unwrap() error { return e.cause }

// setErrorFlagLocked raises the flag of action and schedules its removal after ErrorFlagTTL.
// A newer failure restarts the countdown.
func (b *Bridge) setErrorFlagLocked(action entity.Action, message string) {
	if old, ok := b.errorFlags[action]; ok {
		old.timer.Stop()
	}
	flag := &errorFlag{message: message}
	flag.timer = b.clock.AfterFunc(ErrorFlagTTL, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.errorFlags[action] == flag {
			delete(b.errorFlags, action)
		}
	})
	b.errorFlags[action] = flag
}

func (b *Bridge) clearErrorFlagsLocked() {
	for action, flag := range b.errorFlags {
		flag.timer.Stop()
		delete(b.errorFlags, action)
	}
}
