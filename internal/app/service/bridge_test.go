package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"atm_bridge/internal/app/port"
	"atm_bridge/internal/domain/entity"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accountA = "0xF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266"
	accountB = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
)

type harness struct {
	bridge   *Bridge
	detector *fakeDetector
	provider *fakeProvider
	binder   *fakeBinder
	clock    *clock.Mock
}

func newHarness(present bool, accounts ...string) *harness {
	provider := newFakeProvider(accounts...)
	detector := &fakeDetector{provider: provider, present: present}
	binder := &fakeBinder{}
	mock := clock.NewMock()
	bridge := NewBridge(detector, binder, discardLogger(), BridgeConfig{Clock: mock})
	return &harness{bridge: bridge, detector: detector, provider: provider, binder: binder, clock: mock}
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	require.NoError(t, h.bridge.Mount(context.Background()))
}

func TestMount_NoProviderShowsInstallBranch(t *testing.T) {
	h := newHarness(false)
	h.mount(t)

	view := h.bridge.View()
	assert.Equal(t, entity.BranchInstall, view.Branch)
	assert.NotEmpty(t, view.Message)
	assert.Zero(t, h.binder.bindCount())

	err := h.bridge.ConnectAccount(context.Background())
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestMount_PassiveDiscoveryEmptyDoesNotBind(t *testing.T) {
	h := newHarness(true)
	h.mount(t)

	assert.Equal(t, entity.BranchConnect, h.bridge.View().Branch)
	assert.Zero(t, h.binder.bindCount())
	assert.Equal(t, 1, h.provider.calls[port.MethodAccounts])
	assert.Zero(t, h.provider.calls[port.MethodRequestAccounts])
}

func TestMount_PassiveDiscoveryBindsAndRefreshesOnce(t *testing.T) {
	h := newHarness(true, accountA, accountB)
	h.mount(t)

	view := h.bridge.View()
	require.Equal(t, entity.BranchAccount, view.Branch)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", view.Account)
	require.NotNil(t, view.Balance)
	assert.Equal(t, int64(1), *view.Balance)
	assert.True(t, view.BalanceExact)
	assert.Equal(t, "10000.0", view.WalletBalance)

	contractReads, walletReads := h.binder.latest.reads()
	assert.Equal(t, 1, contractReads)
	assert.Equal(t, 1, walletReads)
	assert.Equal(t, []string{"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"}, h.binder.binds)
}

func TestView_DoesNotTriggerRefresh(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)

	for i := 0; i < 5; i++ {
		h.bridge.View()
	}
	contractReads, _ := h.binder.latest.reads()
	assert.Equal(t, 1, contractReads)
}

func TestConnectAccount_RejectedStaysInConnectBranch(t *testing.T) {
	h := newHarness(true)
	h.mount(t)
	h.provider.reject = true

	err := h.bridge.ConnectAccount(context.Background())
	require.NoError(t, err)

	view := h.bridge.View()
	assert.Equal(t, entity.BranchConnect, view.Branch)
	assert.False(t, view.Connecting)
	assert.Zero(t, h.binder.bindCount())
}

func TestConnectAccount_GrantedBindsContract(t *testing.T) {
	h := newHarness(true)
	h.mount(t)
	h.provider.setAccounts(accountB)

	require.NoError(t, h.bridge.ConnectAccount(context.Background()))

	assert.Equal(t, 1, h.provider.calls[port.MethodRequestAccounts])
	assert.Equal(t, entity.BranchAccount, h.bridge.View().Branch)
	assert.Equal(t, []string{accountB}, h.binder.binds)
}

func TestBindFailureLeavesAccountUnset(t *testing.T) {
	h := newHarness(true, accountA)
	h.binder.err = errors.New("bad abi")

	err := h.bridge.Mount(context.Background())
	require.Error(t, err)
	assert.Equal(t, entity.BranchConnect, h.bridge.View().Branch)
	assert.ErrorIs(t, h.bridge.Deposit(context.Background()), ErrNotConnected)
}

func TestDeposit_RefreshesExactlyOnceAfterConfirmation(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest

	require.NoError(t, h.bridge.Deposit(context.Background()))

	contractReads, walletReads := contract.reads()
	assert.Equal(t, 2, contractReads, "one initial refresh plus exactly one after the deposit")
	assert.Equal(t, 2, walletReads)
	assert.Equal(t, []string{"deposit:1"}, contract.submitted)
	assert.Equal(t, int64(2), *h.bridge.View().Balance)
}

func TestWithdrawAndMultiplyUseFixedArguments(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	contract.setBalance(5)

	require.NoError(t, h.bridge.Withdraw(context.Background()))
	require.NoError(t, h.bridge.MultiplyBalance(context.Background()))

	assert.Equal(t, []string{"withdraw:1", "multiply:2"}, contract.submitted)
	assert.Equal(t, int64(8), *h.bridge.View().Balance)
}

func TestMutatingCallsWithoutContractAreNoOps(t *testing.T) {
	h := newHarness(true)
	h.mount(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.bridge.Deposit(ctx), ErrNotConnected)
	assert.ErrorIs(t, h.bridge.Withdraw(ctx), ErrNotConnected)
	assert.ErrorIs(t, h.bridge.MultiplyBalance(ctx), ErrNotConnected)
	assert.ErrorIs(t, h.bridge.TransferOwnership(ctx, accountB), ErrNotConnected)
	assert.ErrorIs(t, h.bridge.RefreshBalances(ctx), ErrNotConnected)
	assert.Empty(t, h.bridge.View().Errors)
}

func TestWithdrawFailureIsCaughtAndKeepsBalance(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	contract.waitErr = errors.New("execution reverted: insufficient balance")

	err := h.bridge.Withdraw(context.Background())
	require.ErrorIs(t, err, ErrTransactionFailed)

	view := h.bridge.View()
	assert.Equal(t, int64(1), *view.Balance)
	assert.Equal(t, "Error: Failed to withdraw", view.Errors[entity.ActionWithdraw])
	contractReads, _ := contract.reads()
	assert.Equal(t, 1, contractReads, "a failed call must not refresh")
}

func TestMultiplyFailureFlagClearsAfterFiveSeconds(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	h.binder.latest.waitErr = errors.New("execution reverted")

	require.Error(t, h.bridge.MultiplyBalance(context.Background()))
	require.Contains(t, h.bridge.View().Errors, entity.ActionMultiplyBalance)

	h.clock.Add(4900 * time.Millisecond)
	assert.Contains(t, h.bridge.View().Errors, entity.ActionMultiplyBalance, "flag cleared before 4.9s")

	h.clock.Add(100 * time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := h.bridge.View().Errors[entity.ActionMultiplyBalance]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestRepeatedFailureRestartsFlagCountdown(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	h.binder.latest.submitErr = errors.New("nonce too low")
	ctx := context.Background()

	require.Error(t, h.bridge.Deposit(ctx))
	h.clock.Add(3 * time.Second)
	require.Error(t, h.bridge.Deposit(ctx))
	h.clock.Add(3 * time.Second)

	assert.Contains(t, h.bridge.View().Errors, entity.ActionDeposit)

	h.clock.Add(2 * time.Second)
	assert.Eventually(t, func() bool {
		return len(h.bridge.View().Errors) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTransferOwnership_InvalidAddressIsStillSubmitted(t *testing.T) {
	h := newHarness(true, accountA)
	h.binder.configure = func(c *fakeContract) {
		c.submitErr = errors.New(`invalid address "not-an-address"`)
	}
	h.mount(t)
	contract := h.binder.latest

	err := h.bridge.TransferOwnership(context.Background(), "not-an-address")
	require.ErrorIs(t, err, ErrTransactionFailed)

	assert.Equal(t, []string{"not-an-address"}, contract.owners)
	view := h.bridge.View()
	msg := view.Errors[entity.ActionTransferOwnership]
	assert.Equal(t, "Error: Failed to transfer ownership", msg)
	assert.NotContains(t, msg, "not-an-address")
	assert.Equal(t, "Error: Failed to transfer ownership", err.Error())
	assert.Empty(t, h.bridge.DrainNotices())
}

func TestTransferOwnership_FailureHidesCause(t *testing.T) {
	h := newHarness(true, accountA)
	cause := errors.New("execution reverted: Ownable: caller is not the owner")
	h.binder.configure = func(c *fakeContract) { c.waitErr = cause }
	h.mount(t)

	err := h.bridge.TransferOwnership(context.Background(), accountB)
	require.Error(t, err)
	assert.Equal(t, "Error: Failed to transfer ownership", err.Error())
	assert.NotContains(t, err.Error(), accountB)
	assert.NotContains(t, err.Error(), "Ownable")
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, cause)
}

func TestDepositFailureKeepsCauseInError(t *testing.T) {
	h := newHarness(true, accountA)
	h.binder.configure = func(c *fakeContract) { c.submitErr = errors.New("nonce too low") }
	h.mount(t)

	err := h.bridge.Deposit(context.Background())
	require.ErrorIs(t, err, ErrTransactionFailed)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestTransferOwnership_SuccessQueuesOneNoticeWithoutRefresh(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest

	require.NoError(t, h.bridge.TransferOwnership(context.Background(), accountB))

	assert.Equal(t, []string{"Ownership transferred to " + accountB}, h.bridge.DrainNotices())
	assert.Empty(t, h.bridge.DrainNotices())
	contractReads, _ := contract.reads()
	assert.Equal(t, 1, contractReads)
}

func TestTransferOwnership_EmptyAddressIsIgnored(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)

	assert.ErrorIs(t, h.bridge.TransferOwnership(context.Background(), "  "), ErrNoOwner)
	assert.Empty(t, h.binder.latest.owners)
}

func TestRefreshBalancesIsIdempotent(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	ctx := context.Background()

	require.NoError(t, h.bridge.RefreshBalances(ctx))
	first := h.bridge.View()
	require.NoError(t, h.bridge.RefreshBalances(ctx))
	second := h.bridge.View()

	assert.Equal(t, first.Balance, second.Balance)
	assert.Equal(t, first.BalanceString, second.BalanceString)
	assert.Equal(t, first.WalletBalance, second.WalletBalance)
}

func TestView_BalanceBeyondInt64IsMarkedInexact(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	contract.mu.Lock()
	contract.balance.Lsh(contract.balance, 80)
	contract.mu.Unlock()

	require.NoError(t, h.bridge.RefreshBalances(context.Background()))

	view := h.bridge.View()
	assert.False(t, view.BalanceExact)
	assert.Nil(t, view.Balance)
	assert.Equal(t, "1208925819614629174706176", view.BalanceString)
}

func TestInFlightActionRejectsReentry(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	gate := make(chan struct{})
	contract.mu.Lock()
	contract.waitGate = gate
	contract.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.bridge.Deposit(context.Background()) }()

	require.Eventually(t, func() bool {
		return len(h.bridge.View().Pending) == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, h.bridge.Deposit(context.Background()), ErrActionInFlight)
	assert.Equal(t, []entity.Action{entity.ActionDeposit}, h.bridge.View().Pending)

	close(gate)
	require.NoError(t, <-done)
	assert.Empty(t, h.bridge.View().Pending)
	assert.Equal(t, []string{"deposit:1"}, contract.submitted)
}

func TestConfirmationTimeoutLandsInFailurePath(t *testing.T) {
	provider := newFakeProvider(accountA)
	binder := &fakeBinder{}
	mock := clock.NewMock()
	bridge := NewBridge(&fakeDetector{provider: provider, present: true}, binder, discardLogger(),
		BridgeConfig{Clock: mock, ConfirmationTimeout: time.Minute})
	require.NoError(t, bridge.Mount(context.Background()))
	started := make(chan struct{}, 1)
	binder.latest.mu.Lock()
	binder.latest.waitGate = make(chan struct{})
	binder.latest.waitStarted = started
	binder.latest.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- bridge.Deposit(context.Background()) }()
	<-started

	mock.Add(time.Minute)
	err := <-done
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, bridge.View().Errors, entity.ActionDeposit)
}

func TestCallerCancellationDoesNotAbandonSubmittedTransaction(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	contract.mu.Lock()
	contract.waitGate = gate
	contract.waitStarted = started
	contract.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bridge.Deposit(ctx) }()
	<-started

	cancel()
	assert.Equal(t, []entity.Action{entity.ActionDeposit}, h.bridge.View().Pending)
	close(gate)

	require.NoError(t, <-done)
	contractReads, walletReads := contract.reads()
	assert.Equal(t, 2, contractReads, "one initial refresh plus exactly one after the deposit")
	assert.Equal(t, 2, walletReads)
	view := h.bridge.View()
	assert.Empty(t, view.Errors)
	assert.Empty(t, view.Pending)
	assert.Equal(t, int64(2), *view.Balance)
}

func TestOverlappingRefreshesKeepLatestRead(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	contract := h.binder.latest
	contract.setBalance(5)
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	contract.mu.Lock()
	contract.readGate = gate
	contract.readStarted = started
	contract.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- h.bridge.RefreshBalances(context.Background()) }()
	<-started

	contract.setBalance(7)
	require.NoError(t, h.bridge.RefreshBalances(context.Background()))
	require.Equal(t, int64(7), *h.bridge.View().Balance)

	close(gate)
	require.NoError(t, <-done)
	view := h.bridge.View()
	assert.Equal(t, int64(7), *view.Balance, "an older refresh must not overwrite a newer one")
	assert.Equal(t, "7", view.BalanceString)
	assert.Equal(t, "10000.0", view.WalletBalance)
}

func TestAccountChangeRebindsContract(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)
	first := h.binder.latest

	h.provider.setAccounts(accountB)
	require.NoError(t, h.bridge.DiscoverAccounts(context.Background()))

	second := h.binder.latest
	require.NotSame(t, first, second)
	assert.Equal(t, accountB, h.bridge.View().Account)

	require.NoError(t, h.bridge.Deposit(context.Background()))
	assert.Empty(t, first.submitted)
	assert.Equal(t, []string{"deposit:1"}, second.submitted)
	assert.Zero(t, h.binder.violationCount())
}

func TestSameAccountDoesNotRebind(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)

	require.NoError(t, h.bridge.DiscoverAccounts(context.Background()))
	assert.Equal(t, 1, h.binder.bindCount())
}

func TestRevokedAccountDisconnects(t *testing.T) {
	h := newHarness(true, accountA)
	h.mount(t)

	h.provider.setAccounts()
	require.NoError(t, h.bridge.DiscoverAccounts(context.Background()))
	assert.Equal(t, entity.BranchConnect, h.bridge.View().Branch)
	assert.ErrorIs(t, h.bridge.Deposit(context.Background()), ErrNotConnected)
}

func TestWatchAccountsPicksUpNewAccount(t *testing.T) {
	h := newHarness(true)
	h.mount(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bridge.WatchAccounts(ctx, time.Second) }()

	h.provider.setAccounts(accountB)
	assert.Eventually(t, func() bool {
		h.clock.Add(time.Second)
		return h.bridge.View().Branch == entity.BranchAccount
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// TestContractNeverUsedBeforeProviderAndAccount drives the bridge with random call
// orderings and checks that no contract handle is created without a provider and an
// account, and that only the most recently bound handle is ever used.
func TestContractNeverUsedBeforeProviderAndAccount(t *testing.T) {
	allowed := []error{ErrNoProvider, ErrNotConnected, ErrActionInFlight, ErrTransactionFailed, ErrNoOwner}

	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(rng.Intn(2) == 0)
		ctx := context.Background()

		for step := 0; step < 60; step++ {
			var err error
			switch rng.Intn(11) {
			case 0:
				err = h.bridge.Mount(ctx)
			case 1:
				err = h.bridge.DiscoverAccounts(ctx)
			case 2:
				err = h.bridge.ConnectAccount(ctx)
			case 3:
				err = h.bridge.Deposit(ctx)
			case 4:
				err = h.bridge.Withdraw(ctx)
			case 5:
				err = h.bridge.MultiplyBalance(ctx)
			case 6:
				err = h.bridge.TransferOwnership(ctx, accountB)
			case 7:
				err = h.bridge.RefreshBalances(ctx)
			case 8:
				switch rng.Intn(3) {
				case 0:
					h.provider.setAccounts()
				case 1:
					h.provider.setAccounts(accountA)
				default:
					h.provider.setAccounts(accountB)
				}
			case 9:
				h.provider.mu.Lock()
				h.provider.reject = !h.provider.reject
				h.provider.mu.Unlock()
			case 10:
				h.detector.present = !h.detector.present
			}

			if err != nil {
				matched := false
				for _, e := range allowed {
					if errors.Is(err, e) {
						matched = true
						break
					}
				}
				require.True(t, matched, "seed %d step %d: unexpected error %v", seed, step, err)
			}

			view := h.bridge.View()
			if view.Branch != entity.BranchAccount {
				assert.Empty(t, view.Account, "seed %d step %d", seed, step)
			}
		}

		assert.Zero(t, h.binder.violationCount(), "seed %d", seed)
	}
}
