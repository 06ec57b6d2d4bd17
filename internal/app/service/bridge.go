package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"atm_bridge/internal/app/port"
	"atm_bridge/internal/domain/entity"
	"atm_bridge/internal/pkg/metrics"
	"atm_bridge/internal/pkg/utils"

	"github.com/benbjohnson/clock"
)

const (
	installMessage = "Please install a wallet provider in order to use this ATM."
	connectMessage = "Please connect your wallet."
)

var _ port.ATMService = (*Bridge)(nil)

// BridgeConfig holds the tunables of a Bridge. Zero values are valid.
type BridgeConfig struct {
	// ConfirmationTimeout bounds the wait for a transaction to be mined. Zero disables it.
	ConfirmationTimeout time.Duration
	// Clock drives error-flag expiry and account polling. Defaults to the wall clock.
	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Bridge mediates between a wallet provider and the deployed ATM contract.
type Bridge struct {
	detector port.ProviderDetector
	binder   port.ContractBinder
	logger   port.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock

	confirmationTimeout time.Duration

	mu         sync.Mutex
	state      connectionState
	pending    map[entity.Action]bool
	errorFlags map[entity.Action]*errorFlag
	notices    []string
}

// NewBridge creates a Bridge in the unavailable state. Call Mount to detect the provider.
func NewBridge(
	detector port.ProviderDetector,
	binder port.ContractBinder,
	logger port.Logger,
	cfg BridgeConfig,
) *Bridge {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	b := &Bridge{
		detector:            detector,
		binder:              binder,
		logger:              logger,
		metrics:             cfg.Metrics,
		clock:               clk,
		confirmationTimeout: cfg.ConfirmationTimeout,
		state:               unavailable{},
		pending:             make(map[entity.Action]bool),
		errorFlags:          make(map[entity.Action]*errorFlag),
	}
	b.metrics.SetConnectionState(b.state.name(), stateNames...)
	return b
}

// setStateLocked must be called with b.mu held.
func (b *Bridge) setStateLocked(s connectionState) {
	if b.state.name() != s.name() {
		b.logger.Debug("Connection state changed", "from", b.state.name(), "to", s.name())
	}
	b.state = s
	b.metrics.SetConnectionState(s.name(), stateNames...)
}

// Mount detects the wallet provider and, if one is present, looks for an already authorized account.
func (b *Bridge) Mount(ctx context.Context) error {
	provider, ok := b.detector.Detect(ctx)
	b.mu.Lock()
	if !ok {
		b.setStateLocked(unavailable{})
		b.mu.Unlock()
		b.logger.Info("No wallet provider detected")
		return nil
	}
	b.setStateLocked(&disconnected{provider: provider})
	b.mu.Unlock()

	b.logger.Info("Wallet provider detected")
	return b.DiscoverAccounts(ctx)
}

// DiscoverAccounts asks the provider for already authorized accounts without prompting.
func (b *Bridge) DiscoverAccounts(ctx context.Context) error {
	b.mu.Lock()
	provider := providerOf(b.state)
	b.mu.Unlock()
	if provider == nil {
		return nil
	}

	accounts, err := provider.RequestAccounts(ctx, port.MethodAccounts)
	if err != nil {
		b.logger.Warn("Failed to list authorized accounts", "error", err)
		accounts = nil
	}
	return b.handleAccounts(ctx, provider, accounts)
}

// ConnectAccount requests account authorization from the provider. A rejected request
// leaves the bridge without an account and is not reported as an error.
func (b *Bridge) ConnectAccount(ctx context.Context) error {
	b.mu.Lock()
	var provider port.WalletProvider
	switch s := b.state.(type) {
	case unavailable:
		b.mu.Unlock()
		return ErrNoProvider
	case *connected:
		b.mu.Unlock()
		b.logger.Debug("Account already connected", "account", s.account)
		return nil
	case *connecting:
		b.mu.Unlock()
		return ErrActionInFlight
	case *disconnected:
		provider = s.provider
		b.setStateLocked(&connecting{provider: provider})
	}
	b.mu.Unlock()

	accounts, err := provider.RequestAccounts(ctx, port.MethodRequestAccounts)
	if err != nil {
		b.logger.Warn("Account authorization was not granted", "error", err)
		accounts = nil
	}
	return b.handleAccounts(ctx, provider, accounts)
}

// handleAccounts normalizes a provider answer and binds the contract for a new account.
func (b *Bridge) handleAccounts(ctx context.Context, provider port.WalletProvider, accounts []string) error {
	account := normalizeAccount(accounts)

	b.mu.Lock()
	if providerOf(b.state) != provider {
		// The provider went away while the request was running.
		b.mu.Unlock()
		return nil
	}
	if account == "" {
		b.logger.Info("No account found")
		if _, wasConnected := b.state.(*connected); wasConnected {
			b.logger.Warn("Previously connected account is no longer authorized")
			b.clearErrorFlagsLocked()
		}
		b.setStateLocked(&disconnected{provider: provider})
		b.mu.Unlock()
		return nil
	}
	if c, ok := b.state.(*connected); ok && c.account == account {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	b.logger.Info("Account connected", "account", account)
	return b.bind(ctx, provider, account)
}

func normalizeAccount(accounts []string) string {
	if len(accounts) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(accounts[0]))
}

// bind creates a contract handle for account and triggers the initial refresh once the
// handle is available.
func (b *Bridge) bind(ctx context.Context, provider port.WalletProvider, account string) error {
	contract, err := b.binder.Bind(ctx, provider, account)
	if err != nil {
		b.mu.Lock()
		if providerOf(b.state) == provider {
			b.setStateLocked(&disconnected{provider: provider})
		}
		b.mu.Unlock()
		b.logger.Error("Failed to bind ATM contract", "account", account, "error", err)
		return fmt.Errorf("failed to bind ATM contract for %s: %w", account, err)
	}

	b.mu.Lock()
	if providerOf(b.state) != provider {
		b.mu.Unlock()
		return nil
	}
	b.clearErrorFlagsLocked()
	b.setStateLocked(&connected{provider: provider, account: account, contract: contract})
	b.mu.Unlock()

	b.logger.Info("ATM contract bound", "account", account)
	if err := b.RefreshBalances(ctx); err != nil {
		b.logger.Warn("Initial balance refresh failed", "account", account, "error", err)
	}
	return nil
}

// RefreshBalances reads the contract balance and then the native wallet balance of the
// connected account. Results of a handle that was replaced meanwhile are discarded.
func (b *Bridge) RefreshBalances(ctx context.Context) error {
	b.mu.Lock()
	c, ok := b.state.(*connected)
	if !ok {
		b.mu.Unlock()
		return ErrNotConnected
	}
	c.refreshSeq++
	seq := c.refreshSeq
	b.mu.Unlock()

	// Only the most recently started refresh of the current handle may apply its reads.
	latestLocked := func() bool {
		return b.state == connectionState(c) && c.refreshSeq == seq
	}

	contractBalance, err := c.contract.GetBalance(ctx)
	if err != nil {
		b.metrics.RecordRefresh(metrics.StatusFailed)
		return fmt.Errorf("failed to read ATM balance: %w", err)
	}

	b.mu.Lock()
	if !latestLocked() {
		b.mu.Unlock()
		b.logger.Debug("Discarding superseded balance read", "account", c.account)
		return nil
	}
	balances := entity.Balances{Contract: contractBalance}
	if c.balances != nil {
		balances.Wallet = c.balances.Wallet
		balances.FormattedWallet = c.balances.FormattedWallet
	}
	c.balances = &balances
	b.mu.Unlock()

	wei, err := c.contract.NativeBalance(ctx)
	if err != nil {
		b.metrics.RecordRefresh(metrics.StatusFailed)
		return fmt.Errorf("failed to read wallet balance of %s: %w", c.account, err)
	}
	formatted := utils.FormatEther(wei)

	b.mu.Lock()
	if !latestLocked() {
		b.mu.Unlock()
		b.logger.Debug("Discarding superseded wallet balance read", "account", c.account)
		return nil
	}
	c.balances = &entity.Balances{Contract: contractBalance, Wallet: wei, FormattedWallet: formatted}
	b.mu.Unlock()

	b.metrics.RecordRefresh(metrics.StatusOK)
	b.logger.Debug("Balances refreshed", "account", c.account, "atm_balance", contractBalance.String(), "wallet_balance", formatted)
	return nil
}

// WatchAccounts polls the provider for the authorized account every interval and rebinds
// the contract when it changes. It returns when ctx is done.
func (b *Bridge) WatchAccounts(ctx context.Context, interval time.Duration) error {
	ticker := b.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.DiscoverAccounts(ctx); err != nil {
				b.logger.Warn("Account poll failed", "error", err)
			}
		}
	}
}

// View derives the render decision from the current state. It has no side effects.
func (b *Bridge) View() entity.View {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch s := b.state.(type) {
	case *disconnected:
		return entity.View{Branch: entity.BranchConnect, Message: connectMessage}
	case *connecting:
		return entity.View{Branch: entity.BranchConnect, Message: connectMessage, Connecting: true}
	case *connected:
		v := entity.View{Branch: entity.BranchAccount, Account: s.account}
		if s.balances != nil {
			narrowed, exact := s.balances.ContractDisplay()
			if exact {
				v.Balance = &narrowed
			}
			v.BalanceExact = exact
			if s.balances.Contract != nil {
				v.BalanceString = s.balances.Contract.String()
			}
			v.WalletBalance = s.balances.FormattedWallet
		}
		for _, action := range entity.Actions {
			if b.pending[action] {
				v.Pending = append(v.Pending, action)
			}
		}
		if len(b.errorFlags) > 0 {
			v.Errors = make(map[entity.Action]string, len(b.errorFlags))
			for action, flag := range b.errorFlags {
				v.Errors[action] = flag.message
			}
		}
		return v
	default:
		return entity.View{Branch: entity.BranchInstall, Message: installMessage}
	}
}

// DrainNotices returns one-time confirmations and forgets them.
func (b *Bridge) DrainNotices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	notices := b.notices
	b.notices = nil
	return notices
}
