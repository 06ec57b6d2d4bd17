package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"atm_bridge/internal/app/port"
)

var errRejected = errors.New("user rejected the request")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDetector returns provider when present is true.
type fakeDetector struct {
	provider *fakeProvider
	present  bool
}

func (d *fakeDetector) Detect(context.Context) (port.WalletProvider, bool) {
	if !d.present {
		return nil, false
	}
	return d.provider, true
}

// fakeProvider answers both account methods from the same list unless reject is set,
// in which case eth_requestAccounts fails.
type fakeProvider struct {
	mu       sync.Mutex
	accounts []string
	reject   bool
	calls    map[string]int
}

func newFakeProvider(accounts ...string) *fakeProvider {
	return &fakeProvider{accounts: accounts, calls: make(map[string]int)}
}

func (p *fakeProvider) RequestAccounts(_ context.Context, method string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[method]++
	if method == port.MethodRequestAccounts && p.reject {
		return nil, errRejected
	}
	return append([]string(nil), p.accounts...), nil
}

func (p *fakeProvider) setAccounts(accounts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = accounts
}

// fakeBinder hands out fakeContracts and records every bind.
type fakeBinder struct {
	mu         sync.Mutex
	binds      []string
	latest     *fakeContract
	violations int
	err        error
	configure  func(c *fakeContract)
}

func (b *fakeBinder) Bind(_ context.Context, provider port.WalletProvider, account string) (port.ATMContract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if provider == nil || account == "" {
		b.violations++
	}
	if b.err != nil {
		return nil, b.err
	}
	c := newFakeContract(account, b)
	if b.configure != nil {
		b.configure(c)
	}
	b.binds = append(b.binds, account)
	b.latest = c
	return c, nil
}

func (b *fakeBinder) bindCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.binds)
}

func (b *fakeBinder) checkCurrent(c *fakeContract) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest != c {
		b.violations++
	}
}

func (b *fakeBinder) violationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.violations
}

// fakeContract keeps an in-memory ATM balance and counts reads and writes.
type fakeContract struct {
	mu      sync.Mutex
	binder  *fakeBinder
	account string
	balance *big.Int
	wei     *big.Int

	balanceReads int
	walletReads  int
	submitted    []string
	owners       []string

	submitErr error
	waitErr   error
	// waitGate, when set, blocks Wait until it is closed.
	waitGate chan struct{}
	// waitStarted, when set, receives a value each time Wait begins.
	waitStarted chan struct{}
	// readGate holds the next GetBalance after it has read the balance; readStarted
	// is signalled once that read is taken. Both apply to a single call.
	readGate    chan struct{}
	readStarted chan struct{}
}

func newFakeContract(account string, binder *fakeBinder) *fakeContract {
	wei, _ := new(big.Int).SetString("10000000000000000000000", 10)
	return &fakeContract{account: account, binder: binder, balance: big.NewInt(1), wei: wei}
}

func (c *fakeContract) Account() string { return c.account }

func (c *fakeContract) GetBalance(context.Context) (*big.Int, error) {
	c.binder.checkCurrent(c)
	c.mu.Lock()
	c.balanceReads++
	value := new(big.Int).Set(c.balance)
	gate, started := c.readGate, c.readStarted
	c.readGate, c.readStarted = nil, nil
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return value, nil
}

func (c *fakeContract) NativeBalance(context.Context) (*big.Int, error) {
	c.binder.checkCurrent(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletReads++
	return new(big.Int).Set(c.wei), nil
}

func (c *fakeContract) submit(name string, apply func()) (port.Transaction, error) {
	c.binder.checkCurrent(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, name)
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return &fakeTx{contract: c, hash: "0xfeed", apply: apply}, nil
}

func (c *fakeContract) Deposit(_ context.Context, amount *big.Int) (port.Transaction, error) {
	return c.submit("deposit:"+amount.String(), func() { c.balance.Add(c.balance, amount) })
}

func (c *fakeContract) Withdraw(_ context.Context, amount *big.Int) (port.Transaction, error) {
	return c.submit("withdraw:"+amount.String(), func() { c.balance.Sub(c.balance, amount) })
}

func (c *fakeContract) MultiplyBalance(_ context.Context, factor *big.Int) (port.Transaction, error) {
	return c.submit("multiply:"+factor.String(), func() { c.balance.Mul(c.balance, factor) })
}

func (c *fakeContract) TransferOwnership(_ context.Context, newOwner string) (port.Transaction, error) {
	c.mu.Lock()
	c.owners = append(c.owners, newOwner)
	c.mu.Unlock()
	return c.submit("transferOwnership", func() {})
}

func (c *fakeContract) reads() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceReads, c.walletReads
}

func (c *fakeContract) setBalance(v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = big.NewInt(v)
}

type fakeTx struct {
	contract *fakeContract
	hash     string
	apply    func()
}

func (t *fakeTx) Hash() string { return t.hash }

func (t *fakeTx) Wait(ctx context.Context) error {
	t.contract.mu.Lock()
	gate := t.contract.waitGate
	started := t.contract.waitStarted
	t.contract.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.contract.mu.Lock()
	defer t.contract.mu.Unlock()
	if t.contract.waitErr != nil {
		return t.contract.waitErr
	}
	t.apply()
	return nil
}
