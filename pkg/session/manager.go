package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"walletd/pkg/balance"
	"walletd/pkg/ledger"
	"walletd/pkg/metrics"
	"walletd/pkg/models"
	"walletd/pkg/network"
	"walletd/pkg/provider"
	"walletd/pkg/store"
	"walletd/pkg/submit"

	"github.com/shopspring/decimal"
)

// DefaultRefreshDelay is how long after a send the balance is refreshed.
const DefaultRefreshDelay = 5 * time.Second

// ErrSuperseded is returned by Connect when a disconnect or newer connect
// replaced it before it completed.
var ErrSuperseded = errors.New("connect superseded")

// State of the wallet connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Registry          *network.Registry
	Notifier          Notifier
	Metrics           *metrics.Metrics
	RefreshDelay      time.Duration
	ReconcileInterval time.Duration
}

// Manager owns the single wallet session. State transitions are serialized;
// provider calls run without holding any lock and their results are applied
// only if the identity generation they started under is still current.
type Manager struct {
	provider   provider.Provider
	store      *Store
	ledger     *ledger.Ledger
	reconciler *ledger.Reconciler
	balances   *balance.Refresher
	submitter  *submit.Submitter
	registry   *network.Registry
	notifier   Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	refreshDelay time.Duration

	// opMu serializes transitions; mu guards the fields below it.
	opMu         sync.Mutex
	mu           sync.RWMutex
	state        State
	session      models.Session
	restored     models.Session
	gen          uint64
	runCtx       context.Context
	refreshTimer *time.Timer

	// Identity changes reported while Connecting, applied when the connect commits.
	pendingAccounts []string
	pendingChainID  string

	subMu       sync.RWMutex
	subscribers []Subscriber
}

// New creates a disconnected Manager. p may be nil when no signing provider is
// installed. A previously persisted session is kept as a hint only.
func New(p provider.Provider, kv store.Store, opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = network.NewRegistry()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}

	m := &Manager{
		provider:     p,
		store:        NewStore(kv),
		ledger:       ledger.New(kv, opts.Metrics),
		registry:     opts.Registry,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		logger:       slog.Default().With("component", "session"),
		refreshDelay: opts.RefreshDelay,
		state:        Disconnected,
		session:      models.EmptySession(),
		runCtx:       context.Background(),
	}
	m.balances = balance.NewRefresher(p)
	m.reconciler = ledger.NewReconciler(m.ledger, p, opts.ReconcileInterval)
	m.submitter = submit.New(p, m, m.ledger, opts.Metrics)
	m.ledger.OnChange(func(string) { m.notify(EventTransactionsUpdated, "") })

	m.restored = m.store.Load()
	if m.restored.Connected {
		m.logger.Info("previous session found, reconnect required", "address", m.restored.Address)
	}
	return m
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (m *Manager) Subscribe() Subscriber {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	ch := make(Subscriber, 100)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (m *Manager) Unsubscribe(ch Subscriber) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (m *Manager) notify(t EventType, errMsg string) {
	ev := Event{Type: t, Session: m.Session(), Error: errMsg}
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, sub := range m.subscribers {
		select {
		case sub <- ev:
		default:
			// Slow subscribers miss events rather than stall the session.
		}
	}
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the session together with its identity generation.
func (m *Manager) Identity() (models.Session, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, m.gen
}

// Restored returns the session persisted by a previous run. It is never trusted
// without a fresh Connect.
func (m *Manager) Restored() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restored
}

// Transactions returns the active ledger, most recent first.
func (m *Manager) Transactions() []models.Transaction {
	return m.ledger.All()
}

// FilteredTransactions returns the active ledger entries matching f.
func (m *Manager) FilteredTransactions(f ledger.Filter) []models.Transaction {
	return m.ledger.Filter(f)
}

// ExplorerURL returns the block explorer page of hash on the current network.
func (m *Manager) ExplorerURL(hash string) string {
	return m.registry.ExplorerTxURL(m.Session().Network, hash)
}

// Connect establishes a session with the provider's first authorized account.
// Any prior session is cleared first, even when already connected.
func (m *Manager) Connect(ctx context.Context) error {
	m.opMu.Lock()
	m.resetLocked()
	m.mu.Lock()
	m.state = Connecting
	gen := m.gen
	m.mu.Unlock()
	m.opMu.Unlock()

	if m.provider == nil {
		return m.fail(gen, provider.ErrProviderUnavailable)
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return m.fail(gen, provider.Classify(err))
	}
	if len(accounts) == 0 {
		return m.fail(gen, fmt.Errorf("%w: no accounts returned", provider.ErrInvalidAddress))
	}
	address := accounts[0]
	if !models.ValidAddress(address) {
		return m.fail(gen, fmt.Errorf("%w: %q", provider.ErrInvalidAddress, address))
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return m.fail(gen, provider.Classify(err))
	}
	sess := models.Session{
		Connected: true,
		Address:   address,
		Network:   m.registry.NameFor(chainID),
		Balance:   m.balances.Fetch(ctx, address),
	}

	m.opMu.Lock()
	if m.generation() != gen {
		m.opMu.Unlock()
		m.logger.Info("connect superseded", "address", address)
		return ErrSuperseded
	}
	m.mu.Lock()
	pendingAccounts, pendingChainID := m.pendingAccounts, m.pendingChainID
	m.pendingAccounts, m.pendingChainID = nil, ""
	m.mu.Unlock()
	if pendingChainID != "" {
		sess.Network = m.registry.NameFor(pendingChainID)
	}
	swapped := false
	if len(pendingAccounts) > 0 && !models.SameAddress(pendingAccounts[0], address) {
		if !models.ValidAddress(pendingAccounts[0]) {
			m.opMu.Unlock()
			return m.fail(gen, fmt.Errorf("%w: %q", provider.ErrInvalidAddress, pendingAccounts[0]))
		}
		m.logger.Info("account changed while connecting", "from", address, "to", pendingAccounts[0])
		address = pendingAccounts[0]
		sess.Address = address
		sess.Balance = models.UnknownBalance
		swapped = true
	}
	if err := m.store.Save(sess); err != nil {
		m.opMu.Unlock()
		return m.fail(gen, err)
	}
	m.ledger.Load(address)
	m.reconciler.Watch(m.baseCtx(), address)
	m.mu.Lock()
	m.session = sess
	m.state = Connected
	m.mu.Unlock()
	m.opMu.Unlock()

	m.metrics.Connects.Inc(1)
	m.logger.Info("wallet connected", "address", address, "network", sess.Network, "balance", sess.Balance)
	m.notifier.Success("Wallet connected")
	m.notify(EventConnected, "")
	if swapped {
		m.refreshBalance(ctx, gen)
	}
	return nil
}

// fail aborts the connect started under gen and reports err.
func (m *Manager) fail(gen uint64, err error) error {
	m.opMu.Lock()
	if m.generation() == gen {
		m.resetLocked()
	}
	m.opMu.Unlock()

	m.metrics.ConnectFailures.Inc(1)
	m.logger.Warn("connect failed", "error", err)
	msg := provider.Describe(err)
	if errors.Is(err, provider.ErrInvalidAddress) {
		msg = "Invalid wallet address format"
	}
	m.notifier.Error(msg)
	m.notify(EventError, msg)
	return err
}

// Disconnect clears the session from any state. It is safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	wasActive := m.State() != Disconnected
	m.resetLocked()
	m.opMu.Unlock()

	if !wasActive {
		return
	}
	m.metrics.Disconnects.Inc(1)
	m.logger.Info("wallet disconnected")
	m.notifier.Info("Wallet disconnected")
	m.notify(EventDisconnected, "")
}

// ClearCache removes the persisted session and login keys.
func (m *Manager) ClearCache() error {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing cache failed", "error", err)
		return err
	}
	return nil
}

// resetLocked returns to the empty, disconnected session. opMu must be held.
func (m *Manager) resetLocked() {
	m.reconciler.Stop()
	m.ledger.Unload()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing persisted session failed", "error", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.gen++
	m.state = Disconnected
	m.session = models.EmptySession()
	m.pendingAccounts = nil
	m.pendingChainID = ""
}

// SendTransaction sends amount (decimal ether) to to with an optional note.
func (m *Manager) SendTransaction(ctx context.Context, to, amount, note string) (string, error) {
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", submit.ErrInvalidAmount, err)
	}
	hash, err := m.submitter.Send(ctx, to, value, note)
	if err != nil {
		msg := err.Error()
		m.notifier.Error(msg)
		m.notify(EventError, msg)
		return "", err
	}
	m.notifier.Success("Transaction sent: " + hash)
	return hash, nil
}

// RefreshBalance re-reads the balance of the connected address.
func (m *Manager) RefreshBalance(ctx context.Context) error {
	sess, gen := m.Identity()
	if !sess.Connected {
		return submit.ErrNotConnected
	}
	m.refreshBalance(ctx, gen)
	return nil
}

// ScheduleBalanceRefresh refreshes the balance after the configured delay,
// provided the identity generation is still gen by then.
func (m *Manager) ScheduleBalanceRefresh(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	ctx := m.runCtx
	m.refreshTimer = time.AfterFunc(m.refreshDelay, func() {
		m.refreshBalance(ctx, gen)
	})
}

func (m *Manager) refreshBalance(ctx context.Context, gen uint64) {
	m.mu.RLock()
	address, current := m.session.Address, m.gen
	connected := m.state == Connected
	m.mu.RUnlock()
	if current != gen || !connected {
		return
	}

	bal := m.balances.Fetch(ctx, address)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Debug("discarding balance for superseded session", "address", address)
		return
	}
	m.session.Balance = bal
	m.mu.Unlock()
	m.notify(EventBalanceUpdated, "")
}

// Run processes provider events in arrival order until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	if m.provider == nil {
		<-ctx.Done()
		return
	}
	events := m.provider.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies a single provider event.
func (m *Manager) HandleEvent(ctx context.Context, ev models.ProviderEvent) {
	switch ev.Type {
	case models.AccountsChanged:
		m.accountsChanged(ctx, ev.Accounts)
	case models.ChainChanged:
		m.chainChanged(ctx, ev.ChainID)
	default:
		m.logger.Debug("ignoring provider event", "type", ev.Type)
	}
}

func (m *Manager) accountsChanged(ctx context.Context, accounts []string) {
	if len(accounts) == 0 {
		if m.State() != Disconnected {
			m.logger.Info("provider revoked all accounts")
			m.Disconnect()
		}
		return
	}

	next := accounts[0]
	m.opMu.Lock()
	sess := m.Session()
	if m.State() == Connecting {
		m.mu.Lock()
		m.pendingAccounts = append([]string(nil), accounts...)
		m.mu.Unlock()
		m.opMu.Unlock()
		m.logger.Debug("account change deferred until connected", "address", next)
		return
	}
	if m.State() != Connected {
		m.opMu.Unlock()
		m.logger.Debug("ignoring account change while not connected", "address", next)
		return
	}
	if models.SameAddress(next, sess.Address) {
		m.opMu.Unlock()
		return
	}
	if !models.ValidAddress(next) {
		m.resetLocked()
		m.opMu.Unlock()
		err := fmt.Errorf("%w: %q", provider.ErrInvalidAddress, next)
		m.logger.Warn("disconnecting after account change", "error", err)
		m.notifier.Error("Invalid wallet address format")
		m.notify(EventDisconnected, err.Error())
		return
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	m.session.Address = next
	m.session.Balance = models.UnknownBalance
	sess = m.session
	m.mu.Unlock()

	if err := m.store.Save(sess); err != nil {
		m.logger.Warn("persisting switched account failed", "error", err)
	}
	m.ledger.Load(next)
	m.reconciler.Watch(m.baseCtx(), next)
	m.opMu.Unlock()

	m.metrics.AccountSwitches.Inc(1)
	m.logger.Info("account switched", "address", next)
	m.notifier.Info("Account changed")
	m.notify(EventAccountChanged, "")

	m.refreshBalance(ctx, gen)
}

func (m *Manager) chainChanged(ctx context.Context, chainID string) {
	name := m.registry.NameFor(chainID)

	m.opMu.Lock()
	m.mu.Lock()
	connected := m.state == Connected
	if connected {
		m.gen++
	}
	if m.state == Connecting {
		m.pendingChainID = chainID
	}
	gen := m.gen
	m.session.Network = name
	m.mu.Unlock()
	if connected {
		m.ledger.ResetBaseline()
	}
	m.opMu.Unlock()

	m.logger.Info("network changed", "chain_id", chainID, "network", name)
	m.notify(EventNetworkChanged, "")
	if connected {
		m.refreshBalance(ctx, gen)
	}
}

// Close stops background work without clearing the persisted session.
func (m *Manager) Close() {
	m.reconciler.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

func (m *Manager) baseCtx() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runCtx
}
