package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"walletd/pkg/metrics"
	"walletd/pkg/models"
	"walletd/pkg/provider"
	"walletd/pkg/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MaxEntries bounds every per-address history; the oldest entries are evicted first.
	MaxEntries = 50

	// KeyPrefix precedes the lowercased address in persisted ledger keys.
	KeyPrefix = "transactions_"

	scanLookback = 10
	scanWindow   = 100
)

// Filter selects ledger entries by direction.
type Filter string

const (
	FilterAll Filter = "all"
	FilterIn  Filter = "in"
	FilterOut Filter = "out"
)

// Scanner is the chain access needed for reconciliation.
type Scanner interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTransfers(ctx context.Context, n uint64) ([]models.Transfer, error)
	Receipt(ctx context.Context, hash string) (*models.Receipt, error)
}

// Ledger owns the transaction history of the active address. Only one
// address partition is held in memory at a time.
type Ledger struct {
	mu       sync.Mutex
	store    store.Store
	metrics  *metrics.Metrics
	onChange func(address string)
	logger   *slog.Logger
	now      func() time.Time

	address     string
	entries     []models.Transaction
	gen         uint64
	lastChecked uint64
	hasBaseline bool
}

// New returns a ledger with no active address. m may be nil.
func New(s store.Store, m *metrics.Metrics) *Ledger {
	return &Ledger{
		store:   s,
		metrics: m,
		logger:  slog.Default().With("component", "ledger"),
		now:     time.Now,
	}
}

// Key returns the store key of address's partition.
func Key(address string) string {
	return KeyPrefix + strings.ToLower(address)
}

// OnChange registers fn to be called after the active partition changes.
func (l *Ledger) OnChange(fn func(address string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

// Load makes address the active partition, replacing whatever was loaded.
func (l *Ledger) Load(address string) {
	l.mu.Lock()
	entries := l.read(address)
	l.address = address
	l.entries = entries
	l.gen++
	l.lastChecked = 0
	l.hasBaseline = false
	fn := l.onChange
	l.mu.Unlock()

	l.logger.Info("ledger loaded", "address", address, "entries", len(entries))
	if fn != nil {
		fn(address)
	}
}

// Unload drops the active partition from memory. Persisted data is kept.
func (l *Ledger) Unload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.address = ""
	l.entries = nil
	l.gen++
	l.hasBaseline = false
}

// Address returns the active address, or "" when nothing is loaded.
func (l *Ledger) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// ResetBaseline forgets the last scanned block, e.g. after a chain switch.
func (l *Ledger) ResetBaseline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastChecked = 0
	l.hasBaseline = false
}

// All returns a most-recent-first copy of the active history.
func (l *Ledger) All() []models.Transaction {
	return l.Filter(FilterAll)
}

// Filter returns the entries matching f, most recent first.
func (l *Ledger) Filter(f Filter) []models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Transaction, 0, len(l.entries))
	for _, tx := range l.entries {
		switch {
		case f == FilterIn && tx.Direction != models.DirectionReceived:
			continue
		case f == FilterOut && tx.Direction != models.DirectionSent:
			continue
		}
		out = append(out, cloneTx(tx))
	}
	return out
}

// Append records tx in the active partition. It reports false when an entry
// with the same hash already exists.
func (l *Ledger) Append(tx models.Transaction) (bool, error) {
	l.mu.Lock()
	address := l.address
	l.mu.Unlock()
	if address == "" {
		return false, fmt.Errorf("append %s: no active address", tx.Hash)
	}
	return l.AppendTo(address, tx)
}

// AppendTo records tx in address's partition. When address is not the active
// one the persisted partition is updated without touching the in-memory view.
// Every read-modify-write of a partition happens under the ledger mutex.
func (l *Ledger) AppendTo(address string, tx models.Transaction) (bool, error) {
	l.fill(&tx)

	l.mu.Lock()
	if !models.SameAddress(address, l.address) {
		defer l.mu.Unlock()
		entries, added := insert(l.read(address), tx)
		if !added {
			return false, nil
		}
		return true, l.write(address, entries)
	}

	var added bool
	l.entries, added = insert(l.entries, tx)
	if !added {
		l.mu.Unlock()
		return false, nil
	}
	err := l.write(address, l.entries)
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(address)
	}
	return true, err
}

// UpdateStatus sets the status and block number of the active entry with hash.
func (l *Ledger) UpdateStatus(hash string, status models.Status, block *uint64) (bool, error) {
	l.mu.Lock()
	if !l.updateLocked(hash, status, block) {
		l.mu.Unlock()
		return false, nil
	}
	address := l.address
	err := l.write(address, l.entries)
	fn := l.onChange
	l.mu.Unlock()

	if fn != nil {
		fn(address)
	}
	return true, err
}

// CheckForIncoming scans the blocks mined since the previous check for
// transfers to the active address and resolves pending sends. The first call
// after Load only records the current height.
func (l *Ledger) CheckForIncoming(ctx context.Context, scanner Scanner) error {
	l.mu.Lock()
	address, gen, last, hasBaseline := l.address, l.gen, l.lastChecked, l.hasBaseline
	var pending []string
	for _, tx := range l.entries {
		if tx.Status == models.StatusPending {
			pending = append(pending, tx.Hash)
		}
	}
	l.mu.Unlock()

	if address == "" {
		return nil
	}

	current, err := scanner.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	if !hasBaseline {
		l.mu.Lock()
		if l.gen == gen {
			l.lastChecked = current
			l.hasBaseline = true
		}
		l.mu.Unlock()
		l.logger.Debug("reconciliation baseline recorded", "address", address, "block", current)
		return nil
	}

	var found []models.Transaction
	for n := scanStart(last, current); n <= current; n++ {
		if ctx.Err() != nil {
			break
		}
		transfers, err := scanner.BlockTransfers(ctx, n)
		if err != nil {
			l.logger.Debug("block scan failed", "block", n, "error", err)
			continue
		}
		for _, tr := range transfers {
			if !models.SameAddress(tr.To, address) || tr.Value == nil || tr.Value.Sign() <= 0 {
				continue
			}
			block := tr.BlockNumber
			found = append(found, models.Transaction{
				Direction:   models.DirectionReceived,
				Amount:      decimal.NewFromBigInt(tr.Value, -18).String(),
				From:        tr.From,
				To:          tr.To,
				Hash:        tr.Hash,
				Status:      models.StatusConfirmed,
				BlockNumber: &block,
			})
		}
	}

	receipts := make(map[string]*models.Receipt)
	for _, hash := range pending {
		r, err := scanner.Receipt(ctx, hash)
		if err != nil {
			l.logger.Debug("receipt lookup failed", "tx", hash, "error", err)
			continue
		}
		if r != nil {
			receipts[hash] = r
		}
	}

	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		l.logger.Debug("discarding reconciliation for superseded address", "address", address)
		return nil
	}
	l.lastChecked = current

	changed := 0
	incoming := 0
	for _, tx := range found {
		l.fill(&tx)
		var added bool
		if l.entries, added = insert(l.entries, tx); added {
			changed++
			incoming++
			l.logger.Info("incoming transfer detected", "tx", tx.Hash, "amount", tx.Amount, "block", *tx.BlockNumber)
		}
	}
	for hash, r := range receipts {
		status := models.StatusConfirmed
		if !r.Success {
			status = models.StatusFailed
		}
		block := r.BlockNumber
		if l.updateLocked(hash, status, &block) {
			changed++
		}
	}

	var err2 error
	if changed > 0 {
		err2 = l.write(address, l.entries)
	}
	fn := l.onChange
	l.mu.Unlock()

	if l.metrics != nil && incoming > 0 {
		l.metrics.IncomingFound.Inc(int64(incoming))
	}
	if changed > 0 && fn != nil {
		fn(address)
	}
	return err2
}

func (l *Ledger) updateLocked(hash string, status models.Status, block *uint64) bool {
	for i := range l.entries {
		if l.entries[i].Hash != hash {
			continue
		}
		if l.entries[i].Status == status {
			return false
		}
		l.entries[i].Status = status
		if block != nil {
			b := *block
			l.entries[i].BlockNumber = &b
		}
		return true
	}
	return false
}

func (l *Ledger) fill(tx *models.Transaction) {
	if tx.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		tx.ID = id.String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = l.now()
	}
}

func (l *Ledger) read(address string) []models.Transaction {
	raw, ok, err := l.store.Get(Key(address))
	if err != nil {
		l.logger.Warn("ledger read failed", "address", address, "error", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var entries []models.Transaction
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.logger.Warn("discarding ledger", "address", address, "error", fmt.Errorf("%w: %v", provider.ErrPersistenceCorrupt, err))
		return nil
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return entries
}

func (l *Ledger) write(address string, entries []models.Transaction) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := l.store.Set(Key(address), string(data)); err != nil {
		return fmt.Errorf("persist ledger %s: %w", address, err)
	}
	return nil
}

// insert prepends tx unless its hash is already present and keeps the newest MaxEntries.
func insert(entries []models.Transaction, tx models.Transaction) ([]models.Transaction, bool) {
	for _, e := range entries {
		if e.Hash == tx.Hash {
			return entries, false
		}
	}
	out := make([]models.Transaction, 0, min(len(entries)+1, MaxEntries))
	out = append(out, tx)
	out = append(out, entries...)
	if len(out) > MaxEntries {
		out = out[:MaxEntries]
	}
	return out, true
}

func scanStart(last, current uint64) uint64 {
	var fromLast, fromWindow uint64
	if last > scanLookback {
		fromLast = last - scanLookback
	}
	if current > scanWindow {
		fromWindow = current - scanWindow
	}
	return max(fromLast, fromWindow)
}

func cloneTx(tx models.Transaction) models.Transaction {
	if tx.BlockNumber != nil {
		b := *tx.BlockNumber
		tx.BlockNumber = &b
	}
	return tx
}
