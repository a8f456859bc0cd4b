package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"walletd/pkg/models"
)

// DefaultReconcileInterval is the period between incoming-transfer checks.
const DefaultReconcileInterval = 30 * time.Second

// Reconciler periodically runs CheckForIncoming for the address being watched.
type Reconciler struct {
	ledger   *Ledger
	scanner  Scanner
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	address  string
}

func NewReconciler(l *Ledger, scanner Scanner, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		ledger:   l,
		scanner:  scanner,
		interval: interval,
		logger:   slog.Default().With("component", "reconciler"),
	}
}

// Watch starts polling for address, stopping any loop started earlier.
func (r *Reconciler) Watch(ctx context.Context, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopChan != nil {
		close(r.stopChan)
	}
	r.stopChan = make(chan struct{})
	r.address = address
	go r.pollingLoop(ctx, address, r.stopChan)
}

// Stop ends the current loop. It is safe to call when nothing is watched.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopChan != nil {
		close(r.stopChan)
		r.stopChan = nil
	}
	r.address = ""
}

// Watching returns the address of the running loop, or "".
func (r *Reconciler) Watching() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

func (r *Reconciler) pollingLoop(ctx context.Context, address string, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initial check records the baseline.
	r.check(ctx, address)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.check(ctx, address)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) check(ctx context.Context, address string) {
	if !models.SameAddress(r.ledger.Address(), address) {
		return
	}
	if err := r.ledger.CheckForIncoming(ctx, r.scanner); err != nil && ctx.Err() == nil {
		r.logger.Warn("incoming check failed", "address", address, "error", err)
	}
}
