package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"walletd/pkg/balance"
	"walletd/pkg/ledger"
	"walletd/pkg/metrics"
	"walletd/pkg/models"
	"walletd/pkg/provider"

	"github.com/shopspring/decimal"
)

// DefaultGas is the gas limit of a plain value transfer, used when estimation fails.
const DefaultGas uint64 = 21000

var (
	ErrNotConnected  = errors.New("wallet not connected")
	ErrInvalidAmount = errors.New("amount must be a positive value")
)

// SubmissionError is returned when the provider refuses a transaction.
type SubmissionError struct {
	// Gas is set when the failure concerns gas or the gas limit.
	Gas bool
	Err error
}

func (e *SubmissionError) Error() string {
	if e.Gas {
		return fmt.Sprintf("%v: gas estimation or limit issue: %v", provider.ErrSubmissionFailed, e.Err)
	}
	return fmt.Sprintf("%v: %v", provider.ErrSubmissionFailed, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{provider.ErrSubmissionFailed, e.Err}
}

// Session is the view of the session manager the submitter needs.
type Session interface {
	// Identity returns the current session and its identity generation.
	Identity() (models.Session, uint64)
	// ScheduleBalanceRefresh refreshes the balance after a delay if gen is still current.
	ScheduleBalanceRefresh(gen uint64)
}

// Submitter hands value transfers to the signing provider and records them.
type Submitter struct {
	provider provider.Provider
	session  Session
	ledger   *ledger.Ledger
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New returns a Submitter. m may be nil.
func New(p provider.Provider, s Session, l *ledger.Ledger, m *metrics.Metrics) *Submitter {
	return &Submitter{
		provider: p,
		session:  s,
		ledger:   l,
		metrics:  m,
		logger:   slog.Default().With("component", "submitter"),
	}
}

// Send transfers amount (in whole ether) to to and returns the transaction hash.
// The recipient is passed to the provider unvalidated.
func (s *Submitter) Send(ctx context.Context, to string, amount decimal.Decimal, note string) (string, error) {
	sess, gen := s.session.Identity()
	if !sess.Connected {
		return "", ErrNotConnected
	}
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("verify account: %w", err)
	}
	if !slices.ContainsFunc(accounts, func(a string) bool { return models.SameAddress(a, sess.Address) }) {
		return "", provider.ErrStaleSession
	}

	wei := balance.ToWei(amount)
	if wei.Sign() <= 0 {
		return "", ErrInvalidAmount
	}

	params := models.TxParams{From: sess.Address, To: to, Value: wei}
	note = strings.TrimSpace(note)
	if note != "" {
		params.Data = []byte(note)
	}

	gas, err := s.provider.EstimateGas(ctx, params)
	if err != nil {
		s.logger.Warn("using default gas limit", "gas", DefaultGas, "error", fmt.Errorf("%w: %v", provider.ErrGasEstimationFailed, err))
		if s.metrics != nil {
			s.metrics.GasFallbacks.Inc(1)
		}
		gas = DefaultGas
	}
	params.Gas = gas

	start := time.Now()
	hash, err := s.provider.SendTransaction(ctx, params)
	if s.metrics != nil {
		s.metrics.SendLatency.UpdateSince(start)
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.SendFailures.Inc(1)
		}
		subErr := &SubmissionError{Gas: provider.IsGasError(err), Err: err}
		s.logger.Error("transaction rejected", "to", to, "amount", amount.String(), "gas_related", subErr.Gas, "error", err)
		return "", subErr
	}
	if s.metrics != nil {
		s.metrics.Sends.Inc(1)
	}
	s.logger.Info("transaction submitted", "tx", hash, "to", to, "amount", amount.String(), "gas", gas)

	// The send already happened; a ledger write failure is only logged.
	if _, err := s.ledger.AppendTo(sess.Address, models.Transaction{
		Direction: models.DirectionSent,
		Amount:    amount.String(),
		From:      sess.Address,
		To:        to,
		Note:      note,
		Hash:      hash,
		Status:    models.StatusPending,
	}); err != nil {
		s.logger.Warn("recording sent transaction failed", "tx", hash, "error", err)
	}

	s.session.ScheduleBalanceRefresh(gen)
	return hash, nil
}
