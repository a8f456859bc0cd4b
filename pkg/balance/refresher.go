package balance

import (
	"context"
	"log/slog"
	"math/big"

	"walletd/pkg/models"

	"github.com/shopspring/decimal"
)

const (
	weiDecimals     = 18
	displayDecimals = 4
)

// Source is the part of the signing provider the refresher needs.
type Source interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
}

// Refresher turns provider balances into display strings.
type Refresher struct {
	source Source
	logger *slog.Logger
}

func NewRefresher(source Source) *Refresher {
	return &Refresher{
		source: source,
		logger: slog.Default().With("component", "balance"),
	}
}

// Fetch returns the balance of address in whole units with 4 fractional digits.
// Failures are logged and reported as models.UnknownBalance.
func (r *Refresher) Fetch(ctx context.Context, address string) string {
	if r.source == nil {
		return models.UnknownBalance
	}
	wei, err := r.source.Balance(ctx, address)
	if err != nil {
		r.logger.Warn("balance fetch failed", "address", address, "error", err)
		return models.UnknownBalance
	}
	if wei == nil || wei.Sign() < 0 {
		r.logger.Warn("malformed balance response", "address", address, "value", wei)
		return models.UnknownBalance
	}
	return FormatWei(wei)
}

// FormatWei renders wei as whole units with 4 fractional digits.
func FormatWei(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -weiDecimals).StringFixed(displayDecimals)
}

// ToWei converts a whole-unit amount to wei. Digits beyond wei precision are dropped.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(weiDecimals).BigInt()
}
