package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected   = 4001
	CodeRequestPending = -32002
)

var (
	ErrProviderUnavailable = errors.New("signing provider not available")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrProviderBusy        = errors.New("provider is already processing a request")
	ErrInvalidAddress      = errors.New("invalid wallet address format")
	ErrStaleSession        = errors.New("account no longer connected, please reconnect")
	ErrGasEstimationFailed = errors.New("gas estimation failed")
	ErrSubmissionFailed    = errors.New("transaction failed")
	ErrPersistenceCorrupt  = errors.New("persisted data is corrupt")
)

// Classify maps a provider error onto the sentinel taxonomy. Errors that carry
// no recognised code are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserRejected) || errors.Is(err, ErrProviderBusy) || errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return fmt.Errorf("%w: %s", ErrUserRejected, rpcErr.Error())
		case CodeRequestPending:
			return fmt.Errorf("%w: %s", ErrProviderBusy, rpcErr.Error())
		}
	}
	return err
}

// Describe returns the user-facing text for a connect failure.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserRejected):
		return "You rejected the connection request"
	case errors.Is(err, ErrProviderBusy):
		return "The wallet is already processing a request"
	case errors.Is(err, ErrProviderUnavailable):
		return "No wallet provider found, please install one to continue"
	default:
		return err.Error()
	}
}

// IsGasError reports whether a submission failure concerns gas or the gas limit.
func IsGasError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "gas")
}
