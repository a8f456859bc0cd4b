package metrics

import (
	"io"

	gometrics "github.com/rcrowley/go-metrics"
)

// Metrics groups the counters maintained by the session and submitter.
type Metrics struct {
	Registry gometrics.Registry

	Connects        gometrics.Counter
	ConnectFailures gometrics.Counter
	Disconnects     gometrics.Counter
	AccountSwitches gometrics.Counter
	Sends           gometrics.Counter
	SendFailures    gometrics.Counter
	GasFallbacks    gometrics.Counter
	IncomingFound   gometrics.Counter
	SendLatency     gometrics.Timer
}

// New registers all counters in a fresh registry.
func New() *Metrics {
	r := gometrics.NewRegistry()
	return &Metrics{
		Registry:        r,
		Connects:        gometrics.NewRegisteredCounter("session/connects", r),
		ConnectFailures: gometrics.NewRegisteredCounter("session/connect_failures", r),
		Disconnects:     gometrics.NewRegisteredCounter("session/disconnects", r),
		AccountSwitches: gometrics.NewRegisteredCounter("session/account_switches", r),
		Sends:           gometrics.NewRegisteredCounter("submit/sends", r),
		SendFailures:    gometrics.NewRegisteredCounter("submit/send_failures", r),
		GasFallbacks:    gometrics.NewRegisteredCounter("submit/gas_fallbacks", r),
		IncomingFound:   gometrics.NewRegisteredCounter("ledger/incoming_found", r),
		SendLatency:     gometrics.NewRegisteredTimer("submit/send_latency", r),
	}
}

// WriteJSON writes a snapshot of every metric to w.
func (m *Metrics) WriteJSON(w io.Writer) {
	gometrics.WriteJSONOnce(m.Registry, w)
}
