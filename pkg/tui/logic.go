package tui

import (
	"context"
	"strings"
	"time"

	"walletd/pkg/balance"
	"walletd/pkg/ledger"
	"walletd/pkg/models"
	"walletd/pkg/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	maxBalanceHistory = 120
	statusTimeout     = 3 * time.Second
	requestTimeout    = 2 * time.Minute
)

// simulatedAmount is credited by the simulate-incoming shortcut.
var simulatedAmount = decimal.RequireFromString("0.05")

func listenForSession(sub session.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func connectCmd(m *session.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return connectResultMsg{err: m.Connect(ctx)}
	}
}

func sendCmd(m *session.Manager, to, amount, note string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		hash, err := m.SendTransaction(ctx, to, amount, note)
		return sendResultMsg{hash: hash, err: err}
	}
}

func refreshCmd(m *session.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return refreshResultMsg{err: m.RefreshBalance(ctx)}
	}
}

func simulateCmd(sim Simulator) tea.Cmd {
	return func() tea.Msg {
		hash, err := sim.SimulateIncoming(balance.ToWei(simulatedAmount))
		return simulatedMsg{hash: hash, err: err}
	}
}

func clearStatusAfter() tea.Cmd {
	return tea.Tick(statusTimeout, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

// parseBalance converts a display balance into a graph value; unknown balances are 0.
func parseBalance(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func appendHistory(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > maxBalanceHistory {
		hist = hist[len(hist)-maxBalanceHistory:]
	}
	return hist
}

func filterLabel(f ledger.Filter) string {
	switch f {
	case ledger.FilterIn:
		return "Incoming"
	case ledger.FilterOut:
		return "Outgoing"
	default:
		return "All"
	}
}

func directionArrow(d models.Direction) string {
	if d == models.DirectionReceived {
		return infoStyle.Render("↓ in ")
	}
	return "↑ out"
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusConfirmed:
		return infoStyle.Render(string(s))
	case models.StatusFailed:
		return errStyle.Render(string(s))
	default:
		return pendingStyle.Render(string(s))
	}
}

// renderQR draws content as a terminal QR code, two modules per character row.
func renderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}
	bits := qr.Bitmap()

	var b strings.Builder
	for y := 0; y < len(bits); y += 2 {
		for x := range bits[y] {
			top := !bits[y][x]
			bottom := y+1 < len(bits) && !bits[y+1][x]
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
