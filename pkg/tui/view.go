package tui

import (
	"fmt"
	"strings"

	"walletd/pkg/models"
	"walletd/pkg/session"
	"walletd/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.sending {
		return m.viewSend()
	}
	if m.showTxDetail {
		return m.viewTxDetail()
	}
	if m.showTxList {
		return m.viewTxList()
	}
	if m.showReceive {
		return m.viewReceive()
	}
	if m.showGraph {
		return m.viewGraph()
	}
	return m.viewMain()
}

func (m model) center(content string) string {
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m model) statusLine() string {
	if m.busy {
		return m.spinner.View() + " " + m.statusMessage
	}
	if m.statusMessage == "" {
		return ""
	}
	if m.statusIsError {
		return errStyle.Render(m.statusMessage)
	}
	return infoStyle.Render(m.statusMessage)
}

func (m model) viewMain() string {
	header := titleStyle.Render("walletd " + Version)

	state := subtleStyle.Render(m.state.String())
	switch m.state {
	case session.Connected:
		state = infoStyle.Render(m.state.String())
	case session.Connecting:
		state = pendingStyle.Render(m.state.String())
	}

	rows := []string{
		fmt.Sprintf("%-10s %s", "Status", state),
		fmt.Sprintf("%-10s %s", "Address", m.displayAddress()),
		fmt.Sprintf("%-10s %s", "Network", m.session.Network),
		fmt.Sprintf("%-10s %s", "Balance", m.displayBalance()),
	}
	if !m.session.Connected {
		if r := m.manager.Restored(); r.Address != "" {
			rows = append(rows, subtleStyle.Render("Last session: "+utils.ShortAddress(r.Address)+" (press n to reconnect)"))
		}
	}

	recent := m.viewRecent(5)
	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		boxStyle.Render(strings.Join(rows, "\n")),
		"",
		recent,
	)

	footer := subtleStyle.Render("n: connect • x: disconnect • s: send • R: receive • t: history • ?: help • q: quit")
	return m.center(lipgloss.JoinVertical(lipgloss.Left, body, "", m.statusLine(), footer))
}

func (m model) viewRecent(limit int) string {
	txs := m.manager.Transactions()
	if len(txs) == 0 {
		return subtleStyle.Render("No transactions yet")
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	lines := []string{tableHeaderStyle.Render("Recent Activity")}
	now := m.now()
	for _, tx := range txs {
		lines = append(lines, fmt.Sprintf("%s  %-12s  %s  %s",
			directionArrow(tx.Direction),
			tx.Amount,
			statusLabel(tx.Status),
			subtleStyle.Render(utils.TimeAgo(tx.Timestamp, now)),
		))
	}
	return strings.Join(lines, "\n")
}

func (m model) viewSend() string {
	labels := []string{"To", "Amount", "Note"}
	var inputs []string
	for i, label := range labels {
		inputs = append(inputs, fmt.Sprintf("%-8s %s", label, m.sendInputs[i].View()))
	}
	return m.center(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Send ETH"),
		"",
		fmt.Sprintf("From: %s", m.session.Address),
		fmt.Sprintf("Balance: %s", m.displayBalance()),
		"",
		strings.Join(inputs, "\n"),
		"",
		subtleStyle.Render("Tab to switch • Enter to next/send • Esc to cancel"),
	)))
}

func (m model) viewTxList() string {
	header := titleStyle.Render(fmt.Sprintf("Transactions (%s)", filterLabel(m.txFilter)))

	var rows []string
	rows = append(rows, tableHeaderStyle.Render(fmt.Sprintf("%-5s %-14s %-10s %-14s %s", "Dir", "Amount", "Status", "Hash", "When")))
	now := m.now()
	for i, tx := range m.txs {
		line := fmt.Sprintf("%s %-14s %-10s %-14s %s",
			directionArrow(tx.Direction),
			utils.TruncateString(tx.Amount, 14),
			statusLabel(tx.Status),
			utils.ShortAddress(tx.Hash),
			utils.TimeAgo(tx.Timestamp, now),
		)
		if i == m.txListIdx {
			line = "> " + line
		} else {
			line = "  " + line
		}
		rows = append(rows, line)
	}
	if len(m.txs) == 0 {
		rows = append(rows, subtleStyle.Render("  No transactions"))
	}

	footer := subtleStyle.Render("↑/↓: select • enter: details • i/o/a: in/out/all • q/esc: back")
	return m.center(lipgloss.JoinVertical(lipgloss.Left, header, "", boxStyle.Render(strings.Join(rows, "\n")), "", m.statusLine(), footer))
}

func (m model) viewTxDetail() string {
	tx, ok := m.selectedTx()
	if !ok {
		return m.viewTxList()
	}
	rows := []string{
		fmt.Sprintf("%-10s %s", "Type", tx.Direction),
		fmt.Sprintf("%-10s %s ETH", "Amount", tx.Amount),
		fmt.Sprintf("%-10s %s", "Status", statusLabel(tx.Status)),
		fmt.Sprintf("%-10s %s", "From", tx.From),
		fmt.Sprintf("%-10s %s", "To", tx.To),
		fmt.Sprintf("%-10s %s", "Hash", tx.Hash),
		fmt.Sprintf("%-10s %s", "Time", tx.Timestamp.Local().Format("2006-01-02 15:04:05")),
	}
	if tx.BlockNumber != nil {
		rows = append(rows, fmt.Sprintf("%-10s %d", "Block", *tx.BlockNumber))
	}
	if tx.Note != "" {
		rows = append(rows, fmt.Sprintf("%-10s %s", "Note", tx.Note))
	}
	footer := subtleStyle.Render("o: open in explorer • q/esc: back")
	return m.center(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Transaction Details"),
		"",
		boxStyle.Render(strings.Join(rows, "\n")),
		"",
		m.statusLine(),
		footer,
	))
}

func (m model) viewReceive() string {
	qr, err := renderQR(models.ReceiveURI(m.session.Address))
	if err != nil {
		qr = errStyle.Render(fmt.Sprintf("Failed to render QR code: %v", err))
	}
	return m.center(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render("Receive on "+m.session.Network),
		"",
		qr,
		"",
		m.session.Address,
		"",
		m.statusLine(),
		subtleStyle.Render("c: copy address • q/esc: back"),
	)))
}

func (m model) viewGraph() string {
	var graph string
	if len(m.balanceHistory) > 1 {
		width := m.width - 20
		if width < 20 {
			width = 20
		}
		height := m.height - 12
		if height < 5 {
			height = 5
		}
		graph = asciigraph.Plot(m.balanceHistory,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("Balance History (ETH)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, titleStyle.Render("Balance"), "\n", graph))
	footer := subtleStyle.Render("g/q/esc: back")
	return m.center(lipgloss.JoinVertical(lipgloss.Left, content, footer))
}

func (m model) viewHelp() string {
	keys := []struct{ key, desc string }{
		{"n", "Connect wallet"},
		{"x", "Disconnect wallet"},
		{"s", "Send ETH"},
		{"r", "Refresh balance"},
		{"R", "Receive (QR code)"},
		{"t", "Transaction history"},
		{"g", "Balance graph"},
		{"c", "Copy address"},
		{"K", "Clear cached session"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
	if m.simulator != nil {
		keys = append(keys, struct{ key, desc string }{"i", "Simulate incoming payment"})
	}
	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%-6s %s", infoStyle.Render(k.key), k.desc))
	}
	return m.center(boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Help"),
		"",
		strings.Join(lines, "\n"),
		"",
		subtleStyle.Render("?/q/esc: close"),
	)))
}
