package tui

import (
	"fmt"

	"walletd/pkg/ledger"
	"walletd/pkg/provider"
	"walletd/pkg/session"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case session.Event:
		// Keep listening on the same subscription
		cmds = append(cmds, listenForSession(m.sub), m.applyEvent(msg))

	case connectResultMsg:
		m.busy = false
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(provider.Describe(msg.err), true))
		} else {
			cmds = append(cmds, m.setStatus("Wallet connected", false))
		}

	case sendResultMsg:
		m.busy = false
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(provider.Describe(msg.err), true))
		} else {
			cmds = append(cmds, m.setStatus("Transaction sent: "+msg.hash, false))
		}

	case refreshResultMsg:
		m.busy = false
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(provider.Describe(msg.err), true))
		}

	case simulatedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setStatus(msg.err.Error(), true))
		} else {
			cmds = append(cmds, m.setStatus("Simulated incoming payment mined", false))
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusIsError = false

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applyEvent(ev session.Event) tea.Cmd {
	m.session = ev.Session
	m.state = m.manager.State()
	m.txs = m.manager.FilteredTransactions(m.txFilter)
	if m.txListIdx >= len(m.txs) {
		m.txListIdx = max(len(m.txs)-1, 0)
	}

	var cmd tea.Cmd
	switch ev.Type {
	case session.EventConnected:
		m.balanceHistory = appendHistory(nil, parseBalance(ev.Session.Balance))
	case session.EventDisconnected:
		m.balanceHistory = nil
		m.sending = false
		m.showReceive = false
		m.showTxDetail = false
	case session.EventAccountChanged:
		m.balanceHistory = nil
		m.showTxDetail = false
		cmd = m.setStatus("Account changed", false)
	case session.EventNetworkChanged:
		cmd = m.setStatus("Network: "+ev.Session.Network, false)
	case session.EventBalanceUpdated:
		m.balanceHistory = appendHistory(m.balanceHistory, parseBalance(ev.Session.Balance))
	case session.EventError:
		cmd = m.setStatus(ev.Error, true)
	}
	return cmd
}

func (m *model) setStatus(msg string, isErr bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsError = isErr
	return clearStatusAfter()
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.sending {
		return m.handleSendKey(msg)
	}

	if msg.String() == "?" {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		if msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.showTxDetail {
		switch msg.String() {
		case "q", "esc", "backspace":
			m.showTxDetail = false
		case "o":
			tx, ok := m.selectedTx()
			if !ok {
				return m, nil
			}
			if err := openBrowser(m.manager.ExplorerURL(tx.Hash)); err != nil {
				cmd := m.setStatus(fmt.Sprintf("Failed to open browser: %v", err), true)
				return m, cmd
			}
			cmd := m.setStatus("Opened in browser", false)
			return m, cmd
		}
		return m, nil
	}

	if m.showTxList {
		switch msg.String() {
		case "q", "esc", "t":
			m.showTxList = false
		case "i":
			m.setFilter(ledger.FilterIn)
		case "o":
			m.setFilter(ledger.FilterOut)
		case "a":
			m.setFilter(ledger.FilterAll)
		case "up", "k":
			if m.txListIdx > 0 {
				m.txListIdx--
			}
		case "down", "j":
			if m.txListIdx < len(m.txs)-1 {
				m.txListIdx++
			}
		case "enter":
			if _, ok := m.selectedTx(); ok {
				m.showTxDetail = true
			}
		}
		return m, nil
	}

	if m.showReceive || m.showGraph {
		switch msg.String() {
		case "q", "esc", "R", "g":
			m.showReceive = false
			m.showGraph = false
		case "c":
			cmd := m.copyAddress()
			return m, cmd
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "n":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.statusMessage = "Connecting..."
		m.statusIsError = false
		return m, connectCmd(m.manager)
	case "x":
		m.manager.Disconnect()
		cmd := m.setStatus("Wallet disconnected", false)
		return m, cmd
	case "s":
		if !m.session.Connected {
			cmd := m.setStatus("Connect a wallet first", true)
			return m, cmd
		}
		m.sending = true
		for i := range m.sendInputs {
			m.sendInputs[i].SetValue("")
		}
		cmd := m.focusInput(inputTo)
		return m, cmd
	case "r":
		if m.busy || !m.session.Connected {
			return m, nil
		}
		m.busy = true
		return m, refreshCmd(m.manager)
	case "t":
		m.showTxList = true
		m.txListIdx = 0
	case "R":
		if !m.session.Connected {
			cmd := m.setStatus("Connect a wallet first", true)
			return m, cmd
		}
		m.showReceive = true
	case "g":
		m.showGraph = true
	case "c":
		cmd := m.copyAddress()
		return m, cmd
	case "i":
		if m.simulator == nil {
			cmd := m.setStatus("Simulated payments are only available with -sim", true)
			return m, cmd
		}
		if !m.session.Connected {
			cmd := m.setStatus("Connect a wallet first", true)
			return m, cmd
		}
		return m, simulateCmd(m.simulator)
	case "K":
		if err := m.manager.ClearCache(); err != nil {
			cmd := m.setStatus(fmt.Sprintf("Failed to clear cache: %v", err), true)
			return m, cmd
		}
		cmd := m.setStatus("Cache cleared", false)
		return m, cmd
	}
	return m, nil
}

func (m model) handleSendKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.sending = false
		return m, nil
	case "tab", "down":
		cmd := m.focusInput((m.sendFocus + 1) % len(m.sendInputs))
		return m, cmd
	case "shift+tab", "up":
		cmd := m.focusInput((m.sendFocus + len(m.sendInputs) - 1) % len(m.sendInputs))
		return m, cmd
	case "enter":
		if m.sendFocus < inputNote {
			cmd := m.focusInput(m.sendFocus + 1)
			return m, cmd
		}
		m.sending = false
		m.busy = true
		m.statusMessage = "Confirm the transaction in your wallet..."
		m.statusIsError = false
		return m, sendCmd(m.manager,
			m.sendInputs[inputTo].Value(),
			m.sendInputs[inputAmount].Value(),
			m.sendInputs[inputNote].Value(),
		)
	}

	var cmd tea.Cmd
	m.sendInputs[m.sendFocus], cmd = m.sendInputs[m.sendFocus].Update(msg)
	return m, cmd
}

func (m *model) focusInput(idx int) tea.Cmd {
	m.sendFocus = idx
	var cmd tea.Cmd
	for i := range m.sendInputs {
		if i == idx {
			cmd = m.sendInputs[i].Focus()
		} else {
			m.sendInputs[i].Blur()
		}
	}
	return cmd
}

func (m *model) setFilter(f ledger.Filter) {
	m.txFilter = f
	m.txListIdx = 0
	m.txs = m.manager.FilteredTransactions(f)
}

func (m *model) copyAddress() tea.Cmd {
	if m.session.Address == "" {
		return m.setStatus("No address to copy", true)
	}
	if err := clipboard.WriteAll(m.session.Address); err != nil {
		return m.setStatus("Failed to copy to clipboard", true)
	}
	return m.setStatus("Address copied to clipboard!", false)
}
