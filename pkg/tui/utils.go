package tui

import (
	"os/exec"
	"runtime"

	"walletd/pkg/models"
	"walletd/pkg/utils"
)

func (m model) displayBalance() string {
	if !m.session.Connected {
		return "n/a"
	}
	return utils.AddCommas(m.session.Balance) + " ETH"
}

func (m model) displayAddress() string {
	if m.session.Address == "" {
		return "not connected"
	}
	if m.width > 0 && m.width < 60 {
		return utils.ShortAddress(m.session.Address)
	}
	return m.session.Address
}

func (m model) selectedTx() (models.Transaction, bool) {
	if m.txListIdx < 0 || m.txListIdx >= len(m.txs) {
		return models.Transaction{}, false
	}
	return m.txs[m.txListIdx], true
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
