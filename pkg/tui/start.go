package tui

import (
	"fmt"
	"os"

	"walletd/pkg/session"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits. sim may be nil.
func Start(m *session.Manager, sim Simulator, version string) {
	Version = version
	mdl := initialModel(m, sim)
	defer m.Unsubscribe(mdl.sub)

	p := tea.NewProgram(mdl, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
