package tui

import (
	"math/big"
	"time"

	"walletd/pkg/ledger"
	"walletd/pkg/models"
	"walletd/pkg/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// Simulator injects incoming payments; only available in simulation mode.
type Simulator interface {
	SimulateIncoming(wei *big.Int) (string, error)
}

// --- Messages ---

type clearStatusMsg struct{}

type connectResultMsg struct{ err error }

type sendResultMsg struct {
	hash string
	err  error
}

type refreshResultMsg struct{ err error }

type simulatedMsg struct {
	hash string
	err  error
}

// --- Model ---

const (
	inputTo = iota
	inputAmount
	inputNote
)

type model struct {
	manager   *session.Manager
	sub       session.Subscriber
	simulator Simulator

	session models.Session
	state   session.State
	txs     []models.Transaction

	width         int
	height        int
	busy          bool
	spinner       spinner.Model
	statusMessage string
	statusIsError bool

	sending    bool
	sendInputs []textinput.Model
	sendFocus  int

	showHelp     bool
	showReceive  bool
	showGraph    bool
	showTxList   bool
	showTxDetail bool
	txListIdx    int
	txFilter     ledger.Filter

	balanceHistory []float64
	now            func() time.Time
}

func initialModel(m *session.Manager, sim Simulator) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	sis := make([]textinput.Model, 3)
	for i := range sis {
		sis[i] = textinput.New()
		sis[i].Width = 44
	}
	sis[inputTo].Placeholder = "Recipient (0x...)"
	sis[inputAmount].Placeholder = "Amount (e.g. 0.05)"
	sis[inputNote].Placeholder = "Note (Optional)"
	sis[inputNote].CharLimit = 140

	return model{
		manager:    m,
		sub:        m.Subscribe(),
		simulator:  sim,
		session:    m.Session(),
		state:      m.State(),
		txs:        m.FilteredTransactions(ledger.FilterAll),
		spinner:    s,
		sendInputs: sis,
		txFilter:   ledger.FilterAll,
		now:        time.Now,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listenForSession(m.sub), m.spinner.Tick)
}
