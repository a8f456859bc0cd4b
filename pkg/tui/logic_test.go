package tui

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"walletd/pkg/balance"
	"walletd/pkg/ledger"
	"walletd/pkg/models"
	"walletd/pkg/provider"
	"walletd/pkg/session"
	"walletd/pkg/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addrA = "0x1111111111111111111111111111111111111111"

func newTestModel(t *testing.T) (model, *provider.SimProvider) {
	t.Helper()
	sim := provider.NewSimProvider("0x1", addrA)
	sim.SetBalance(addrA, balance.ToWei(decimal.RequireFromString("1.5")))
	m := session.New(sim, store.NewMemoryStore(), session.Options{
		RefreshDelay:      10 * time.Millisecond,
		ReconcileInterval: time.Hour,
	})
	t.Cleanup(m.Close)
	mdl := initialModel(m, sim)
	t.Cleanup(func() { m.Unsubscribe(mdl.sub) })
	return mdl, sim
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestParseBalance(t *testing.T) {
	assert.Equal(t, 1.5, parseBalance("1.5000"))
	assert.Equal(t, 0.0, parseBalance("0.0"))
	assert.Equal(t, 0.0, parseBalance("garbage"))
}

func TestAppendHistory(t *testing.T) {
	var hist []float64
	for i := 0; i < maxBalanceHistory+10; i++ {
		hist = appendHistory(hist, float64(i))
	}
	assert.Len(t, hist, maxBalanceHistory)
	assert.Equal(t, 10.0, hist[0])
	assert.Equal(t, float64(maxBalanceHistory+9), hist[len(hist)-1])
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "All", filterLabel(ledger.FilterAll))
	assert.Equal(t, "Incoming", filterLabel(ledger.FilterIn))
	assert.Equal(t, "Outgoing", filterLabel(ledger.FilterOut))
}

func TestRenderQR(t *testing.T) {
	qr, err := renderQR(models.ReceiveURI(addrA))
	require.NoError(t, err)
	lines := strings.Split(qr, "\n")
	assert.Greater(t, len(lines), 10)
	assert.Contains(t, qr, "█")
}

func TestConnectFlow(t *testing.T) {
	mdl, _ := newTestModel(t)

	next, cmd := mdl.Update(key("n"))
	mdl = next.(model)
	assert.True(t, mdl.busy)
	require.NotNil(t, cmd)

	next, _ = mdl.Update(cmd())
	mdl = next.(model)
	assert.False(t, mdl.busy)
	assert.Equal(t, "Wallet connected", mdl.statusMessage)

	ev := session.Event{Type: session.EventConnected, Session: mdl.manager.Session()}
	next, _ = mdl.Update(ev)
	mdl = next.(model)
	assert.True(t, mdl.session.Connected)
	assert.Equal(t, session.Connected, mdl.state)
	assert.Equal(t, []float64{1.5}, mdl.balanceHistory)
	assert.Contains(t, mdl.View(), addrA)
}

func TestConnectRejected(t *testing.T) {
	mdl, sim := newTestModel(t)
	sim.RejectNext(provider.ErrUserRejected)

	next, cmd := mdl.Update(key("n"))
	mdl = next.(model)
	next, _ = mdl.Update(cmd())
	mdl = next.(model)
	assert.True(t, mdl.statusIsError)
	assert.Equal(t, "You rejected the connection request", mdl.statusMessage)
}

func TestSendRequiresConnection(t *testing.T) {
	mdl, _ := newTestModel(t)
	next, _ := mdl.Update(key("s"))
	mdl = next.(model)
	assert.False(t, mdl.sending)
	assert.True(t, mdl.statusIsError)
}

func TestSendForm(t *testing.T) {
	mdl, sim := newTestModel(t)
	require.NoError(t, mdl.manager.Connect(context.Background()))
	mdl.session = mdl.manager.Session()

	next, _ := mdl.Update(key("s"))
	mdl = next.(model)
	require.True(t, mdl.sending)
	assert.Equal(t, inputTo, mdl.sendFocus)

	mdl.sendInputs[inputTo].SetValue("0x2222222222222222222222222222222222222222")
	mdl.sendInputs[inputAmount].SetValue("0.5")

	next, _ = mdl.Update(key("tab"))
	mdl = next.(model)
	assert.Equal(t, inputAmount, mdl.sendFocus)

	next, _ = mdl.Update(key("enter"))
	mdl = next.(model)
	assert.Equal(t, inputNote, mdl.sendFocus)

	next, cmd := mdl.Update(key("enter"))
	mdl = next.(model)
	assert.False(t, mdl.sending)
	assert.True(t, mdl.busy)

	next, _ = mdl.Update(cmd())
	mdl = next.(model)
	assert.False(t, mdl.busy)
	assert.False(t, mdl.statusIsError, mdl.statusMessage)
	require.NotNil(t, sim.LastSent())
	assert.Equal(t, 0, sim.LastSent().Value.Cmp(big.NewInt(5e17)))
	assert.Len(t, mdl.manager.Transactions(), 1)
}

func TestSendFormCancel(t *testing.T) {
	mdl, _ := newTestModel(t)
	mdl.session = models.Session{Connected: true, Address: addrA}

	next, _ := mdl.Update(key("s"))
	mdl = next.(model)
	require.True(t, mdl.sending)

	next, _ = mdl.Update(key("esc"))
	mdl = next.(model)
	assert.False(t, mdl.sending)
}

func TestTxListFilters(t *testing.T) {
	mdl, _ := newTestModel(t)
	require.NoError(t, mdl.manager.Connect(context.Background()))
	_, err := mdl.manager.SendTransaction(context.Background(), "0x2222222222222222222222222222222222222222", "0.1", "")
	require.NoError(t, err)

	next, _ := mdl.Update(session.Event{Type: session.EventTransactionsUpdated, Session: mdl.manager.Session()})
	mdl = next.(model)
	assert.Len(t, mdl.txs, 1)

	next, _ = mdl.Update(key("t"))
	mdl = next.(model)
	require.True(t, mdl.showTxList)

	next, _ = mdl.Update(key("i"))
	mdl = next.(model)
	assert.Equal(t, ledger.FilterIn, mdl.txFilter)
	assert.Empty(t, mdl.txs)

	next, _ = mdl.Update(key("o"))
	mdl = next.(model)
	assert.Len(t, mdl.txs, 1)

	next, _ = mdl.Update(key("enter"))
	mdl = next.(model)
	assert.True(t, mdl.showTxDetail)
	assert.Contains(t, mdl.View(), "Transaction Details")
}

func TestSimulateWithoutSimulator(t *testing.T) {
	mdl, _ := newTestModel(t)
	mdl.simulator = nil
	next, cmd := mdl.Update(key("i"))
	mdl = next.(model)
	assert.True(t, mdl.statusIsError)
	assert.NotNil(t, cmd)
}

func TestDisconnectEventResetsView(t *testing.T) {
	mdl, _ := newTestModel(t)
	mdl.balanceHistory = []float64{1, 2}
	mdl.showReceive = true

	next, _ := mdl.Update(session.Event{Type: session.EventDisconnected, Session: models.EmptySession()})
	mdl = next.(model)
	assert.Nil(t, mdl.balanceHistory)
	assert.False(t, mdl.showReceive)
	assert.False(t, mdl.session.Connected)
}

func TestErrorEventSetsStatus(t *testing.T) {
	mdl, _ := newTestModel(t)
	next, _ := mdl.Update(session.Event{Type: session.EventError, Session: models.EmptySession(), Error: "boom"})
	mdl = next.(model)
	assert.Equal(t, "boom", mdl.statusMessage)
	assert.True(t, mdl.statusIsError)

	next, _ = mdl.Update(clearStatusMsg{})
	mdl = next.(model)
	assert.Empty(t, mdl.statusMessage)
}
