package provider

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"walletd/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	simA = "0x1111111111111111111111111111111111111111"
	simB = "0x2222222222222222222222222222222222222222"
)

func TestSimProvider_SendMinesBlock(t *testing.T) {
	ctx := context.Background()
	p := NewSimProvider("0x1", simA)
	p.SetBalance(simA, big.NewInt(1000))

	before, _ := p.BlockNumber(ctx)
	hash, err := p.SendTransaction(ctx, models.TxParams{From: simA, To: simB, Value: big.NewInt(400)})
	require.NoError(t, err)

	after, _ := p.BlockNumber(ctx)
	assert.Equal(t, before+1, after)

	transfers, err := p.BlockTransfers(ctx, after)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, hash, transfers[0].Hash)

	balA, _ := p.Balance(ctx, simA)
	balB, _ := p.Balance(ctx, simB)
	assert.Equal(t, int64(600), balA.Int64())
	assert.Equal(t, int64(400), balB.Int64())

	r, err := p.Receipt(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Success)
	assert.Equal(t, after, r.BlockNumber)
}

func TestSimProvider_InsufficientFunds(t *testing.T) {
	p := NewSimProvider("0x1", simA)
	_, err := p.SendTransaction(context.Background(), models.TxParams{From: simA, To: simB, Value: big.NewInt(1)})
	assert.True(t, IsGasError(err))
}

func TestSimProvider_RejectNext(t *testing.T) {
	p := NewSimProvider("0x1", simA)
	p.RejectNext(ErrUserRejected)

	_, err := p.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)

	accounts, err := p.RequestAccounts(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{simA}, accounts)
}

func TestSimProvider_Events(t *testing.T) {
	p := NewSimProvider("0x1", simA)
	ctx, cancel := context.WithCancel(context.Background())
	events := p.Subscribe(ctx)

	p.SwitchAccounts(simB)
	p.SwitchChain("0x89")

	ev := <-events
	assert.Equal(t, models.AccountsChanged, ev.Type)
	assert.Equal(t, []string{simB}, ev.Accounts)
	ev = <-events
	assert.Equal(t, models.ChainChanged, ev.Type)
	assert.Equal(t, "0x89", ev.ChainID)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestSimProvider_EventsBeyondBufferAreKept(t *testing.T) {
	p := NewSimProvider("0x1", simA)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := p.Subscribe(ctx)

	const n = 40
	go func() {
		for i := 0; i < n; i++ {
			p.SwitchChain(fmt.Sprintf("0x%x", i+1))
		}
	}()

	for i := 0; i < n; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, fmt.Sprintf("0x%x", i+1), ev.ChainID)
		case <-time.After(time.Second):
			t.Fatalf("event %d was dropped", i)
		}
	}
}

func TestSimProvider_CancelReleasesBlockedBroadcast(t *testing.T) {
	p := NewSimProvider("0x1", simA)
	ctx, cancel := context.WithCancel(context.Background())
	p.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			p.SwitchChain("0x89")
		}
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast stayed blocked after the subscription was cancelled")
	}
	id, err := p.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x89", id)
}
