package provider

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"

	"walletd/pkg/models"

	"github.com/ethereum/go-ethereum/crypto"
)

// SimSender is the counterparty used for simulated incoming payments.
const SimSender = "0x742d35Cc6634C0532925a3b8D4C0532925a3b8D4"

const simGenesisBlock = 1000

// SimProvider is an in-memory chain with a built-in wallet. It backs the -sim
// mode and the tests.
type SimProvider struct {
	// sendMu orders broadcasts and is taken before mu.
	sendMu    sync.Mutex
	mu        sync.Mutex
	accounts  []string
	chainID   string
	balances  map[string]*big.Int
	blocks    [][]models.Transfer
	receipts  map[string]models.Receipt
	subs      []simSub
	seq       uint64
	nextErr   error
	gasErr    error
	sendErr   error
	lastSent  *models.TxParams
	estimates int
}

type simSub struct {
	ctx context.Context
	ch  chan models.ProviderEvent
}

// NewSimProvider creates a chain on chainID whose wallet holds accounts.
func NewSimProvider(chainID string, accounts ...string) *SimProvider {
	return &SimProvider{
		accounts: slices.Clone(accounts),
		chainID:  chainID,
		balances: make(map[string]*big.Int),
		blocks:   make([][]models.Transfer, simGenesisBlock+1),
		receipts: make(map[string]models.Receipt),
	}
}

// SetBalance credits address with wei.
func (s *SimProvider) SetBalance(address string, wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[strings.ToLower(address)] = new(big.Int).Set(wei)
}

// RejectNext makes the next RequestAccounts call fail with err.
func (s *SimProvider) RejectNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr = err
}

// FailGasEstimation makes every EstimateGas call fail with err; nil restores estimation.
func (s *SimProvider) FailGasEstimation(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasErr = err
}

// FailSend makes every SendTransaction call fail with err; nil restores sending.
func (s *SimProvider) FailSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// LastSent returns the parameters of the most recent SendTransaction call.
func (s *SimProvider) LastSent() *models.TxParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}

// GasEstimates returns how many times EstimateGas was called.
func (s *SimProvider) GasEstimates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimates
}

func (s *SimProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.nextErr; err != nil {
		s.nextErr = nil
		return nil, err
	}
	return slices.Clone(s.accounts), nil
}

func (s *SimProvider) Accounts(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accounts), nil
}

func (s *SimProvider) ChainID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID, nil
}

func (s *SimProvider) Balance(ctx context.Context, address string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[strings.ToLower(address)]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (s *SimProvider) EstimateGas(ctx context.Context, tx models.TxParams) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.estimates++
	if s.gasErr != nil {
		return 0, s.gasErr
	}
	return 21000 + 16*uint64(len(tx.Data)), nil
}

func (s *SimProvider) SendTransaction(ctx context.Context, tx models.TxParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := tx
	s.lastSent = &sent
	if s.sendErr != nil {
		return "", s.sendErr
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	from := s.balanceLocked(tx.From)
	if from.Cmp(value) < 0 {
		return "", fmt.Errorf("insufficient funds for gas * price + value")
	}
	from.Sub(from, value)
	to := s.balanceLocked(tx.To)
	to.Add(to, value)
	return s.mineLocked(tx.From, tx.To, value), nil
}

func (s *SimProvider) BlockNumber(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.blocks) - 1), nil
}

func (s *SimProvider) BlockTransfers(ctx context.Context, n uint64) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= uint64(len(s.blocks)) {
		return nil, fmt.Errorf("block %d not found", n)
	}
	return slices.Clone(s.blocks[n]), nil
}

func (s *SimProvider) Receipt(ctx context.Context, hash string) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[strings.ToLower(hash)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *SimProvider) Subscribe(ctx context.Context) <-chan models.ProviderEvent {
	ch := make(chan models.ProviderEvent, 16)
	s.mu.Lock()
	s.subs = append(s.subs, simSub{ctx: ctx, ch: ch})
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.sendMu.Lock()
		defer s.sendMu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.ch == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				break
			}
		}
	}()
	return ch
}

// SimulateIncoming mines a block paying wei from SimSender to the first account.
func (s *SimProvider) SimulateIncoming(wei *big.Int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.accounts) == 0 {
		return "", fmt.Errorf("no account to receive funds")
	}
	to := s.accounts[0]
	bal := s.balanceLocked(to)
	bal.Add(bal, wei)
	return s.mineLocked(SimSender, to, wei), nil
}

// MineEmpty appends n empty blocks.
func (s *SimProvider) MineEmpty(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.blocks = append(s.blocks, nil)
	}
}

// SwitchAccounts replaces the authorized accounts and notifies subscribers.
func (s *SimProvider) SwitchAccounts(accounts ...string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	s.accounts = slices.Clone(accounts)
	subs := slices.Clone(s.subs)
	s.mu.Unlock()
	broadcast(subs, models.ProviderEvent{Type: models.AccountsChanged, Accounts: slices.Clone(accounts)})
}

// SwitchChain changes the chain id and notifies subscribers.
func (s *SimProvider) SwitchChain(chainID string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	s.chainID = chainID
	subs := slices.Clone(s.subs)
	s.mu.Unlock()
	broadcast(subs, models.ProviderEvent{Type: models.ChainChanged, ChainID: chainID})
}

// broadcast delivers ev to every subscriber, waiting on slow readers until
// their subscription is cancelled. Callers hold sendMu so channels stay open.
func broadcast(subs []simSub, ev models.ProviderEvent) {
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.ctx.Done():
		}
	}
}

func (s *SimProvider) balanceLocked(address string) *big.Int {
	key := strings.ToLower(address)
	b, ok := s.balances[key]
	if !ok {
		b = new(big.Int)
		s.balances[key] = b
	}
	return b
}

func (s *SimProvider) mineLocked(from, to string, value *big.Int) string {
	s.seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], s.seq)
	hash := crypto.Keccak256Hash([]byte(s.chainID), buf[:]).Hex()

	number := uint64(len(s.blocks))
	s.blocks = append(s.blocks, []models.Transfer{{
		Hash:        hash,
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(value),
		BlockNumber: number,
	}})
	s.receipts[strings.ToLower(hash)] = models.Receipt{Hash: hash, BlockNumber: number, Success: true}
	return hash
}
