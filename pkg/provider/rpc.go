package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"walletd/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const codeMethodNotFound = -32601

// DefaultEventPollInterval is how often accounts and chain id are polled for changes.
var DefaultEventPollInterval = 2 * time.Second

// RPCProvider is a Provider backed by a JSON-RPC endpoint that manages the keys
// itself (a wallet bridge or a node with unlocked accounts).
type RPCProvider struct {
	url          string
	client       *rpc.Client
	eth          *ethclient.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// DialRPC connects to url. HTTP endpoints are not contacted until the first call.
func DialRPC(ctx context.Context, url string, pollInterval time.Duration) (*RPCProvider, error) {
	if url == "" {
		return nil, ErrProviderUnavailable
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultEventPollInterval
	}
	return &RPCProvider{
		url:          url,
		client:       client,
		eth:          ethclient.NewClient(client),
		pollInterval: pollInterval,
		logger:       slog.Default().With("component", "provider", "url", url),
	}, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeMethodNotFound {
		// Plain nodes expose their managed accounts without an authorization prompt.
		return p.Accounts(ctx)
	}
	if err != nil {
		return nil, p.wrap(err)
	}
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, p.wrap(err)
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return "", p.wrap(err)
	}
	return id, nil
}

func (p *RPCProvider) Balance(ctx context.Context, address string) (*big.Int, error) {
	return p.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (p *RPCProvider) EstimateGas(ctx context.Context, tx models.TxParams) (uint64, error) {
	var gas hexutil.Uint64
	if err := p.client.CallContext(ctx, &gas, "eth_estimateGas", toCallArg(tx)); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx models.TxParams) (string, error) {
	var hash string
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", toCallArg(tx)); err != nil {
		return "", Classify(err)
	}
	return hash, nil
}

func (p *RPCProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.eth.BlockNumber(ctx)
}

func (p *RPCProvider) BlockTransfers(ctx context.Context, n uint64) ([]models.Transfer, error) {
	chainID, err := p.eth.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	block, err := p.eth.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		return nil, err
	}
	signer := types.NewLondonSigner(chainID)

	var transfers []models.Transfer
	for _, tx := range block.Transactions() {
		if tx.To() == nil || tx.Value().Sign() == 0 {
			continue
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			p.logger.Debug("skipping transaction with unknown sender", "tx", tx.Hash().Hex(), "error", err)
			continue
		}
		transfers = append(transfers, models.Transfer{
			Hash:        tx.Hash().Hex(),
			From:        from.Hex(),
			To:          tx.To().Hex(),
			Value:       tx.Value(),
			BlockNumber: block.NumberU64(),
		})
	}
	return transfers, nil
}

func (p *RPCProvider) Receipt(ctx context.Context, hash string) (*models.Receipt, error) {
	r, err := p.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Receipt{
		Hash:        hash,
		BlockNumber: r.BlockNumber.Uint64(),
		Success:     r.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// Subscribe polls eth_accounts and eth_chainId, emitting an event whenever either changes.
// JSON-RPC endpoints have no push channel for these notifications.
func (p *RPCProvider) Subscribe(ctx context.Context) <-chan models.ProviderEvent {
	ch := make(chan models.ProviderEvent, 16)
	go func() {
		defer close(ch)

		accounts, _ := p.Accounts(ctx)
		chainID, _ := p.ChainID(ctx)

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if current, err := p.Accounts(ctx); err == nil && !slices.Equal(current, accounts) {
				accounts = current
				if !emit(ctx, ch, models.ProviderEvent{Type: models.AccountsChanged, Accounts: slices.Clone(current)}) {
					return
				}
			}
			if current, err := p.ChainID(ctx); err == nil && current != chainID {
				chainID = current
				if !emit(ctx, ch, models.ProviderEvent{Type: models.ChainChanged, ChainID: current}) {
					return
				}
			}
		}
	}()
	return ch
}

func (p *RPCProvider) wrap(err error) error {
	err = Classify(err)
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) || errors.Is(err, ErrUserRejected) || errors.Is(err, ErrProviderBusy) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Anything that never produced a JSON-RPC response means nobody is answering.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func emit(ctx context.Context, ch chan<- models.ProviderEvent, ev models.ProviderEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toCallArg(tx models.TxParams) map[string]interface{} {
	arg := map[string]interface{}{
		"from": tx.From,
		"to":   tx.To,
	}
	if tx.Value != nil {
		arg["value"] = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		arg["gas"] = hexutil.Uint64(tx.Gas)
	}
	if len(tx.Data) > 0 {
		arg["data"] = hexutil.Bytes(tx.Data)
	}
	return arg
}
