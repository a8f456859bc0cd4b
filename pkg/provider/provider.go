package provider

import (
	"context"
	"math/big"

	"walletd/pkg/models"
)

// Provider is the external signing agent. It holds the keys; this module never signs.
type Provider interface {
	// RequestAccounts asks the user to authorize the wallet and returns the granted accounts.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts returns the currently authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	// ChainID returns the hex chain identifier, e.g. "0x1".
	ChainID(ctx context.Context) (string, error)
	// Balance returns the balance of address in wei at the latest block.
	Balance(ctx context.Context, address string) (*big.Int, error)
	EstimateGas(ctx context.Context, tx models.TxParams) (uint64, error)
	// SendTransaction hands tx to the provider for signing and broadcast and returns its hash.
	SendTransaction(ctx context.Context, tx models.TxParams) (string, error)

	BlockNumber(ctx context.Context) (uint64, error)
	// BlockTransfers lists the value transfers contained in block n.
	BlockTransfers(ctx context.Context, n uint64) ([]models.Transfer, error)
	// Receipt returns nil without error while hash is not mined yet.
	Receipt(ctx context.Context, hash string) (*models.Receipt, error)

	// Subscribe delivers accountsChanged and chainChanged events in arrival order
	// until ctx is cancelled, at which point the channel is closed.
	Subscribe(ctx context.Context) <-chan models.ProviderEvent
}
