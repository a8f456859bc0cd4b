package models

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	addrPrefix = "0x"
	addrLen    = len(addrPrefix) + 40
)

// UnknownBalance is reported whenever the balance could not be fetched.
const UnknownBalance = "0.0"

// ValidAddress reports whether addr is a canonical 0x-prefixed, 20-byte hex address.
func ValidAddress(addr string) bool {
	return len(addr) == addrLen && strings.HasPrefix(addr, addrPrefix) && common.IsHexAddress(addr)
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Session is the local record of the wallet connection.
type Session struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
	Network   string `json:"network"`
	Balance   string `json:"balance"`
}

// ReceiveURI is the payment request encoded in receive QR codes.
func ReceiveURI(address string) string {
	return "ethereum:" + address
}

// EmptySession returns the disconnected session.
func EmptySession() Session {
	return Session{Network: "Unknown", Balance: UnknownBalance}
}

// Direction of a ledger entry relative to the local address.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Status of a ledger entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Transaction is a single ledger entry.
type Transaction struct {
	ID          string    `json:"id"`
	Direction   Direction `json:"type"`
	Amount      string    `json:"amount"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Note        string    `json:"note,omitempty"`
	Hash        string    `json:"hash"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
}

// TxParams is the request handed to the signing provider.
type TxParams struct {
	From  string
	To    string
	Value *big.Int
	Gas   uint64
	Data  []byte
}

// Transfer is a value transfer observed in a block.
type Transfer struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	BlockNumber uint64
}

// Receipt holds the outcome of a mined transaction.
type Receipt struct {
	Hash        string
	BlockNumber uint64
	Success     bool
}

// ProviderEventType identifies asynchronous provider notifications.
type ProviderEventType string

const (
	AccountsChanged ProviderEventType = "accountsChanged"
	ChainChanged    ProviderEventType = "chainChanged"
)

// ProviderEvent is delivered by the signing provider in arrival order.
type ProviderEvent struct {
	Type     ProviderEventType
	Accounts []string
	ChainID  string
}

// TestReport holds the results of the provider self-test.
type TestReport struct {
	ConfigPath string   `json:"config_path"`
	RPCURL     string   `json:"rpc_url"`
	Reachable  bool     `json:"reachable"`
	ChainID    string   `json:"chain_id,omitempty"`
	Network    string   `json:"network,omitempty"`
	Accounts   []string `json:"accounts,omitempty"`
	Ledgers    []string `json:"ledgers,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}
