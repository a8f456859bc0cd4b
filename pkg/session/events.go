package session

import "walletd/pkg/models"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventConnected           EventType = "connected"
	EventDisconnected        EventType = "disconnected"
	EventAccountChanged      EventType = "account_changed"
	EventNetworkChanged      EventType = "network_changed"
	EventBalanceUpdated      EventType = "balance_updated"
	EventTransactionsUpdated EventType = "transactions_updated"
	EventError               EventType = "error"
)

// Event represents a session change. Session is the snapshot after the change.
type Event struct {
	Type    EventType      `json:"type"`
	Session models.Session `json:"session"`
	Error   string         `json:"error,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
