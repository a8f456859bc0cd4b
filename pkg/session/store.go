package session

import (
	"errors"
	"fmt"
	"log/slog"

	"walletd/pkg/models"
	"walletd/pkg/store"
)

// Persisted keys. The user_* keys belong to the application login and are
// wiped together with the wallet flags.
const (
	KeyConnected      = "wallet_connected"
	KeyAddress        = "wallet_address"
	KeyUserLoggedIn   = "user_logged_in"
	KeyUserRegistered = "user_registered"
	KeyUserData       = "user_data"
)

var clearedKeys = []string{KeyConnected, KeyAddress, KeyUserLoggedIn, KeyUserRegistered, KeyUserData}

// Store persists the minimum needed to hint a reconnect after restart.
type Store struct {
	kv     store.Store
	logger *slog.Logger
}

func NewStore(kv store.Store) *Store {
	return &Store{kv: kv, logger: slog.Default().With("component", "session-store")}
}

// Load returns the persisted session, or the empty session when nothing valid is stored.
func (s *Store) Load() models.Session {
	empty := models.EmptySession()

	flag, ok, err := s.kv.Get(KeyConnected)
	if err != nil {
		s.logger.Warn("session flag unreadable", "error", err)
		return empty
	}
	if !ok || flag != "true" {
		return empty
	}

	address, ok, err := s.kv.Get(KeyAddress)
	if err != nil {
		s.logger.Warn("session address unreadable", "error", err)
		return empty
	}
	if !ok || !models.ValidAddress(address) {
		s.logger.Warn("ignoring persisted session with invalid address", "address", address)
		return empty
	}

	restored := empty
	restored.Connected = true
	restored.Address = address
	return restored
}

// Save persists the connected flag and address of sess.
func (s *Store) Save(sess models.Session) error {
	if !sess.Connected {
		return s.Clear()
	}
	if err := s.kv.Set(KeyAddress, sess.Address); err != nil {
		return fmt.Errorf("save session address: %w", err)
	}
	if err := s.kv.Set(KeyConnected, "true"); err != nil {
		return fmt.Errorf("save session flag: %w", err)
	}
	return nil
}

// Clear removes every session key. All keys are attempted even if some fail.
func (s *Store) Clear() error {
	var errs []error
	for _, key := range clearedKeys {
		if err := s.kv.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
