// Resona - Cross-Device Audio Playback Synchronization
// Copyright 2026 Resona Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/resona-audio/resona

// Package localstate persists the small amount of client-side state that must
// survive process restarts: the stable device identity, the bearer token, and
// the per-user resume marker that gates the one-time position fetch after
// login.
package localstate

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("localstate: not found")

// Key layout for BadgerDB storage
const (
	keyDeviceID    = "device:id"
	keyDeviceName  = "device:name"
	keyDeviceType  = "device:type"
	keyAuthToken   = "auth:token"
	keyCurrentUser = "sync:current_user"
)

// Store is a BadgerDB-backed durable key store for one device.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open local state store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store. Used in tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DeviceID returns this installation's stable device identifier, generating
// and persisting one on first call. The ID never changes for the lifetime of
// the store directory.
func (s *Store) DeviceID() (string, error) {
	id, err := s.get(keyDeviceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id = uuid.New().String()
	if err := s.set(keyDeviceID, id); err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	return id, nil
}

// SetDeviceInfo stores the user-visible device name and type.
func (s *Store) SetDeviceInfo(name, deviceType string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyDeviceName), []byte(name)); err != nil {
			return fmt.Errorf("set device name: %w", err)
		}
		if err := txn.Set([]byte(keyDeviceType), []byte(deviceType)); err != nil {
			return fmt.Errorf("set device type: %w", err)
		}
		return nil
	})
}

// DeviceInfo returns the stored device name and type, empty when unset.
func (s *Store) DeviceInfo() (name, deviceType string) {
	name, _ = s.get(keyDeviceName)
	deviceType, _ = s.get(keyDeviceType)
	return name, deviceType
}

// Token returns the stored bearer token.
func (s *Store) Token() (string, error) {
	return s.get(keyAuthToken)
}

// SetToken stores the bearer token after a login.
func (s *Store) SetToken(token string) error {
	return s.set(keyAuthToken, token)
}

// ClearToken drops the bearer token. Called on logout and on credential
// teardown after a 401.
func (s *Store) ClearToken() error {
	return s.delete(keyAuthToken)
}

// CurrentSyncUser returns the user the client last started syncing for.
// A fresh login compares against this marker to decide whether the one-time
// resume fetch should run.
func (s *Store) CurrentSyncUser() (string, error) {
	return s.get(keyCurrentUser)
}

// SetCurrentSyncUser records the user the client is syncing for.
func (s *Store) SetCurrentSyncUser(userID string) error {
	return s.set(keyCurrentUser, userID)
}

// ClearCurrentSyncUser drops the resume marker so the next login fetches
// the remote position again.
func (s *Store) ClearCurrentSyncUser() error {
	return s.delete(keyCurrentUser)
}

func (s *Store) get(key string) (string, error) {
	var val string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *Store) set(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}
