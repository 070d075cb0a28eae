// Package credentials persists the single bearer credential the client uses
// to authenticate every API request.
package credentials

import (
	"context"
	"errors"
	"sync"
)

// Key is the name under which the credential is stored in every backend.
const Key = "auth_token"

// ErrNotFound indicates no credential is stored.
var ErrNotFound = errors.New("credential not found")

// Store is a persistence backend for the credential.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// NewMemoryStore returns a Store that keeps the credential in process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore implements Store for tests and throwaway sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// Load returns the stored credential or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNotFound
	}
	return s.token, nil
}

// Save replaces the stored credential.
func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Delete removes the stored credential.
func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
