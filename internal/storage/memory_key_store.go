package storage

import (
	"context"
	"sync"
)

// InMemoryKeyStore holds API keys in memory, plaintext, lost on restart.
// Development and test use only; production runs PersistentKeyStore.
type InMemoryKeyStore struct {
	mu    sync.RWMutex
	byKey map[string]*APIKey
	byID  map[string]*APIKey
}

var _ KeyStore = (*InMemoryKeyStore)(nil)

// NewInMemoryKeyStore creates an empty in-memory key store.
func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		byKey: make(map[string]*APIKey),
		byID:  make(map[string]*APIKey),
	}
}

// FindByKey looks up an API key by its key string. The returned value is a
// copy; callers cannot mutate the stored record through it.
func (s *InMemoryKeyStore) FindByKey(_ context.Context, key string) (*APIKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apiKey, ok := s.byKey[key]
	if !ok {
		return nil, false
	}

	cp := *apiKey

	return &cp, true
}

// Add stores a new API key. Both the id and the key string must be unused.
func (s *InMemoryKeyStore) Add(_ context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[apiKey.ID]; ok {
		return ErrKeyAlreadyExists
	}

	if _, ok := s.byKey[apiKey.Key]; ok {
		return ErrKeyAlreadyExists
	}

	cp := *apiKey
	s.byKey[cp.Key] = &cp
	s.byID[cp.ID] = &cp

	return nil
}

// Delete removes an API key by id.
func (s *InMemoryKeyStore) Delete(keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[keyID]
	if !ok {
		return ErrKeyNotFound
	}

	delete(s.byKey, existing.Key)
	delete(s.byID, keyID)

	return nil
}
