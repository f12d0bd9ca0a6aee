package storage

import (
	"context"
	"sync"
)

var _ CredentialStore = (*MemoryStorage)(nil)

// MemoryStorage keeps options in process memory. Values are lost on restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	options map[string]string
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		options: make(map[string]string),
	}
}

func (s *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.options[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.options[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.options, key)
	s.mu.Unlock()
	return nil
}

// UpdatePayload replaces the token set under a single lock
func (s *MemoryStorage) UpdatePayload(_ context.Context, tokens TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range tokens.values() {
		s.options[key] = value
	}
	return nil
}

func (s *MemoryStorage) TokenSet(_ context.Context) (TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return tokenSetFrom(func(key string) string { return s.options[key] }), nil
}

func (s *MemoryStorage) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range AllKeys {
		delete(s.options, key)
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
