package prefstore

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type InMemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ Store = &InMemoryStore{}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{values: map[string]string{}}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("in-memory pref store: nil store")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("in-memory pref store: key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value string) error {
	if s == nil {
		return errors.New("in-memory pref store: nil store")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("in-memory pref store: key is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
