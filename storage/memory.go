package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ruteri/push-relay/interfaces"
)

// MemoryStore is a process-local RegistrationStore for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]interfaces.Registration
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]interfaces.Registration),
		now:     time.Now,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = interfaces.Registration{
		Key:       key,
		Token:     token,
		Timestamp: s.now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*interfaces.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.records[key]
	if !ok {
		return nil, interfaces.ErrRegistrationNotFound
	}
	return &reg, nil
}

// List returns registrations ordered by key.
func (s *MemoryStore) List(ctx context.Context) ([]interfaces.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	registrations := make([]interfaces.Registration, 0, len(s.records))
	for _, reg := range s.records {
		registrations = append(registrations, reg)
	}
	sort.Slice(registrations, func(i, j int) bool {
		return registrations[i].Key < registrations[j].Key
	})
	return registrations, nil
}

func (s *MemoryStore) DeleteIfToken(ctx context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.records[key]
	if !ok || reg.Token != token {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

// Len returns the number of stored registrations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Available(ctx context.Context) bool {
	return true
}

func (s *MemoryStore) Name() string {
	return "memory"
}
