package verification

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/thelesson/lessonbill/internal/clock"
)

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryStore keeps codes in process memory. Used in development and tests.
func NewMemoryStore(clk clock.Clock) Store {
	return &memoryStore{
		clock:   clk,
		entries: map[string]memoryEntry{},
	}
}

func (s *memoryStore) Put(_ context.Context, phone, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[strings.TrimSpace(phone)] = memoryEntry{
		code:      code,
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}

func (s *memoryStore) Take(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(phone)
	entry, ok := s.entries[key]
	if !ok {
		return ErrCodeMismatch
	}
	if s.clock.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return ErrCodeMismatch
	}
	if entry.code != code {
		return ErrCodeMismatch
	}
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, strings.TrimSpace(phone))
	return nil
}
