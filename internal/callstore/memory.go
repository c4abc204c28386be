package callstore

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	s.calls[rec.CallSID] = &rec
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, callSID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[callSID]
	if !ok {
		return ErrCallNotFound
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetTranscript(ctx context.Context, callSID string, turns []Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[callSID]
	if !ok {
		return ErrCallNotFound
	}
	rec.Transcript = append([]Turn(nil), turns...)
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetOutcome(ctx context.Context, callSID string, outcome Outcome, newDateTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.calls[callSID]
	if !ok {
		return ErrCallNotFound
	}
	rec.Outcome = outcome
	rec.NewDateTime = newDateTime
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callSID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.calls[callSID]
	if !ok {
		return nil, ErrCallNotFound
	}

	cp := *rec
	cp.Transcript = append([]Turn(nil), rec.Transcript...)
	return &cp, nil
}
