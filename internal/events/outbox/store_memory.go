package outbox

import (
	"context"
	"sync"
	"time"

	"civicdesk/internal/events"

	"github.com/google/uuid"
)

// MemoryStore keeps outbox entries in memory for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	nextSeq int64
}

// NewMemory constructs an empty in-memory outbox.
func NewMemory() *MemoryStore {
	return &MemoryStore{nextSeq: 1}
}

// Append stores one event.
func (s *MemoryStore) Append(ctx context.Context, event events.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	s.entries = append(s.entries, Entry{
		ID:        s.nextSeq,
		Event:     event,
		CreatedAt: time.Now(),
	})
	s.nextSeq++
	return nil
}

// FetchPending returns up to limit unpublished entries, oldest first.
func (s *MemoryStore) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []Entry
	for _, entry := range s.entries {
		if len(pending) == limit {
			break
		}
		pending = append(pending, entry)
	}
	return pending, nil
}

// MarkPublished drops delivered entries.
func (s *MemoryStore) MarkPublished(ctx context.Context, seqs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := make(map[int64]bool, len(seqs))
	for _, seq := range seqs {
		published[seq] = true
	}
	remaining := s.entries[:0]
	for _, entry := range s.entries {
		if !published[entry.ID] {
			remaining = append(remaining, entry)
		}
	}
	s.entries = remaining
	return nil
}

// Len reports the number of undelivered entries. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
