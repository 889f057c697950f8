package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/odyssey-erp/cargo-ledger/internal/shared"
)

// Idempotency keeps processed request keys in memory.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewIdempotency returns an empty key store.
func NewIdempotency() *Idempotency {
	return &Idempotency{keys: make(map[string]time.Time), now: time.Now}
}

// CheckAndInsert records key, failing when it was seen before.
func (s *Idempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = s.now()
	return nil
}

// Delete forgets key.
func (s *Idempotency) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

// Cleanup drops keys older than olderThan and reports how many went.
func (s *Idempotency) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, at := range s.keys {
		if at.Before(cutoff) {
			delete(s.keys, key)
			n++
		}
	}
	return n, nil
}

// AuditTrail collects audit records in memory.
type AuditTrail struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

// Record appends a record.
func (a *AuditTrail) Record(_ context.Context, log shared.AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	return nil
}

// Entries returns a copy of every record so far.
func (a *AuditTrail) Entries() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.entries...)
}
