package pipeline

import (
	"context"
	"sync"

	"profile-agent/internal/domain"
)

// IdempotencyStore serializes duplicate side-effecting actions within a
// session. Claim is an atomic check-and-set: exactly one caller wins the
// claim for a key; later callers observe either the completed result or a
// pending claim. Release returns a claimed key to the pool so a retried turn
// can re-attempt after a failed execution.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (claimed bool, cached string, err error)
	Complete(ctx context.Context, key, result string) error
	Release(ctx context.Context, key string) error
}

// ActionKey builds the idempotency key for a side-effecting action. The
// status field alone is not a safe concurrency guard (two turns can both
// read Offered before either writes Sent), so the key is the unit that gets
// check-and-set atomically.
func ActionKey(sessionID string, t domain.ActionType) string {
	return sessionID + "#" + string(t)
}

type idemRecord struct {
	done   bool
	result string
}

// MemoryIdempotencyStore is the in-process store used in tests and local
// runs. The DynamoDB-backed store in internal/repository has the same
// semantics via conditional writes.
type MemoryIdempotencyStore struct {
	mu    sync.Mutex
	items map[string]*idemRecord
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{items: make(map[string]*idemRecord)}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, key string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.items[key]; ok {
		if rec.done {
			return false, rec.result, nil
		}
		return false, "", nil
	}
	s.items[key] = &idemRecord{}
	return true, "", nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = &idemRecord{done: true, result: result}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}
