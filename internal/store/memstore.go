package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/cadence/internal/score"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store]. Submissions do not survive a restart;
// use the postgres subpackage when durability matters.
type MemStore struct {
	mu   sync.Mutex
	subs map[string]*Submission

	// queue holds queued submission IDs in arrival order.
	queue []string

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		subs: make(map[string]*Submission),
		now:  time.Now,
	}
}

// Create implements [Store].
func (m *MemStore) Create(_ context.Context, sub *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.Status = StatusQueued
	sub.CreatedAt = m.now()
	sub.UpdatedAt = sub.CreatedAt

	cp := *sub
	m.subs[cp.ID] = &cp
	m.queue = append(m.queue, cp.ID)
	return nil
}

// Get implements [Store].
func (m *MemStore) Get(_ context.Context, id string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

// ClaimNext implements [Store].
func (m *MemStore) ClaimNext(_ context.Context) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, ErrNoneQueued
	}
	id := m.queue[0]
	m.queue = m.queue[1:]

	sub := m.subs[id]
	sub.Status = StatusProcessing
	sub.UpdatedAt = m.now()

	cp := *sub
	return &cp, nil
}

// Complete implements [Store].
func (m *MemStore) Complete(_ context.Context, id string, result *score.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = StatusCompleted
	sub.Result = result
	sub.Error = ""
	sub.UpdatedAt = m.now()
	return nil
}

// Fail implements [Store].
func (m *MemStore) Fail(_ context.Context, id string, errMsg string, res *score.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return ErrNotFound
	}
	sub.Status = StatusFailed
	sub.Error = errMsg
	if res != nil {
		sub.Result = res
	}
	sub.UpdatedAt = m.now()
	return nil
}

// RecoverStale implements [Store].
func (m *MemStore) RecoverStale(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recovered := 0
	for _, sub := range m.subs {
		if sub.Status == StatusProcessing {
			sub.Status = StatusFailed
			sub.Error = "recovered after unclean shutdown"
			sub.UpdatedAt = m.now()
			recovered++
		}
	}
	return recovered, nil
}

// ListRecent implements [Store].
func (m *MemStore) ListRecent(_ context.Context, limit int) ([]*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Submission, 0, len(m.subs))
	for _, sub := range m.subs {
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
