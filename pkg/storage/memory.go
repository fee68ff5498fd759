package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

type targetKey struct {
	kind autotest.Kind
	repo string
	sha  string
}

// MemoryStore keeps targets in process memory. Saving a target for the same
// kind, repository and commit replaces the earlier record.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[targetKey]autotest.CommitTarget
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[targetKey]autotest.CommitTarget)}
}

func (m *MemoryStore) SaveTarget(ctx context.Context, target autotest.CommitTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrNotInitialized
	}
	m.targets[targetKey{kind: target.Kind, repo: target.RepoID, sha: target.CommitSHA}] = target
	return nil
}

// ListTargets returns matching targets, newest first.
func (m *MemoryStore) ListTargets(ctx context.Context, filter TargetFilter) ([]autotest.CommitTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrNotInitialized
	}
	out := make([]autotest.CommitTarget, 0, len(m.targets))
	for _, target := range m.targets {
		if filter.Matches(target) {
			out = append(out, target)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].CommitSHA < out[j].CommitSHA
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
