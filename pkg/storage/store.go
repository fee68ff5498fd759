package storage

import (
	"context"
	"errors"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

// ErrNotInitialized is returned by stores used after Close or never opened.
var ErrNotInitialized = errors.New("store is not initialized")

// TargetFilter selects recorded commit targets. Zero fields match everything.
type TargetFilter struct {
	RepoID string
	Kind   autotest.Kind
	Limit  int
}

// Store records the commit targets handed to the engine.
type Store interface {
	SaveTarget(ctx context.Context, target autotest.CommitTarget) error
	ListTargets(ctx context.Context, filter TargetFilter) ([]autotest.CommitTarget, error)
	Close() error
}

// Matches reports whether target passes filter. Limit is not considered.
func (f TargetFilter) Matches(target autotest.CommitTarget) bool {
	if f.RepoID != "" && f.RepoID != target.RepoID {
		return false
	}
	if f.Kind != "" && f.Kind != target.Kind {
		return false
	}
	return true
}
