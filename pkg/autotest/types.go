package autotest

import (
	"context"
	"errors"
	"fmt"
)

// Kind discriminates the two webhook-triggered request shapes.
type Kind string

const (
	KindPush    Kind = "push"
	KindComment Kind = "comment"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindPush || k == KindComment
}

// CommitTarget is the normalized test request produced from a webhook delivery.
type CommitTarget struct {
	Kind        Kind   `json:"kind"`
	RepoID      string `json:"repoId"`
	CloneURL    string `json:"cloneURL"`
	CommitSHA   string `json:"commitSHA"`
	CommitURL   string `json:"commitURL"`
	PostbackURL string `json:"postbackURL"`
	Ref         string `json:"ref"`
	PersonID    string `json:"personId"`
	Timestamp   int64  `json:"timestamp"`
	DelivID     string `json:"delivId"`
	DeliveryID  string `json:"deliveryId,omitempty"`

	Comment *CommentInfo `json:"comment,omitempty"`
	Push    *PushInfo    `json:"push,omitempty"`
}

// CommentInfo carries the comment-only part of a target.
type CommentInfo struct {
	Body  string       `json:"body"`
	Flags CommentFlags `json:"flags"`
}

// CommentFlags are the #-prefixed switches a student or staff member can put in a comment.
type CommentFlags struct {
	Force      bool `json:"force,omitempty"`
	Silent     bool `json:"silent,omitempty"`
	Schedule   bool `json:"schedule,omitempty"`
	Unschedule bool `json:"unschedule,omitempty"`
	Check      bool `json:"check,omitempty"`
}

// PushInfo carries the push-only part of a target.
type PushInfo struct {
	Pusher  string `json:"pusher"`
	Commits int    `json:"commits"`
	Created bool   `json:"created"`
	Forced  bool   `json:"forced"`
}

// Engine is the testing engine as seen by the gateway.
// Implementations must accept concurrent calls for distinct targets.
type Engine interface {
	HandlePushEvent(ctx context.Context, target *CommitTarget) error
	HandleCommentEvent(ctx context.Context, target *CommitTarget) error
}

// ClassPortal supplies course metadata used while normalizing deliveries.
type ClassPortal interface {
	DefaultDeliverable(ctx context.Context) (string, error)
	PersonID(ctx context.Context, githubLogin string) (string, error)
}

// Error taxonomy shared by the gateway packages.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNormalization = errors.New("normalization failed")
	ErrUpstream      = errors.New("upstream failure")
	ErrNotFound      = errors.New("not found")
	ErrInternal      = errors.New("internal failure")
)

// Dispatch routes target to the engine handler matching its kind.
func Dispatch(ctx context.Context, engine Engine, target *CommitTarget) error {
	if target == nil {
		return fmt.Errorf("%w: nil target", ErrValidation)
	}
	switch target.Kind {
	case KindPush:
		return engine.HandlePushEvent(ctx, target)
	case KindComment:
		return engine.HandleCommentEvent(ctx, target)
	default:
		return fmt.Errorf("%w: unknown target kind %q", ErrValidation, target.Kind)
	}
}
