package autotest

import (
	"context"
	"errors"
	"testing"
)

type recordingEngine struct {
	pushes   int
	comments int
}

func (e *recordingEngine) HandlePushEvent(ctx context.Context, target *CommitTarget) error {
	e.pushes++
	return nil
}

func (e *recordingEngine) HandleCommentEvent(ctx context.Context, target *CommitTarget) error {
	e.comments++
	return nil
}

func TestDispatchRoutesByKind(t *testing.T) {
	engine := &recordingEngine{}
	if err := Dispatch(context.Background(), engine, &CommitTarget{Kind: KindPush}); err != nil {
		t.Fatalf("dispatch push: %v", err)
	}
	if err := Dispatch(context.Background(), engine, &CommitTarget{Kind: KindComment}); err != nil {
		t.Fatalf("dispatch comment: %v", err)
	}
	if engine.pushes != 1 || engine.comments != 1 {
		t.Fatalf("expected one call per handler, got push=%d comment=%d", engine.pushes, engine.comments)
	}
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	engine := &recordingEngine{}
	err := Dispatch(context.Background(), engine, &CommitTarget{Kind: Kind("release")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if engine.pushes+engine.comments != 0 {
		t.Fatalf("expected engine not to be invoked")
	}
}

func TestDispatchRejectsNilTarget(t *testing.T) {
	if err := Dispatch(context.Background(), &recordingEngine{}, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
