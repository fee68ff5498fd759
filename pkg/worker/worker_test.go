package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
)

type recordingEngine struct {
	mu       sync.Mutex
	pushes   []*autotest.CommitTarget
	comments []*autotest.CommitTarget
	failures int
	panics   bool
	calls    chan struct{}
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{calls: make(chan struct{}, 16)}
}

func (e *recordingEngine) record(list *[]*autotest.CommitTarget, target *autotest.CommitTarget) error {
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		e.calls <- struct{}{}
	}()
	if e.panics {
		panic("engine exploded")
	}
	if e.failures > 0 {
		e.failures--
		return fmt.Errorf("%w: grader offline", autotest.ErrUpstream)
	}
	*list = append(*list, target)
	return nil
}

func (e *recordingEngine) HandlePushEvent(ctx context.Context, target *autotest.CommitTarget) error {
	return e.record(&e.pushes, target)
}

func (e *recordingEngine) HandleCommentEvent(ctx context.Context, target *autotest.CommitTarget) error {
	return e.record(&e.comments, target)
}

func (e *recordingEngine) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-e.calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for engine call %d", i+1)
		}
	}
}

func startWorker(t *testing.T, engine autotest.Engine, opts ...Option) *gochannel.GoChannel {
	t.Helper()
	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	opts = append([]Option{
		WithSubscriber(pubsub),
		WithEngine(engine),
		WithTopics("autotest.push", "autotest.comment"),
		WithLogger(log.New(io.Discard, "", 0)),
	}, opts...)
	w := New(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("worker did not stop")
		}
		_ = w.Close()
	})
	return pubsub
}

func publish(t *testing.T, pub message.Publisher, topic, payload string) {
	t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	msg.Metadata.Set("request_id", "req-1")
	if err := pub.Publish(topic, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestWorkerDispatchesByKind(t *testing.T) {
	engine := newRecordingEngine()
	pubsub := startWorker(t, engine)

	publish(t, pubsub, "autotest.push", `{"kind":"push","repoId":"org/repo","commitSHA":"abc"}`)
	publish(t, pubsub, "autotest.comment", `{"kind":"comment","repoId":"org/repo","commitSHA":"def"}`)
	engine.wait(t, 2)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.pushes) != 1 || engine.pushes[0].CommitSHA != "abc" {
		t.Fatalf("unexpected pushes: %+v", engine.pushes)
	}
	if len(engine.comments) != 1 || engine.comments[0].CommitSHA != "def" {
		t.Fatalf("unexpected comments: %+v", engine.comments)
	}
}

func TestWorkerRedeliversUpstreamFailures(t *testing.T) {
	engine := newRecordingEngine()
	engine.failures = 1
	pubsub := startWorker(t, engine)

	publish(t, pubsub, "autotest.push", `{"kind":"push","repoId":"org/repo","commitSHA":"abc"}`)
	engine.wait(t, 2)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.pushes) != 1 {
		t.Fatalf("expected the redelivered target to succeed, got %d", len(engine.pushes))
	}
}

func TestWorkerSurvivesMalformedAndPanics(t *testing.T) {
	engine := newRecordingEngine()
	engine.panics = true
	var errs []error
	var mu sync.Mutex
	pubsub := startWorker(t, engine, WithListener(Listener{
		OnError: func(ctx context.Context, d *Delivery, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		},
	}))

	publish(t, pubsub, "autotest.push", `not json`)
	publish(t, pubsub, "autotest.push", `{"kind":"push","repoId":"org/repo","commitSHA":"abc"}`)
	engine.wait(t, 1)

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(errs)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 2 {
		t.Fatalf("expected decode and panic errors, got %v", errs)
	}
	if !errors.Is(errs[0], autotest.ErrValidation) || !errors.Is(errs[1], autotest.ErrInternal) {
		t.Fatalf("unexpected error classes: %v", errs)
	}
}

func TestDefaultCodecUsesMetadataKind(t *testing.T) {
	msg := message.NewMessage("1", []byte(`{"repoId":"org/repo"}`))
	msg.Metadata.Set("kind", "comment")

	d, err := DefaultCodec{}.Decode("autotest.comment", msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Target.Kind != autotest.KindComment || d.Topic != "autotest.comment" {
		t.Fatalf("unexpected delivery: %+v", d)
	}

	if _, err := (DefaultCodec{}).Decode("x", message.NewMessage("2", []byte(`{"kind":"issue"}`))); !errors.Is(err, autotest.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetryUpstream(t *testing.T) {
	policy := RetryUpstream{}
	if !policy.OnError(context.Background(), nil, fmt.Errorf("x: %w", autotest.ErrUpstream)).Nack {
		t.Fatalf("expected upstream failures to be redelivered")
	}
	if policy.OnError(context.Background(), nil, autotest.ErrValidation).Nack {
		t.Fatalf("expected malformed targets to be acknowledged")
	}
}

func TestTopicsFromConfig(t *testing.T) {
	cfg := internal.Config{Rules: []internal.Rule{
		{When: "a == 1", Emit: internal.EmitList{"autotest.audit", "autotest.push"}},
	}}
	cfg.Engine.PushTopic = "autotest.push"
	cfg.Engine.CommentTopic = "autotest.comment"

	topics := Topics(cfg)
	if len(topics) != 3 || topics[2] != "autotest.audit" {
		t.Fatalf("unexpected topics: %v", topics)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	if err := New().Run(context.Background()); err == nil {
		t.Fatalf("expected an error without a subscriber")
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	if err := New(WithSubscriber(pubsub), WithTopics("t")).Run(context.Background()); err == nil {
		t.Fatalf("expected an error without an engine")
	}
}
