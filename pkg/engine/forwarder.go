// Package engine hands normalized commit targets to the testing engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/runtime"
	"github.com/brandonmcclure/classy/pkg/storage"
)

// Options wires a Forwarder. Store and Publisher are required.
type Options struct {
	Store        storage.Store
	Runtime      runtime.Client
	Rules        *internal.RuleEngine
	Publisher    internal.Publisher
	Deduper      Deduper
	PushTopic    string
	CommentTopic string
	Logger       *log.Logger
}

// Forwarder records each target and publishes it to the engine transport:
// once on the default topic for its kind and once per matching routing rule.
// It keeps no per-call state and is safe for concurrent use.
type Forwarder struct {
	store        storage.Store
	runtime      runtime.Client
	rules        *internal.RuleEngine
	publisher    internal.Publisher
	deduper      Deduper
	pushTopic    string
	commentTopic string
	logger       *log.Logger
}

var _ autotest.Engine = (*Forwarder)(nil)

func New(opts Options) (*Forwarder, error) {
	if opts.Store == nil {
		return nil, errors.New("engine store is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("engine publisher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	pushTopic := opts.PushTopic
	if pushTopic == "" {
		pushTopic = "autotest.push"
	}
	commentTopic := opts.CommentTopic
	if commentTopic == "" {
		commentTopic = "autotest.comment"
	}
	return &Forwarder{
		store:        opts.Store,
		runtime:      opts.Runtime,
		rules:        opts.Rules,
		publisher:    opts.Publisher,
		deduper:      opts.Deduper,
		pushTopic:    pushTopic,
		commentTopic: commentTopic,
		logger:       logger,
	}, nil
}

func (f *Forwarder) HandlePushEvent(ctx context.Context, target *autotest.CommitTarget) error {
	return f.forward(ctx, autotest.KindPush, target)
}

func (f *Forwarder) HandleCommentEvent(ctx context.Context, target *autotest.CommitTarget) error {
	return f.forward(ctx, autotest.KindComment, target)
}

// Ready reports whether the container runtime answers. Deployments without a
// runtime are always ready.
func (f *Forwarder) Ready(ctx context.Context) error {
	if f.runtime == nil {
		return nil
	}
	if _, err := f.runtime.Ping(ctx); err != nil {
		return fmt.Errorf("%w: runtime ping: %v", autotest.ErrUpstream, err)
	}
	return nil
}

func (f *Forwarder) forward(ctx context.Context, kind autotest.Kind, target *autotest.CommitTarget) error {
	if target == nil {
		return fmt.Errorf("%w: nil target", autotest.ErrValidation)
	}
	if !target.Kind.Valid() || target.Kind != kind {
		return fmt.Errorf("%w: %s handler got target kind %q", autotest.ErrValidation, kind, target.Kind)
	}
	logger := internal.WithRequestID(f.logger, internal.RequestIDFromContext(ctx))

	if f.deduper != nil && target.DeliveryID != "" {
		seen, err := f.deduper.Seen(ctx, target.DeliveryID)
		if err != nil {
			logger.Printf("dedupe lookup failed, forwarding anyway: %v", err)
		} else if seen {
			logger.Printf("delivery %s already forwarded", target.DeliveryID)
			return nil
		}
	}

	if err := f.forwardOnce(ctx, logger, target); err != nil {
		if f.deduper != nil && target.DeliveryID != "" {
			if forgetErr := f.deduper.Forget(ctx, target.DeliveryID); forgetErr != nil {
				logger.Printf("dedupe forget failed: %v", forgetErr)
			}
		}
		return err
	}
	return nil
}

func (f *Forwarder) forwardOnce(ctx context.Context, logger *log.Logger, target *autotest.CommitTarget) error {
	if err := f.store.SaveTarget(ctx, *target); err != nil {
		return fmt.Errorf("%w: save target: %v", autotest.ErrInternal, err)
	}

	payload, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("%w: encode target: %v", autotest.ErrInternal, err)
	}
	event := internal.Event{
		Kind:       string(target.Kind),
		Repository: target.RepoID,
		DeliveryID: target.DeliveryID,
		RequestID:  internal.RequestIDFromContext(ctx),
		Payload:    payload,
	}

	topic := f.defaultTopic(target.Kind)
	publishErr := f.publisher.Publish(ctx, topic, event)
	matches := f.rules.EvaluateWithLogger(event, logger)
	for _, match := range matches {
		if err := f.publisher.PublishForDrivers(ctx, match.Topic, event, match.Drivers); err != nil {
			publishErr = errors.Join(publishErr, err)
		}
	}
	logger.Printf("target kind=%s repo=%s sha=%s topic=%s rules=%d", target.Kind, target.RepoID, target.CommitSHA, topic, len(matches))
	if publishErr != nil {
		return fmt.Errorf("%w: %w", autotest.ErrUpstream, publishErr)
	}
	return nil
}

func (f *Forwarder) defaultTopic(kind autotest.Kind) string {
	if kind == autotest.KindComment {
		return f.commentTopic
	}
	return f.pushTopic
}

// Close releases the transport and the dedupe client. The store and runtime
// belong to whoever opened them.
func (f *Forwarder) Close() error {
	err := f.publisher.Close()
	if f.deduper != nil {
		err = errors.Join(err, f.deduper.Close())
	}
	return err
}
