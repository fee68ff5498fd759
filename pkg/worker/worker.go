// Package worker consumes the commit targets the gateway publishes and hands
// them to a testing engine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/brandonmcclure/classy/pkg/autotest"
)

// Worker subscribes to target topics, decodes each message and dispatches the
// target to the engine handler for its kind.
type Worker struct {
	subscriber  message.Subscriber
	engine      autotest.Engine
	codec       Codec
	retry       RetryPolicy
	logger      Logger
	concurrency int
	topics      []string
	middleware  []Middleware
	listeners   []Listener
}

// New creates a new Worker with the given options.
func New(opts ...Option) *Worker {
	w := &Worker{
		codec:       DefaultCodec{},
		retry:       RetryUpstream{},
		logger:      defaultWorkerLogger,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run subscribes to every topic and processes messages until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("subscriber is required")
	}
	if w.engine == nil {
		return errors.New("engine is required")
	}
	if len(w.topics) == 0 {
		return errors.New("at least one topic is required")
	}

	w.notifyStart(ctx)
	defer w.notifyExit(ctx)
	sem := make(chan struct{}, w.concurrency)

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, topic := range unique(w.topics) {
		msgs, err := w.subscriber.Subscribe(ctx, topic)
		if err != nil {
			w.notifyError(ctx, nil, err)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		wg.Add(1)
		go func(topic string, ch <-chan *message.Message) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					sem <- struct{}{}
					wg.Add(1)
					go func(msg *message.Message) {
						defer wg.Done()
						defer func() { <-sem }()
						w.handleMessage(ctx, topic, msg)
					}(msg)
				}
			}
		}(topic, msgs)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Close shuts down the subscriber.
func (w *Worker) Close() error {
	if w.subscriber == nil {
		return nil
	}
	return w.subscriber.Close()
}

func (w *Worker) handleMessage(ctx context.Context, topic string, msg *message.Message) {
	delivery, err := w.codec.Decode(topic, msg)
	if err != nil {
		w.logger.Printf("decode failed topic=%s: %v", topic, err)
		w.notifyError(ctx, nil, err)
		w.settle(ctx, msg, nil, err)
		return
	}
	if reqID := delivery.RequestID(); reqID != "" {
		w.logger.Printf("request_id=%s topic=%s kind=%s repo=%s", reqID, topic, delivery.Target.Kind, delivery.Target.RepoID)
	}

	w.notifyMessageStart(ctx, delivery)
	err = w.wrap(w.dispatch)(ctx, delivery)
	w.notifyMessageFinish(ctx, delivery, err)
	if err != nil {
		w.logger.Printf("handle %s@%s failed: %v", delivery.Target.RepoID, delivery.Target.CommitSHA, err)
		w.notifyError(ctx, delivery, err)
	}
	w.settle(ctx, msg, delivery, err)
}

// dispatch calls the engine, turning a panic into an error so one bad target
// cannot stop the worker.
func (w *Worker) dispatch(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: engine panic: %v", autotest.ErrInternal, v)
		}
	}()
	return autotest.Dispatch(ctx, w.engine, d.Target)
}

func (w *Worker) settle(ctx context.Context, msg *message.Message, d *Delivery, err error) {
	if err != nil && w.retry.OnError(ctx, d, err).Nack {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (w *Worker) wrap(h Handler) Handler {
	wrapped := h
	for i := len(w.middleware) - 1; i >= 0; i-- {
		wrapped = w.middleware[i](wrapped)
	}
	return wrapped
}
