package worker

import (
	"context"
	"errors"

	"github.com/brandonmcclure/classy/pkg/autotest"
)

// RetryDecision tells the worker whether to redeliver a failed message.
type RetryDecision struct {
	Nack bool
}

// RetryPolicy decides what happens to a message whose handling failed.
type RetryPolicy interface {
	OnError(ctx context.Context, d *Delivery, err error) RetryDecision
}

// NoRetry acknowledges every failed message.
type NoRetry struct{}

func (NoRetry) OnError(ctx context.Context, d *Delivery, err error) RetryDecision {
	return RetryDecision{}
}

// RetryUpstream redelivers messages that failed on an upstream dependency.
// Malformed targets are acknowledged so they cannot block the topic.
type RetryUpstream struct{}

func (RetryUpstream) OnError(ctx context.Context, d *Delivery, err error) RetryDecision {
	if errors.Is(err, autotest.ErrValidation) {
		return RetryDecision{}
	}
	return RetryDecision{Nack: errors.Is(err, autotest.ErrUpstream)}
}
