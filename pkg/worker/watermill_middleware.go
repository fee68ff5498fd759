package worker

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Handler processes one delivery.
type Handler func(ctx context.Context, d *Delivery) error

// Middleware wraps a Handler.
type Middleware func(Handler) Handler

// MiddlewareFromWatermill adapts a watermill handler middleware (retry,
// timeout, poison queue, ...) to the worker handler chain.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, d *Delivery) error {
			payload, err := json.Marshal(d.Target)
			if err != nil {
				return err
			}
			msg := message.NewMessage(watermill.NewUUID(), payload)
			for key, value := range d.Metadata {
				msg.Metadata.Set(key, value)
			}
			msg.SetContext(ctx)
			wrapped := m(func(msg *message.Message) ([]*message.Message, error) {
				return nil, next(msg.Context(), d)
			})
			_, err = wrapped(msg)
			return err
		}
	}
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
