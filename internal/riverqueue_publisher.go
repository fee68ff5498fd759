package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// commitTargetJob is the job args inserted for each published target. The job
// kind is configurable, so it is carried unexported and not serialized.
type commitTargetJob struct {
	kind       string
	Topic      string          `json:"topic"`
	TargetKind string          `json:"target_kind"`
	Target     json.RawMessage `json:"target"`
}

func (j commitTargetJob) Kind() string { return j.kind }

// riverQueuePublisher inserts commit targets as River jobs. It never works
// jobs itself; engine workers consume the queue.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

func newRiverQueuePublisher(cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("riverqueue dsn is required")
	}
	pool, err := pgxpool.New(context.Background(), cfg.DSN)
	if err != nil {
		return nil, err
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger:              slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})),
		SkipUnknownJobCheck: true,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	target := event.Payload
	if len(target) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		target = encoded
	}

	metadata, err := json.Marshal(map[string]string{
		"topic":       topic,
		"repository":  event.Repository,
		"delivery_id": event.DeliveryID,
		"request_id":  event.RequestID,
	})
	if err != nil {
		return err
	}

	_, err = p.client.Insert(ctx, commitTargetJob{
		kind:       p.cfg.Kind,
		Topic:      topic,
		TargetKind: event.Kind,
		Target:     target,
	}, &river.InsertOpts{
		MaxAttempts: p.cfg.MaxAttempts,
		Metadata:    metadata,
		Priority:    p.cfg.Priority,
		Queue:       p.cfg.Queue,
		Tags:        p.cfg.Tags,
	})
	return err
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}

func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
