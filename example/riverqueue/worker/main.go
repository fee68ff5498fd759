package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
)

var jobKind = "autotest.commit_target"

// CommitTargetArgs mirrors the job the gateway inserts for each target.
type CommitTargetArgs struct {
	Topic      string          `json:"topic"`
	TargetKind string          `json:"target_kind"`
	Target     json.RawMessage `json:"target"`
}

func (CommitTargetArgs) Kind() string { return jobKind }

type CommitTargetWorker struct {
	river.WorkerDefaults[CommitTargetArgs]
	logger *slog.Logger
}

func (w *CommitTargetWorker) Work(ctx context.Context, job *river.Job[CommitTargetArgs]) error {
	var target autotest.CommitTarget
	if err := json.Unmarshal(job.Args.Target, &target); err != nil {
		return river.JobCancel(fmt.Errorf("decode target: %w", err))
	}
	w.logger.Info("commit target",
		"job", job.ID,
		"topic", job.Args.Topic,
		"kind", target.Kind,
		"repo", target.RepoID,
		"sha", target.CommitSHA,
		"attempt", job.Attempt,
	)
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	maxWorkers := flag.Int("max-workers", 5, "Max workers for the queue")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	riverCfg := cfg.Watermill.RiverQueue
	jobKind = riverCfg.Kind

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbPool, err := pgxpool.New(ctx, riverCfg.DSN)
	if err != nil {
		logger.Error("open db", "err", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	workers := river.NewWorkers()
	river.AddWorker(workers, &CommitTargetWorker{logger: logger})

	client, err := river.NewClient(riverpgxv5.New(dbPool), &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			riverCfg.Queue: {MaxWorkers: *maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		logger.Error("river client", "err", err)
		os.Exit(1)
	}

	if err := client.Start(ctx); err != nil {
		logger.Error("river start", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if err := client.Stop(stopCtx); err != nil {
		logger.Error("river stop", "err", err)
	}
}
