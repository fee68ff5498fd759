package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/worker"
)

// logEngine stands in for the grading engine and only reports what it would run.
type logEngine struct {
	logger *log.Logger
}

func (e logEngine) HandlePushEvent(ctx context.Context, target *autotest.CommitTarget) error {
	e.logger.Printf("push repo=%s sha=%s ref=%s person=%s deliv=%s", target.RepoID, target.CommitSHA, target.Ref, target.PersonID, target.DelivID)
	return nil
}

func (e logEngine) HandleCommentEvent(ctx context.Context, target *autotest.CommitTarget) error {
	flags := autotest.CommentFlags{}
	if target.Comment != nil {
		flags = target.Comment.Flags
	}
	e.logger.Printf("comment repo=%s sha=%s person=%s deliv=%s flags=%+v", target.RepoID, target.CommitSHA, target.PersonID, target.DelivID, flags)
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to app config")
	driver := flag.String("driver", "", "Override subscriber driver (amqp|nats|kafka|sql|gochannel)")
	flag.Parse()

	logger := internal.NewLogger("worker-example")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	subCfg := worker.SubscriberConfigFrom(cfg)
	if *driver != "" {
		subCfg.Driver = *driver
		subCfg.Drivers = nil
	}

	w, err := worker.NewFromConfig(subCfg,
		worker.WithEngine(logEngine{logger: logger}),
		worker.WithTopics(worker.Topics(cfg)...),
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithLogger(logger),
		worker.WithListener(worker.Listener{
			OnStart: func(ctx context.Context) { logger.Printf("worker started") },
			OnExit:  func(ctx context.Context) { logger.Printf("worker stopped") },
		}),
	)
	if err != nil {
		logger.Fatalf("worker: %v", err)
	}
	defer w.Close()

	if err := w.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
}
