// Package registry owns the process-wide engine handles. Each handle is built
// at most once; every request observes the same instances.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/autotest"
	"github.com/brandonmcclure/classy/pkg/engine"
	"github.com/brandonmcclure/classy/pkg/portal"
	"github.com/brandonmcclure/classy/pkg/runtime"
	"github.com/brandonmcclure/classy/pkg/storage"
	"github.com/brandonmcclure/classy/pkg/storage/targets"
)

// Options overrides how handles are constructed. Nil fields use the defaults.
type Options struct {
	NewRuntime   func(runtime.Config) (runtime.Client, error)
	NewStore     func(internal.StorageConfig) (storage.Store, error)
	NewPublisher func(internal.WatermillConfig) (internal.Publisher, error)
	NewPortal    func(portal.Kind, portal.Config) (autotest.ClassPortal, error)
	NewDeduper   func(internal.DedupeConfig) (engine.Deduper, error)
	Logger       *log.Logger
}

type Registry struct {
	cfg    internal.Config
	opts   Options
	logger *log.Logger

	runtimeOnce sync.Once
	runtime     runtime.Client
	runtimeErr  error

	storeOnce sync.Once
	store     storage.Store
	storeErr  error

	portalOnce sync.Once
	portal     autotest.ClassPortal
	portalErr  error

	engineOnce sync.Once
	engine     *engine.Forwarder
	engineErr  error
}

func New(cfg internal.Config, opts Options) *Registry {
	if opts.NewRuntime == nil {
		opts.NewRuntime = defaultRuntime
	}
	if opts.NewStore == nil {
		opts.NewStore = defaultStore
	}
	if opts.NewPublisher == nil {
		opts.NewPublisher = internal.NewPublisher
	}
	if opts.NewPortal == nil {
		opts.NewPortal = portal.New
	}
	if opts.NewDeduper == nil {
		opts.NewDeduper = defaultDeduper
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{cfg: cfg, opts: opts, logger: logger}
}

// ContainerRuntime returns the shared runtime client. It is nil for the test
// deployment, which never opens a socket or network connection.
func (r *Registry) ContainerRuntime() (runtime.Client, error) {
	r.runtimeOnce.Do(func() {
		if r.cfg.IsTestDeployment() {
			r.logger.Printf("deployment %s runs without a container runtime", r.cfg.Name)
			return
		}
		r.runtime, r.runtimeErr = r.opts.NewRuntime(runtime.Config{
			Host:        r.cfg.Docker.Host,
			CAPath:      r.cfg.Docker.CAPath,
			SSLCertPath: r.cfg.Docker.SSLCertPath,
			SSLKeyPath:  r.cfg.Docker.SSLKeyPath,
			APIVersion:  r.cfg.Docker.APIVersion,
		})
		if r.runtimeErr != nil {
			r.runtimeErr = fmt.Errorf("%w: container runtime: %v", autotest.ErrUpstream, r.runtimeErr)
		}
	})
	return r.runtime, r.runtimeErr
}

// Store returns the shared data store.
func (r *Registry) Store() (storage.Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = r.opts.NewStore(r.cfg.Storage)
	})
	return r.store, r.storeErr
}

// Portal returns the class portal variant selected by the deployment name.
func (r *Registry) Portal() (autotest.ClassPortal, error) {
	r.portalOnce.Do(func() {
		r.portal, r.portalErr = r.opts.NewPortal(portal.KindFor(r.cfg.Name), portal.Config{
			URL:                r.cfg.Portal.URL,
			Timeout:            time.Duration(r.cfg.Portal.TimeoutMS) * time.Millisecond,
			DefaultDeliverable: r.cfg.Portal.DefaultDeliverable,
		})
	})
	return r.portal, r.portalErr
}

// Engine returns the shared engine, building its store and runtime client
// first.
func (r *Registry) Engine() (*engine.Forwarder, error) {
	r.engineOnce.Do(func() {
		r.engine, r.engineErr = r.buildEngine()
	})
	return r.engine, r.engineErr
}

func (r *Registry) buildEngine() (*engine.Forwarder, error) {
	store, err := r.Store()
	if err != nil {
		return nil, fmt.Errorf("engine store: %w", err)
	}
	rt, err := r.ContainerRuntime()
	if err != nil {
		return nil, err
	}
	rules, err := internal.NewRuleEngine(internal.RulesConfig{
		Rules:  r.cfg.Rules,
		Strict: r.cfg.RulesStrict,
		Logger: r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	publisher, err := r.opts.NewPublisher(r.cfg.Watermill)
	if err != nil {
		return nil, fmt.Errorf("engine publisher: %w", err)
	}

	var deduper engine.Deduper
	if r.cfg.Dedupe.Driver != "" {
		deduper, err = r.opts.NewDeduper(r.cfg.Dedupe)
		if err != nil {
			_ = publisher.Close()
			return nil, fmt.Errorf("engine dedupe: %w", err)
		}
	}

	return engine.New(engine.Options{
		Store:        store,
		Runtime:      rt,
		Rules:        rules,
		Publisher:    publisher,
		Deduper:      deduper,
		PushTopic:    r.cfg.Engine.PushTopic,
		CommentTopic: r.cfg.Engine.CommentTopic,
		Logger:       r.logger,
	})
}

// Init builds every handle eagerly and checks that the runtime answers.
func (r *Registry) Init(ctx context.Context) error {
	eng, err := r.Engine()
	if err != nil {
		return err
	}
	if err := eng.Ready(ctx); err != nil {
		r.logger.Printf("container runtime not ready yet: %v", err)
	}
	return nil
}

// Close releases every handle that was built.
func (r *Registry) Close() error {
	var err error
	if r.engine != nil {
		err = errors.Join(err, r.engine.Close())
	}
	if r.store != nil {
		err = errors.Join(err, r.store.Close())
	}
	if r.runtime != nil {
		err = errors.Join(err, r.runtime.Close())
	}
	return err
}

func defaultRuntime(cfg runtime.Config) (runtime.Client, error) {
	cli, err := runtime.New(cfg)
	if err != nil {
		return nil, err
	}
	return cli, nil
}

func defaultStore(cfg internal.StorageConfig) (storage.Store, error) {
	if cfg.DSN == "" {
		return storage.NewMemoryStore(), nil
	}
	store, err := targets.Open(targets.Config{
		Driver:      cfg.Driver,
		DSN:         cfg.DSN,
		Table:       cfg.Table,
		AutoMigrate: cfg.AutoMigrate,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func defaultDeduper(cfg internal.DedupeConfig) (engine.Deduper, error) {
	switch cfg.Driver {
	case "redis":
		deduper, err := engine.NewRedisDeduper(cfg.Addr, time.Duration(cfg.TTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		return deduper, nil
	default:
		return nil, fmt.Errorf("unsupported dedupe driver: %s", cfg.Driver)
	}
}
