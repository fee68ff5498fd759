package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandonmcclure/classy/internal"
	"github.com/brandonmcclure/classy/pkg/api"
	"github.com/brandonmcclure/classy/pkg/providers/github"
	"github.com/brandonmcclure/classy/pkg/registry"
	"github.com/brandonmcclure/classy/pkg/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	reg := registry.New(config, registry.Options{Logger: internal.NewLogger("engine")})
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Printf("close registry: %v", err)
		}
	}()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	err = reg.Init(initCtx)
	cancelInit()
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	eng, err := reg.Engine()
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	classPortal, err := reg.Portal()
	if err != nil {
		logger.Fatalf("portal: %v", err)
	}
	rt, err := reg.ContainerRuntime()
	if err != nil {
		logger.Fatalf("container runtime: %v", err)
	}
	store, err := reg.Store()
	if err != nil {
		logger.Fatalf("store: %v", err)
	}

	normalizer := &webhook.Normalizer{Portal: classPortal, Logger: internal.NewLogger("github")}
	if config.GitHub.Token != "" {
		client, err := github.NewTokenClient(context.Background(), config.GitHub.Token, config.GitHub.BaseURL)
		if err != nil {
			logger.Fatalf("github client: %v", err)
		}
		normalizer.Resolver = github.NewCommitResolver(client)
	}
	ghHandler, err := webhook.NewGitHubHandler(webhook.GitHubOptions{
		Secret:      config.GitHub.Secret,
		Engine:      eng,
		Normalizer:  normalizer,
		Logger:      internal.NewLogger("github"),
		MaxBody:     config.Server.MaxBodyBytes,
		DebugEvents: config.GitHub.DebugEvents,
	})
	if err != nil {
		logger.Fatalf("github handler: %v", err)
	}

	apiLogger := internal.NewLogger("api")
	routes := []internal.Route{
		{Pattern: "POST " + config.GitHub.Path, Handler: ghHandler},
		{Pattern: "GET /resource/", Handler: &api.ResourceHandler{Root: config.PersistDir, Logger: apiLogger}, Limited: true},
		{Pattern: "GET /docker/images", Handler: &api.ImagesHandler{Runtime: rt, Logger: apiLogger}, Limited: true},
		{Pattern: "POST /docker/image", Handler: &api.BuildHandler{Runtime: rt, Logger: apiLogger, MaxBody: config.Server.MaxBodyBytes}, Limited: true},
		{Pattern: "GET /targets", Handler: &api.TargetsHandler{Store: store, Logger: apiLogger}, Limited: true},
		{Pattern: "GET /healthz", Handler: &api.HealthHandler{Checker: eng, Logger: apiLogger}},
	}
	if config.Server.MetricsEnabled {
		routes = append(routes, internal.Route{Pattern: "GET " + config.Server.MetricsPath, Handler: internal.MetricsHandler()})
	}
	logger.Printf("github webhook enabled on %s", config.GitHub.Path)

	supervisor := internal.NewSupervisor(internal.NewLogger("supervisor"))
	server := internal.NewHTTPServer(config.AppConfig, internal.NewMux(config.AppConfig, supervisor, routes...))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	supervisor.Go("http-server", func() {
		logger.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	select {
	case <-shutdown:
	case err := <-serveErr:
		logger.Printf("listen: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	supervisor.Wait()
}
