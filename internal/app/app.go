// Package app wires the orchestrator together: configuration, storage,
// locks, the strategy router, the pipeline engine and the HTTP API.
package app

import (
	"context"
	"time"

	"conveyor/internal/artifacts"
	"conveyor/internal/auth"
	"conveyor/internal/common/logging"
	"conveyor/internal/config"
	"conveyor/internal/engine"
	"conveyor/internal/locks"
	"conveyor/internal/notify"
	"conveyor/internal/pipeline"
	"conveyor/internal/redis"
	"conveyor/internal/runner"
	"conveyor/internal/storage"
	"conveyor/internal/strategy"
	"conveyor/internal/triggers"

	// Storage adapters register themselves on import.
	_ "conveyor/internal/storage/memory"
	_ "conveyor/internal/storage/postgres"
	_ "conveyor/internal/storage/sqlite"
)

// App holds the orchestrator's wired components.
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	RedisClient *redis.Client
	Locks       locks.Manager
	Artifacts   *artifacts.FSStore
	Router      *strategy.Router
	Engine      *engine.Engine
	Trigger     pipeline.DeploymentTrigger
	Scheduler   *triggers.Scheduler
	Auth        *auth.Auth
	Logger      logging.Logger
}

// New creates an application instance with all dependencies wired.
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	// Components in dependency order: storage and Redis first, then the
	// strategy router and trigger, finally the engine that uses them all.
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	app.initializeRedis()
	if err := app.initializeLocks(); err != nil {
		return nil, err
	}
	if err := app.initializeArtifacts(); err != nil {
		return nil, err
	}
	if err := app.initializeAuth(); err != nil {
		return nil, err
	}
	app.initializeRouter()
	if err := app.initializeEngine(); err != nil {
		return nil, err
	}
	app.initializeScheduler()

	return app, nil
}

func (app *App) initializeStorage() error {
	store, err := storage.NewStorage(app.Config)
	if err != nil {
		return err
	}
	app.Storage = store
	app.Logger.Info("storage initialized",
		logging.String("type", app.Config.DatabaseType))
	return nil
}

// initializeRedis connects to Redis when configured. Redis is optional;
// without it resource locks fall back to the in-process manager.
func (app *App) initializeRedis() {
	if app.Config.RedisAddress == "" {
		return
	}

	client, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	})
	if err != nil {
		app.Logger.Warn("Redis unavailable, using local resource locks",
			logging.String("address", app.Config.RedisAddress),
			logging.String("error", err.Error()))
		return
	}
	app.RedisClient = client
	app.Logger.Info("Redis connected",
		logging.String("address", app.Config.RedisAddress))
}

func (app *App) initializeLocks() error {
	manager, err := locks.NewManagerFor(app.RedisClient, 5*time.Minute)
	if err != nil {
		return err
	}
	app.Locks = manager
	return nil
}

func (app *App) initializeArtifacts() error {
	store, err := artifacts.NewFSStore(app.Config.ArtifactDir)
	if err != nil {
		return err
	}
	app.Artifacts = store
	return nil
}

func (app *App) initializeAuth() error {
	authenticator, err := auth.New(app.Config.JWTSecret, app.Config.TokenTTL)
	if err != nil {
		return err
	}
	app.Auth = authenticator
	return nil
}

func (app *App) initializeRouter() {
	app.Router = strategy.NewRouter(strategy.DefaultBuilders(strategy.Deps{
		ArtifactRepository: app.Config.ArtifactRepository,
		DeployJobPrefix:    app.Config.DeployJobPrefix,
		ProdApprovers:      app.Config.ProdApprovers,
	})...)
}

// initializeEngine builds the engine and its deployment trigger. With no
// remote orchestrator configured, downstream builds run in-process: job
// references resolve back through the strategy router.
func (app *App) initializeEngine() error {
	var trigger pipeline.DeploymentTrigger
	var local *triggers.Local

	if app.Config.TriggerBaseURL != "" {
		remote, err := triggers.NewHTTPTrigger(app.Config.TriggerBaseURL)
		if err != nil {
			return err
		}
		trigger = remote
	} else {
		local = triggers.NewLocal(app.resolveJobRef,
			triggers.WithMaxRunDuration(app.Config.MaxRunDuration))
		trigger = local
	}
	app.Trigger = trigger

	var notifier notify.Notifier = notify.NewLogNotifier(app.Logger)
	if app.Config.NotifyWebhookURL != "" {
		notifier = notify.Multi{notifier, notify.NewWebhookNotifier(app.Config.NotifyWebhookURL)}
	}

	app.Engine = engine.New(engine.Options{
		Runner:              runner.NewExecRunner(),
		Storage:             app.Storage,
		Locks:               app.Locks,
		Artifacts:           app.Artifacts,
		Deployments:         trigger,
		Notifier:            notifier,
		Logger:              app.Logger,
		Workdir:             app.Config.WorkspaceDir,
		DefaultStageTimeout: app.Config.DefaultStageTimeout,
		MaxRunDuration:      app.Config.MaxRunDuration,
	})

	if local != nil {
		local.SetExecutor(app.Engine)
	}
	return nil
}

func (app *App) initializeScheduler() {
	app.Scheduler = triggers.NewScheduler(func(ctx context.Context, req strategy.RunRequest) {
		graph, err := app.Router.Build(req)
		if err != nil {
			app.Logger.Error("scheduled run has no valid strategy", err,
				logging.String("application", req.Application))
			return
		}
		if _, err := app.Engine.Execute(ctx, graph, req.Parameters); err != nil {
			app.Logger.Error("scheduled run failed to start", err,
				logging.String("pipeline", graph.Name))
		}
	}, app.Logger, triggers.WithScheduledRunTimeout(app.Config.MaxRunDuration))
	app.Scheduler.Start()
}

// resolveJobRef maps a downstream job reference like "deploy-cart-vm-prod"
// onto a deployment graph for the target the reference names.
func (app *App) resolveJobRef(jobRef string) (*pipeline.Graph, error) {
	return strategy.DeploymentGraph(jobRef, strategy.Deps{
		ArtifactRepository: app.Config.ArtifactRepository,
		DeployJobPrefix:    app.Config.DeployJobPrefix,
		ProdApprovers:      app.Config.ProdApprovers,
	})
}

// Shutdown stops background components and releases connections.
func (app *App) Shutdown(ctx context.Context) error {
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.Locks != nil {
		if err := app.Locks.Close(); err != nil {
			app.Logger.Warn("error closing lock manager",
				logging.String("error", err.Error()))
		}
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("error closing Redis client",
				logging.String("error", err.Error()))
		}
	}
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			return err
		}
	}
	return nil
}
