// -----------------------------------------------------------------------
// App - application wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/agora/internal/common"
	"github.com/ternarybob/agora/internal/handlers"
	"github.com/ternarybob/agora/internal/httpclient"
	"github.com/ternarybob/agora/internal/interfaces"
	"github.com/ternarybob/agora/internal/services/polling"
	"github.com/ternarybob/agora/internal/services/reviews"
	"github.com/ternarybob/agora/internal/services/scheduler"
	"github.com/ternarybob/agora/internal/storage"
	"github.com/ternarybob/agora/internal/tasks"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Orchestration core
	Registry   *tasks.Registry
	Dispatcher *tasks.Dispatcher
	Ingestor   *tasks.Ingestor
	Versions   *tasks.VersionManager

	// Scheduled and reporting services
	PollingService   *polling.Service
	ReviewService    *reviews.Service
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	WebhookHandler *handlers.WebhookHandler
	TaskHandler    *handlers.TaskHandler
	AdminHandler   *handlers.AdminHandler
	CronHandler    *handlers.CronHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := storage.NewStorageManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	httpClient := httpclient.NewDefaultClient(cfg.Tasks.RequestTimeout.Std())

	app.Registry = tasks.NewRegistry(storageManager, logger)
	app.Dispatcher = tasks.NewDispatcher(storageManager, cfg, httpClient, logger)
	app.Ingestor = tasks.NewIngestor(storageManager, app.Registry, logger)
	app.Versions = tasks.NewVersionManager(storageManager.TaskStorage(), logger)

	registryClient := polling.NewDiavgeiaClient(cfg.Polling.RegistryURL, httpClient)
	app.PollingService = polling.NewService(storageManager, registryClient, &cfg.Polling, logger)
	app.ReviewService = reviews.NewService(storageManager, logger)
	app.SchedulerService = scheduler.NewService(app.PollingService, &cfg.Scheduler, logger)

	app.APIHandler = handlers.NewAPIHandler(storageManager)
	app.WebhookHandler = handlers.NewWebhookHandler(app.Ingestor, storageManager.RequestStorage(), cfg.Tasks.WebhookSecret)
	app.TaskHandler = handlers.NewTaskHandler(app.Dispatcher, app.Versions, app.Ingestor)
	app.AdminHandler = handlers.NewAdminHandler(app.Versions, app.ReviewService, app.PollingService)
	app.CronHandler = handlers.NewCronHandler(app.PollingService, cfg.Tasks.CronSecret)

	return app, nil
}

// Start launches background services
func (a *App) Start() error {
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Shutdown stops background services and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.SchedulerService.Stop()

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
