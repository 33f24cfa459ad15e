package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mediaintel/internal/config"
	"mediaintel/internal/infrastructure/feed"
	"mediaintel/internal/infrastructure/llm"
	"mediaintel/internal/infrastructure/scheduler"
	"mediaintel/internal/infrastructure/storage"
	"mediaintel/internal/server"
	"mediaintel/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires adapters to use cases and owns process lifecycle:
// HTTP server, background scheduler, graceful shutdown.
type Application struct {
	cfgStore *config.Store
	logger   *slog.Logger
	srv      *server.Server
	sched    *scheduler.Interval
	closeDB  func() error
}

// New connects to the store and assembles the full service.
func New(ctx context.Context, cfgStore *config.Store, logger *slog.Logger) (*Application, error) {
	cfg := cfgStore.Current()

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	store := storage.NewPostgresStore(db)
	if err := store.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	source := feed.NewSource(
		&http.Client{Timeout: 20 * time.Second},
		logger.With("component", "feed"),
	)

	var llmClient *llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewClient(cfg.LLM)
	} else {
		logger.Warn("no llm api key configured; enrichment will fail per item")
	}

	pipelineDeps := usecase.PipelineDeps{
		Source: source,
		Store:  store,
		Config: cfgStore,
		Logger: logger.With("component", "pipeline"),
	}
	if llmClient != nil {
		pipelineDeps.Enricher = llmClient
	}
	pipeline := usecase.NewPipeline(pipelineDeps)

	sched := scheduler.NewInterval(
		scheduler.Settings{
			Enabled:  cfg.Scheduling.Enabled,
			Interval: cfg.Scheduling.Interval(),
		},
		func(ctx context.Context) {
			if _, err := pipeline.Run(ctx); err != nil {
				logger.Error("scheduled ingestion failed", "error", err)
			}
		},
		logger.With("component", "scheduler"),
	)

	var chat *usecase.ChatService
	if llmClient != nil {
		chat = usecase.NewChatService(store, llmClient, logger.With("component", "chat"))
	}

	srv := server.New(server.Deps{
		Pipeline: pipeline,
		Store:    store,
		Chat:     chat,
		Config:   cfgStore,
		Reconfigure: func(s config.SchedulingConfig) {
			sched.Reconfigure(scheduler.Settings{
				Enabled:  s.Enabled,
				Interval: s.Interval(),
			})
		},
		Logger: logger.With("component", "http"),
	})

	return &Application{
		cfgStore: cfgStore,
		logger:   logger,
		srv:      srv,
		sched:    sched,
		closeDB:  db.Close,
	}, nil
}

// Run serves until ctx is cancelled, then stops the scheduler (waiting for
// an in-flight run) and drains the HTTP server.
func (a *Application) Run(ctx context.Context) error {
	a.sched.Start(ctx)

	addr := a.cfgStore.Current().Server.Addr
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	a.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		a.sched.Stop()
		_ = a.closeDB()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	a.sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}

	return a.closeDB()
}
