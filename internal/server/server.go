package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"mediaintel/internal/config"
	"mediaintel/internal/domain"
	"mediaintel/internal/ports"
	"mediaintel/internal/usecase"
)

// Trigger starts one synchronous ingestion run.
type Trigger interface {
	Run(ctx context.Context) (domain.IngestionReport, error)
}

// Deps collects everything the HTTP layer consumes from the pipeline side.
type Deps struct {
	Pipeline    Trigger
	Store       ports.ArticleStore
	Chat        *usecase.ChatService
	Config      *config.Store
	Reconfigure func(config.SchedulingConfig)
	Logger      *slog.Logger
}

// Server exposes the trigger/query/delete/config surface over HTTP.
type Server struct {
	echo        *echo.Echo
	pipeline    Trigger
	store       ports.ArticleStore
	chat        *usecase.ChatService
	config      *config.Store
	reconfigure func(config.SchedulingConfig)
	logger      *slog.Logger

	ingestBusy atomic.Bool
}

// New builds the echo application with all routes registered.
func New(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		pipeline:    deps.Pipeline,
		store:       deps.Store,
		chat:        deps.Chat,
		config:      deps.Config,
		reconfigure: deps.Reconfigure,
		logger:      deps.Logger,
	}

	api := e.Group("/api")
	api.POST("/ingest", s.handleIngest)
	api.GET("/articles", s.handleArticles)
	api.GET("/categories", s.handleCategories)
	api.DELETE("/articles/:id", s.handleDeleteArticle)
	api.DELETE("/articles", s.handleDeleteAll)
	api.GET("/config", s.handleGetConfig)
	api.POST("/config", s.handleUpdateConfig)
	api.POST("/chat", s.handleChat)

	return s
}

// Handler exposes the routed application for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
