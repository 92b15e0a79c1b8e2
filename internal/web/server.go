package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/trade_lifecycle/internal/domain"
	"github.com/vitos/trade_lifecycle/internal/usecase"
	"go.uber.org/zap"
)

// Server exposes metrics and a read-only view of the engine.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	engine  *usecase.Engine
	journal domain.DecisionJournal
	logger  *zap.Logger
}

func NewServer(
	port int,
	engine *usecase.Engine,
	journal domain.DecisionJournal,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  http.NewServeMux(),
		engine:  engine,
		journal: journal,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Status
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /api/state", s.handleState)

	// Journal
	s.router.HandleFunc("GET /api/decisions", s.handleDecisions)
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
}

// Handler is the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
