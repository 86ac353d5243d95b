package monitoring

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joyastack/joyastack/internal/placement"
	"github.com/joyastack/joyastack/internal/shared/auth"
	"github.com/joyastack/joyastack/internal/shared/config"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
)

// Service exposes host snapshots over HTTP for the placement engine.
type Service struct {
	logger    *slog.Logger
	config    *config.MonitoringConfig
	auth      *auth.Manager
	collector *Collector
	tunnel    *Tunnel
	server    *http.Server
}

// NewService creates a new monitoring service. The tunnel may be nil
// when Prometheus is reachable directly.
func NewService(cfg *config.MonitoringConfig, collector *Collector, tunnel *Tunnel, logger *slog.Logger) (*Service, error) {
	s := &Service{
		logger:    logger,
		config:    cfg,
		auth:      auth.NewManager(cfg.JWTSecret, cfg.TokenTTL),
		collector: collector,
		tunnel:    tunnel,
	}

	return s, nil
}

// Start starts the monitoring service and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting monitoring service", "port", s.config.Port)

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:    ":" + strconv.Itoa(s.config.Port),
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start HTTP server", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down monitoring service")

	if s.tunnel != nil {
		s.tunnel.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Service) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /hosts", s.requireAuth(s.handleHosts))
}

// requireAuth validates the bearer token forwarded by the placement
// engine.
func (s *Service) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			apierrors.NewUnauthorizedError("missing bearer token").WriteJSON(w)
			return
		}
		if _, err := s.auth.Verify(token); err != nil {
			apierrors.NewUnauthorizedError("invalid token").WriteJSON(w)
			return
		}
		next(w, r)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Service) handleHosts(w http.ResponseWriter, r *http.Request) {
	hosts := s.collector.Hosts(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Hosts []placement.HostSnapshot `json:"hosts"`
	}{Hosts: hosts})
}
