package placement

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/joyastack/joyastack/internal/shared/auth"
	"github.com/joyastack/joyastack/internal/shared/config"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
)

// HostSource provides candidate host snapshots, normally backed by the
// monitoring adapter.
type HostSource interface {
	Hosts(ctx context.Context) ([]HostSnapshot, error)
}

// Service exposes the placement engine over HTTP.
type Service struct {
	logger *slog.Logger
	config *config.PlacementConfig
	auth   *auth.Manager
	hosts  HostSource
	engine *Engine
	server *http.Server
}

// NewService creates a new placement service
func NewService(cfg *config.PlacementConfig, hosts HostSource, logger *slog.Logger) (*Service, error) {
	s := &Service{
		logger: logger,
		config: cfg,
		auth:   auth.NewManager(cfg.JWTSecret, cfg.TokenTTL),
		hosts:  hosts,
		engine: NewEngine(cfg.GASeed),
	}

	return s, nil
}

// Start starts the placement service and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting placement service", "port", s.config.Port)

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

	s.logger.Info("Shutting down placement service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Service) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /placement/slice/{id}", s.requireAuth(s.handleSlicePlacement))
	mux.HandleFunc("POST /placement/custom", s.requireAuth(s.handleCustomPlacement))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"algorithm": AlgorithmName,
	})
}

type contextKey string

const tokenContextKey contextKey = "token"

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// requireAuth validates the bearer token and keeps it on the request
// context so the monitoring call runs as the same caller.
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
		next(w, r.WithContext(withToken(r.Context(), token)))
	}
}

// sliceVMPayload is one VM as submitted by the slice manager.
type sliceVMPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	CPU  int32  `json:"cpu"`
	RAM  int32  `json:"ram"`
	Disk int32  `json:"disk"`
}

type slicePlacementRequest struct {
	VMs []sliceVMPayload `json:"vms"`
}

func (s *Service) handleSlicePlacement(w http.ResponseWriter, r *http.Request) {
	sliceID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		apierrors.NewValidationError("invalid slice id", nil).WriteJSON(w)
		return
	}

	var req slicePlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.NewValidationError("invalid request body", nil).WriteJSON(w)
		return
	}
	if len(req.VMs) == 0 {
		apierrors.NewValidationError("slice has no VMs to place", nil).WriteJSON(w)
		return
	}

	vms := make([]VMSpec, 0, len(req.VMs))
	for _, vm := range req.VMs {
		id := vm.Name
		if id == "" {
			id = fmt.Sprintf("vm_%d", vm.ID)
		}
		vms = append(vms, VMSpec{
			ID:      id,
			VMID:    vm.ID,
			CPU:     float64(vm.CPU),
			RAM:     float64(vm.RAM),
			Storage: float64(vm.Disk),
		})
	}

	result, err := s.place(r.Context(), s.engine, vms)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	response := struct {
		*Result
		SliceID  int64 `json:"slice_id"`
		TotalVMs int   `json:"total_vms"`
	}{Result: result, SliceID: sliceID, TotalVMs: len(vms)}

	s.logger.Info("Computed slice placement",
		"slice_id", sliceID,
		"vms", len(vms),
		"fitness", result.FitnessScore,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

type customPlacementRequest struct {
	VMs  []VMSpec `json:"vms"`
	Seed int64    `json:"seed,omitempty"`
}

func (s *Service) handleCustomPlacement(w http.ResponseWriter, r *http.Request) {
	var req customPlacementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.NewValidationError("invalid request body", nil).WriteJSON(w)
		return
	}
	if len(req.VMs) == 0 {
		apierrors.NewValidationError("at least one VM is required", nil).WriteJSON(w)
		return
	}
	for i, vm := range req.VMs {
		if vm.ID == "" {
			apierrors.NewValidationError("every VM needs an id", map[string]interface{}{"index": i}).WriteJSON(w)
			return
		}
		if vm.CPU <= 0 {
			apierrors.NewValidationError("vm cpu must be positive", map[string]interface{}{"index": i}).WriteJSON(w)
			return
		}
	}

	// A caller-supplied seed gets its own engine so repeated requests
	// with the same seed reproduce the same placement.
	engine := s.engine
	if req.Seed != 0 {
		engine = NewEngine(req.Seed)
	}

	result, err := s.place(r.Context(), engine, req.VMs)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// place fetches hosts and runs the engine, mapping dependency failures,
// empty host sets and unusable fleets to 503.
func (s *Service) place(ctx context.Context, engine *Engine, vms []VMSpec) (*Result, error) {
	hosts, err := s.hosts.Hosts(ctx)
	if err != nil {
		s.logger.Error("Failed to fetch hosts from monitoring", "error", err)
		return nil, apierrors.NewUnavailableError("monitoring adapter unreachable")
	}
	if len(hosts) == 0 {
		return nil, apierrors.NewUnavailableError("no hosts available for placement")
	}

	result, err := engine.Place(vms, hosts)
	if err != nil {
		return nil, apierrors.NewUnavailableError(err.Error())
	}
	return result, nil
}
