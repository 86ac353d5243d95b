// Package slicemanager is the user-facing orchestrator service: slice
// CRUD, deploys, image uploads and login.
package slicemanager

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/joyastack/joyastack/internal/database"
	"github.com/joyastack/joyastack/internal/database/queries"
	"github.com/joyastack/joyastack/internal/deploy"
	"github.com/joyastack/joyastack/internal/shared/auth"
	"github.com/joyastack/joyastack/internal/shared/config"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
	"github.com/joyastack/joyastack/internal/shared/events"
)

// Service is the slice manager HTTP service.
type Service struct {
	logger   *slog.Logger
	config   *config.SliceManagerConfig
	db       *database.DB
	auth     *auth.Manager
	deployer *deploy.Controller
	events   *events.Publisher
	server   *http.Server
}

// NewService creates a new slice manager service
func NewService(cfg *config.SliceManagerConfig, db *database.DB, authMgr *auth.Manager, deployer *deploy.Controller, pub *events.Publisher, logger *slog.Logger) (*Service, error) {
	s := &Service{
		logger:   logger,
		config:   cfg,
		db:       db,
		auth:     authMgr,
		deployer: deployer,
		events:   pub,
	}

	return s, nil
}

// Start starts the slice manager service and blocks until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting slice manager service", "port", s.config.Port)

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:    ":" + strconv.Itoa(s.config.Port),
		Handler: s.withRequestID(mux),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start HTTP server", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down slice manager service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func (s *Service) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /login", s.handleLogin)

	mux.HandleFunc("GET /slices", s.requireAuth(s.handleListSlices))
	mux.HandleFunc("GET /slices/{id}", s.requireAuth(s.handleGetSlice))
	mux.HandleFunc("POST /slices/create", s.requireAuth(s.handleCreateSlice))
	mux.HandleFunc("POST /slices/update/{id}", s.requireAuth(s.handleUpdateSlice))
	mux.HandleFunc("POST /slices/deploy/{id}", s.requireAuth(s.handleDeploySlice))
	mux.HandleFunc("DELETE /slices/delete/{id}", s.requireAuth(s.handleDeleteSlice))

	mux.HandleFunc("GET /flavors", s.requireAuth(s.handleListFlavors))
	mux.HandleFunc("GET /images", s.requireAuth(s.handleListImages))
	mux.HandleFunc("POST /images/upload", s.requireAuth(s.handleUploadImage))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// handleLogin exchanges form-encoded credentials for a bearer token.
func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		apierrors.NewValidationError("invalid form body", nil).WriteJSON(w)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		apierrors.NewValidationError("username and password are required", nil).WriteJSON(w)
		return
	}

	user, err := s.db.UserFindByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			apierrors.NewUnauthorizedError("invalid credentials").WriteJSON(w)
			return
		}
		s.logger.Error("Failed to load user", "username", username, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		apierrors.NewUnauthorizedError("invalid credentials").WriteJSON(w)
		return
	}

	token, err := s.auth.Issue(user.Username, user.Role)
	if err != nil {
		s.logger.Error("Failed to issue token", "username", username, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"role":         user.Role,
	})
}

// withRequestID tags every request with an id for log correlation.
func (s *Service) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logger.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const userContextKey contextKey = "user"

// requireAuth validates the bearer token and resolves the caller's user
// row into the request context.
func (s *Service) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			apierrors.NewUnauthorizedError("missing bearer token").WriteJSON(w)
			return
		}

		claims, err := s.auth.Verify(token)
		if err != nil {
			apierrors.NewUnauthorizedError("invalid token").WriteJSON(w)
			return
		}

		user, err := s.db.UserFindByUsername(r.Context(), claims.Username)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				apierrors.NewUnauthorizedError("unknown user").WriteJSON(w)
				return
			}
			s.logger.Error("Failed to resolve token user", "username", claims.Username, "error", err)
			apierrors.NewInternalError("").WriteJSON(w)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

func callerFrom(r *http.Request) queries.User {
	user, _ := r.Context().Value(userContextKey).(queries.User)
	return user
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
