package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/biohunter/internal/config"
	"github.com/biohunter/internal/domain"
	"github.com/biohunter/internal/metrics"
	"github.com/biohunter/internal/service"
	"github.com/biohunter/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 10

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services served over HTTP
type Services struct {
	Recorder    *service.ScoreRecorder
	Leaderboard *service.LeaderboardService
	Gacha       *service.GachaEngine
	Daily       *service.DailyQuestionService
	Players     *service.PlayerService
}

// Handler provides HTTP handlers for the gameplay API
type Handler struct {
	svc     Services
	hub     *websocket.Hub
	config  *config.LeaderboardConfig
	metrics *metrics.Recorder
	checks  map[string]Pinger
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil when push is disabled.
func NewHandler(svc Services, hub *websocket.Hub, cfg *config.LeaderboardConfig, m *metrics.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		hub:     hub,
		config:  cfg,
		metrics: m,
		checks:  make(map[string]Pinger),
		logger:  logger,
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", h.metrics.Handler())

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	r.Post("/score", h.SubmitScore)
	r.Get("/leaderboard", h.GetLeaderboard)
	r.Post("/gacha-pull", h.GachaPull)
	r.Get("/daily-microscope", h.GetDailyQuestion)
	r.Post("/daily-microscope/answer", h.AnswerDailyQuestion)

	r.Route("/players/{playerID}", func(r chi.Router) {
		r.Get("/", h.GetPlayer)
		r.Put("/", h.ProvisionPlayer)
		r.Post("/credit", h.CreditPlayer)
	})

	return r
}

// instrument logs each request and records its latency by route pattern
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		h.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)
		h.logger.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// writeServiceError maps a service error onto a status code. Unexpected
// errors are logged with context and answered with an opaque message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op, playerID string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
	case errors.Is(err, domain.ErrInsufficientFunds):
		h.writeError(w, http.StatusBadRequest, domain.ErrInsufficientFunds.Error(), "insufficient_funds")
	case domain.IsNotFoundError(err):
		message, code := notFound(err)
		h.writeError(w, http.StatusNotFound, message, code)
	case errors.Is(err, domain.ErrNoDailyQuestion):
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrNoDailyQuestion.Error(), "no_daily_question")
	default:
		h.logger.Error("request failed",
			"operation", op,
			"player_id", playerID,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError.Error(), "internal_error")
	}
}

func notFound(err error) (string, string) {
	if errors.Is(err, domain.ErrRankingNotFound) {
		return domain.ErrRankingNotFound.Error(), "ranking_not_found"
	}
	return domain.ErrPlayerNotFound.Error(), "player_not_found"
}

// decodeBody reads a JSON request body into v
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request")
		return false
	}
	return true
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusNotFound, "websocket disabled", "")
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck reports that the process is up
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "healthy"}
	if h.hub != nil {
		resp["connections"] = h.hub.ConnectionCount()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ReadyCheck probes every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		h.logger.Warn("readiness check failed", "failed", failed)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failed": failed})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
