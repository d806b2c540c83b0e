package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/zouwei/moraya-speechd/internal/profile"
	"github.com/zouwei/moraya-speechd/internal/session"
	"github.com/zouwei/moraya-speechd/internal/stt"
)

type RouterConfig struct {
	// JWT Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// PairingSecret is exchanged by clients for a JWT at /auth/token.
	PairingSecret string

	// MicrophoneEnabled allows sessions to request local capture.
	MicrophoneEnabled bool
}

// ConfigResolver maps a providers-file config id to a dial config.
type ConfigResolver func(configID string) (stt.Config, error)

// ProfileStore is the persistence surface the API needs; nil when the
// deployment runs without a database.
type ProfileStore interface {
	List(ctx context.Context) ([]profile.VoiceProfile, error)
	Apply(ctx context.Context, prop profile.Proposal) (*profile.VoiceProfile, error)
	SetNickname(ctx context.Context, id uuid.UUID, nickname string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Router struct {
	cfg      RouterConfig
	logger   *log.Logger
	manager  *session.Manager
	profiles ProfileStore
	resolve  ConfigResolver
	metrics  http.Handler
	streams  *StreamRegistry
	mux      *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, manager *session.Manager,
	profiles ProfileStore, resolve ConfigResolver, metricsHandler http.Handler,
	streams *StreamRegistry) http.Handler {

	r := &Router{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		profiles: profiles,
		resolve:  resolve,
		metrics:  metricsHandler,
		streams:  streams,
		mux:      http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health check and metrics
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics)
	}

	// Auth (public)
	r.mux.HandleFunc("POST /auth/token", r.handleIssueToken)

	// Sessions (protected)
	r.mux.HandleFunc("POST /api/sessions", r.withAuth(r.handleStartSession))
	r.mux.HandleFunc("GET /api/sessions", r.withAuth(r.handleListSessions))
	r.mux.HandleFunc("POST /api/sessions/{id}/audio", r.withAuth(r.handlePushAudio))
	r.mux.HandleFunc("GET /api/sessions/{id}/events", r.withAuth(r.handleSessionEvents))
	r.mux.HandleFunc("DELETE /api/sessions/{id}", r.withAuth(r.handleStopSession))

	// Connectivity probe (protected)
	r.mux.HandleFunc("POST /api/connectivity-test", r.withAuth(r.handleConnectivityTest))

	// Voice profiles (protected)
	r.mux.HandleFunc("GET /api/profiles", r.withAuth(r.handleListProfiles))
	r.mux.HandleFunc("PATCH /api/profiles/{id}", r.withAuth(r.handleUpdateProfile))
	r.mux.HandleFunc("DELETE /api/profiles/{id}", r.withAuth(r.handleDeleteProfile))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}
