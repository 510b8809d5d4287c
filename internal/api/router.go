// Package api provides the HTTP surface for controllerd: liveness, role
// introspection, and the leader-gated mutating endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dspu-systems/controllerd/internal/election"
)

// maxJSONBodySize is the maximum size for JSON request bodies (1MB).
const maxJSONBodySize = 1 << 20

// Structured error type codes for machine-readable error categorization.
const (
	ErrorTypeValidation  = "VALIDATION"
	ErrorTypeConflict    = "CONFLICT"
	ErrorTypeRateLimit   = "RATE_LIMIT"
	ErrorTypeInternal    = "INTERNAL"
	ErrorTypeUnavailable = "UNAVAILABLE"
)

// APIError is the structured JSON error envelope returned by generic API
// error responses (not the NOT_LEADER payload, which has its own shape —
// see NotLeaderResponse).
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail holds the code, type, and message inside the error envelope.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func errorTypeFromStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return ErrorTypeValidation
	case status == http.StatusConflict:
		return ErrorTypeConflict
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusServiceUnavailable:
		return ErrorTypeUnavailable
	case status >= 500:
		return ErrorTypeInternal
	default:
		return ""
	}
}

// errorJSON writes a structured JSON error response.
func errorJSON(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIError{
		Error: APIErrorDetail{Code: code, Type: errorTypeFromStatus(status), Message: message},
	}); err != nil {
		slog.Error("failed to encode JSON error response", "error", err)
	}
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// limitJSONBody caps every request body at maxJSONBodySize.
func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders adds standard HTTP security headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		next.ServeHTTP(w, r)
	})
}

// RoleSource is the read-only view of election state the HTTP surface needs.
// Satisfied by *election.Elector; defined here so handlers and tests depend
// on the minimal contract rather than the full Elector type.
type RoleSource interface {
	RoleState() election.RoleState
}

// Server holds the dependencies for controllerd's HTTP handlers.
type Server struct {
	Roles     RoleSource // Required. Backs /healthz, /role, and the leader gate.
	NodeID    string     // This process's NODE_ID, echoed in responses.
	LeaderURL string     // Optional. Surfaced verbatim in NOT_LEADER bodies.

	CORSOrigins []string // Allowed CORS origins. Defaults to ["http://localhost:3000"].

	RateLimit       *RateLimitConfig // Per-IP rate limiting config. Nil disables rate limiting.
	RateLimiterStop func()           // Populated by NewRouter when rate limiting is enabled.

	DBHealth HealthChecker // Backing-store health check (pool.Ping). Nil = skip.
}

// NewRouter creates a configured chi router with every controllerd route
// mounted: unauthenticated health and role introspection, and the
// leader-gated mutating surface.
func NewRouter(srv *Server) chi.Router {
	r := chi.NewRouter()

	corsOrigins := srv.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "x-dspu-leader-epoch", "x-dspu-leader-id", "RateLimit-Limit", "RateLimit-Remaining", "Retry-After"},
		AllowedOrigins:   corsOrigins,
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders)
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	if srv.RateLimit != nil {
		rl, mw := RateLimit(*srv.RateLimit)
		srv.RateLimiterStop = rl.Stop
		r.Use(mw)
	}

	r.Get("/healthz", srv.HandleHealthz)
	r.Get("/role", srv.HandleRole)

	r.Group(func(r chi.Router) {
		r.Use(limitJSONBody)
		r.Use(srv.RequireLeader)
		r.Post("/v1/leases", srv.HandleLeases)
	})

	return r
}

