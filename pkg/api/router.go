package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/api/auth"
	"github.com/marmos91/depositd/pkg/api/handlers"
	apimw "github.com/marmos91/depositd/pkg/api/middleware"
	"github.com/marmos91/depositd/pkg/store"
)

// Deps carries the pipeline components the API exposes. Any field may be
// nil; the corresponding endpoints degrade gracefully.
type Deps struct {
	Client  store.Client
	Pool    handlers.DepositEnqueuer
	Stats   handlers.PoolStatser
	Poller  handlers.PollerStatser
	Ingress handlers.EventNotifier
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Health and login routes are unauthenticated; everything under /api/v1 is
// JWT-protected.
func NewRouter(deps Deps, credential auth.Credential, jwtService *auth.JWTService) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(deps.Client)
	authHandler := handlers.NewAuthHandler(credential, jwtService)
	depositsHandler := handlers.NewDepositsHandler(deps.Client, deps.Pool)
	submissionsHandler := handlers.NewSubmissionsHandler(deps.Client)
	eventsHandler := handlers.NewEventsHandler(deps.Ingress)
	statusHandler := handlers.NewStatusHandler(deps.Stats, deps.Poller)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Login and refresh are the only unauthenticated API routes.
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(apimw.JWTAuth(jwtService))

			r.Get("/auth/me", authHandler.Me)
			r.Get("/status", statusHandler.Get)

			r.Route("/submissions", func(r chi.Router) {
				r.Get("/", submissionsHandler.List)
				r.Get("/{id}", submissionsHandler.Get)
			})

			r.Route("/deposits", func(r chi.Router) {
				r.Get("/", depositsHandler.List)
				r.Get("/{id}", depositsHandler.Get)
				r.Post("/{id}/retry", depositsHandler.Retry)
			})

			r.Post("/events", eventsHandler.Post)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
