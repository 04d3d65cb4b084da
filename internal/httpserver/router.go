package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	metricsprom "github.com/slok/go-http-metrics/metrics/prometheus"
	httpmetrics "github.com/slok/go-http-metrics/middleware"
	httpmetricsstd "github.com/slok/go-http-metrics/middleware/std"
	httpSwagger "github.com/swaggo/http-swagger"

	"caterchat/internal/domain"
	"caterchat/internal/service"
	"caterchat/internal/ws"

	_ "caterchat/docs"
)

// Deps are the services the router exposes.
type Deps struct {
	Auth        *service.AuthService
	Users       *service.UserService
	Chat        *service.ChatService
	Registry    *ws.Registry
	Coordinator *ws.Coordinator

	AppName     string
	CORSOrigins []string
	WS          ws.HandlerConfig
}

// The recorder registers its collectors globally, so it is built once per
// process.
var httpMetrics = sync.OnceValue(func() httpmetrics.Middleware {
	return httpmetrics.New(httpmetrics.Config{
		Recorder: metricsprom.NewRecorder(metricsprom.Config{}),
	})
})

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": d.AppName, "version": "1.0.0", "docs": "/docs"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"connections": d.Registry.ConnectionCount(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmetricsstd.HandlerProvider("", httpMetrics()))
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(d.Auth))
			r.Post("/login", handleLogin(d.Auth))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth))

			r.Post("/auth/logout", handleLogout(d.Auth))
			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/online", handleListOnlineStaff(d.Users))
				r.With(RequireStaff).Get("/", handleListUsers(d.Users))
				r.With(RequireStaff).Get("/{userID}", handleGetUser(d.Users))
			})

			r.Route("/chat", func(r chi.Router) {
				r.Get("/room", handleMyRoom(d.Chat))
				r.With(RequireStaff).Get("/rooms", handleListRooms(d.Chat))
				r.Route("/rooms/{roomID}", func(r chi.Router) {
					r.Get("/messages", handleListMessages(d.Chat))
					r.Post("/messages", handleCreateMessage(d.Coordinator))
					r.Post("/read", handleMarkRead(d.Coordinator))
					r.With(RequireStaff).Post("/close", handleCloseRoom(d.Chat))
				})
			})
		})
	})

	// Long-lived; kept outside the timeout and metrics middleware.
	r.Get("/ws", ws.MakeHandler(d.Registry, d.Coordinator, d.WS))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, "already exists"
	case errors.Is(err, domain.ErrRoomClosed):
		status, msg = http.StatusConflict, err.Error()
	default:
		log.WithError(err).
			WithField("request_id", middleware.GetReqID(r.Context())).
			Errorf("%s %s failed", r.Method, r.URL.Path)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
