package server

import (
	"net/http"

	"github.com/cloo-solutions/finknow/internal/api"
	"github.com/cloo-solutions/finknow/internal/api/handlers"
	"github.com/cloo-solutions/finknow/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxBodyBytes     int64 = 50 * 1024 * 1024
	defaultMaxJSONBodyBytes int64 = 1 << 20
)

type RouterConfig struct {
	// AuthValidator guards every route except /health. Nil disables authentication.
	AuthValidator middleware.AuthValidator
	// MaxBodyBytes caps multipart uploads, MaxJSONBodyBytes every other request body.
	MaxBodyBytes     int64
	MaxJSONBodyBytes int64
	DocumentHandler  *handlers.DocumentHandler
	QueryHandler     *handlers.QueryHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	limits := middleware.BodyLimits{Upload: cfg.MaxBodyBytes, JSON: cfg.MaxJSONBodyBytes}
	if limits.Upload <= 0 {
		limits.Upload = defaultMaxBodyBytes
	}
	if limits.JSON <= 0 {
		limits.JSON = defaultMaxJSONBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.LimitBody(limits))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		}

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/consistency", cfg.DocumentHandler.Consistency)
			r.Post("/delete", cfg.DocumentHandler.DeleteMany)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Get("/{id}/download", cfg.DocumentHandler.GetDownloadURL)
		})

		r.Post("/retrieve", cfg.QueryHandler.Retrieve)
		r.Post("/ask", cfg.QueryHandler.Ask)
		r.Post("/chat", cfg.QueryHandler.Chat)
	})

	return r
}
