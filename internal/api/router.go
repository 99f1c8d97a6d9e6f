// Package api exposes the listing endpoints, the live event stream and the
// operational endpoints over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btouchard/craftlist/internal/api/middleware"
	"github.com/btouchard/craftlist/internal/auth"
	"github.com/btouchard/craftlist/internal/broadcast"
	"github.com/btouchard/craftlist/internal/config"
	"github.com/btouchard/craftlist/internal/snapshot"
	"github.com/btouchard/craftlist/internal/store"
)

// Deps holds everything the router needs.
type Deps struct {
	Store       store.Store
	Broadcaster *broadcast.Broadcaster
	Cache       *snapshot.Cache
	Tokens      *auth.TokenSet
	Limiter     *middleware.IPRateLimiter
	RateLimit   config.RateLimitConfig
	CORSOrigins []string
	// MCP is mounted at /mcp behind bearer auth when non-nil.
	MCP     http.Handler
	Version string
}

type handler struct {
	store       store.Store
	broadcaster *broadcast.Broadcaster
	cache       *snapshot.Cache
	version     string
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d *Deps) http.Handler {
	h := &handler{
		store:       d.Store,
		broadcaster: d.Broadcaster,
		cache:       d.Cache,
		version:     d.Version,
	}

	limiter := d.Limiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(d.RateLimit.RequestsPerMinute, d.RateLimit.Burst, nil)
	}
	tokens := d.Tokens
	if tokens == nil {
		tokens = auth.NewTokenSet(nil)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestLogger)

	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	// Live updates. Not rate limited: one long-lived request per client.
	r.Get("/events", h.events)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.Middleware)

		r.Get("/servers", h.listServers)
		r.Get("/servers/{id}", h.getServer)
		r.Get("/servers/user/{id}", h.listUserServers)
		r.Get("/players-graph", h.listPlayersGraph)
		r.Get("/categories", h.listCategories)
		r.Get("/versions", h.listVersions)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(tokens))

			r.Post("/servers", h.addServer)
			r.Post("/servers/{id}/players", h.addPlayersSample)

			r.Post("/categories", h.addCategory)
			r.Put("/categories/{id}", h.updateCategory)
			r.Delete("/categories/{id}", h.removeCategory)

			r.Post("/versions", h.addVersion)
			r.Put("/versions/{id}", h.updateVersion)
			r.Delete("/versions/{id}", h.removeVersion)
		})
	})

	if d.MCP != nil {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Use(middleware.BearerAuth(tokens))
			r.Handle("/mcp", d.MCP)
		})
	}

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     h.version,
		"subscribers": h.broadcaster.Count(),
		"snapshots":   h.cache.Keys(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
