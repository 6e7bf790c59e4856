// Package api exposes the social backend over HTTP. Handlers read through the query client,
// so repeated reads are cached and writes invalidate what they change.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
	"github.com/emprius/emprius-social-backend/query"
)

// APIConfig holds the dependencies and settings of the API.
type APIConfig struct {
	Query              *query.Client
	JwtSecret          string
	MutationsPerMinute int
	// Metrics enables the chi-prometheus middleware and the /metrics endpoint.
	Metrics bool
}

// API type represents the API HTTP server with JWT authentication capabilities.
type API struct {
	query       *query.Client
	gw          *gateway.Gateway
	Router      *chi.Mux
	auth        *jwtauth.JWTAuth
	rateLimiter *MutationRateLimiter
	lastSeen    sync.Map
	server      *http.Server
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if conf.Query == nil {
		return nil, fmt.Errorf("query client cannot be nil")
	}
	if conf.JwtSecret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	a := &API{
		query:       conf.Query,
		gw:          conf.Query.Gateway(),
		auth:        jwtauth.New("HS256", []byte(conf.JwtSecret), nil),
		rateLimiter: NewMutationRateLimiter(conf.MutationsPerMinute),
	}
	a.Router = chi.NewRouter()
	a.router(conf.Metrics)
	return a, nil
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start(host string, port int) {
	a.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Msgf("api service started at %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start api router")
		}
	}()
}

// Close stops the HTTP server, waiting for the requests in flight.
func (a *API) Close(ctx context.Context) error {
	a.rateLimiter.Stop()
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// router registers all the routes and middleware.
func (a *API) router(metrics bool) {
	r := a.Router
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 30*time.Second))
	r.Use(middleware.Timeout(30 * time.Second))
	if metrics {
		a.EnablePrometheusMetrics("")
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(a.auth))
		r.Use(a.authenticator)
		r.Use(a.lastSeenMiddleware)
		r.Use(a.mutationRateLimit)

		a.RegisterUserRoutes(r)
		a.RegisterPostRoutes(r)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Error().Err(err).Msg("failed to write response")
			}
		})

		a.RegisterPublicUserRoutes(r)
		a.RegisterPublicFileRoutes(r)

		log.Info().Msg("register route GET /info")
		r.Get("/info", a.routerHandler(a.infoHandler))
	})
}

// infoHandler returns the basic info about the API.
func (a *API) infoHandler(r *Request) (interface{}, error) {
	counts, err := a.gw.Counts(r.Context.Request.Context())
	if err != nil {
		return nil, err
	}
	return &Info{
		Users:   counts.Users,
		Posts:   counts.Posts,
		Filters: geo.DistanceOptions,
	}, nil
}
