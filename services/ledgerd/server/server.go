// Package server exposes the ledger over a JSON HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"synthledger/core/events"
	"synthledger/integrations/eventlog"
	nativecommon "synthledger/native/common"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
	"synthledger/observability/metrics"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine      *ledger.Engine
	Oracle      *oracle.Static
	Pauses      *nativecommon.PauseSet
	Broker      *events.Broker
	Archive     *eventlog.Archive
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Metrics     *metrics.HTTPMetrics
	Logger      *slog.Logger
	// AllowedOrigins lists host patterns permitted to open the websocket
	// event stream from a browser. Empty admits same-origin requests only.
	AllowedOrigins []string
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine  *ledger.Engine
	oracle  *oracle.Static
	pauses  *nativecommon.PauseSet
	broker  *events.Broker
	archive *eventlog.Archive
	auth    *Authenticator
	limiter *RateLimiter
	metrics *metrics.HTTPMetrics
	logger  *slog.Logger
	origins []string

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Auth
	if auth == nil {
		auth = NewAuthenticator(AuthConfig{}, logger)
	}
	srv := &Server{
		engine:  cfg.Engine,
		oracle:  cfg.Oracle,
		pauses:  cfg.Pauses,
		broker:  cfg.Broker,
		archive: cfg.Archive,
		auth:    auth,
		limiter: cfg.RateLimiter,
		metrics: cfg.Metrics,
		logger:  logger,
		origins: append([]string(nil), cfg.AllowedOrigins...),
	}
	srv.router = otelhttp.NewHandler(srv.buildRouter(), "ledgerd")
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Use(s.auth.Middleware)

		api.Route("/system", s.mountSystem)
		api.Route("/accounts", s.mountAccounts)
		api.Route("/intents", s.mountIntents)
		api.Route("/pools", s.mountPools)
		api.Route("/markets", s.mountMarkets)
		api.Route("/vaults", s.mountVaults)
		api.Route("/usd", s.mountUsd)
		api.Route("/events", s.mountEvents)

		api.Group(func(admin chi.Router) {
			admin.Use(RequireScope(ScopeAdmin))
			admin.Get("/admin/pauses", s.listPauses)
			admin.Put("/admin/pauses/{module}", s.setPause)
			admin.Put("/admin/prices/{collateralType}", s.setPrice)
		})
	})
	return r
}

type requestIDKey struct{}

// requestID propagates X-Request-ID, minting one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request served",
			slog.String("method", r.Method),
			slog.String("path", route),
			slog.Int("status", status),
			slog.String("requestId", id),
			slog.Duration("elapsed", time.Since(start)))
	})
}

// caller returns the authenticated address. Anonymous reads get the zero
// address, which the ledger never authorizes.
func caller(r *http.Request) common.Address {
	principal, _ := PrincipalFrom(r.Context())
	return principal.Address
}
