// Package api implements the HTTP surface of §6: every relayer, transaction,
// signing and gas-price endpoint, dual-authenticated the way internal/auth
// describes, and a handful of operational endpoints (network enable/disable,
// balance query, JWT token exchange, Prometheus metrics) this distillation's
// original system exposes but spec.md's table only samples from.
//
// Routing follows go-chi/chi/v5's conventional tree-of-middlewares style;
// no repo in this module's lineage speaks REST (the teacher and its
// siblings all expose JSON-RPC over the node package), so this package is
// grounded on chi's own documented idioms rather than an adapted file.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rrelayer/rrelayer/internal/auth"
	"github.com/rrelayer/rrelayer/internal/gas"
	"github.com/rrelayer/rrelayer/internal/metrics"
	"github.com/rrelayer/rrelayer/internal/orchestrator"
	"github.com/rrelayer/rrelayer/internal/ratelimit"
	"github.com/rrelayer/rrelayer/internal/signer"
	"github.com/rrelayer/rrelayer/internal/storage"
)

// Config wires a Server to the pieces built during process startup.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Store        storage.Store
	Signer       *signer.Router
	GasCache     *gas.Cache
	RateLimiter  *ratelimit.Limiter // nil disables rate limiting entirely.
	Tokens       *auth.TokenIssuer  // nil disables the /auth/token endpoints.

	Credentials    auth.Credentials
	APIKeyCache    *auth.Cache
	AllowedOrigins []string
}

// Server holds the dependencies every handler needs; its methods are the
// handlers themselves, grouped across relayers.go, transactions.go,
// signing.go and gasprice.go.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	store        storage.Store
	signer       *signer.Router
	gasCache     *gas.Cache
	rateLimiter  *ratelimit.Limiter
	tokens       *auth.TokenIssuer
}

func NewServer(cfg Config) *Server {
	return &Server{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		signer:       cfg.Signer,
		gasCache:     cfg.GasCache,
		rateLimiter:  cfg.RateLimiter,
		tokens:       cfg.Tokens,
	}
}

// Router builds the full route tree. Basic + x-api-key auth guards every
// route except /metrics and, when token issuance is configured,
// /auth/refresh, whose refresh token is its own credential. The token
// issuing route POST /relayers/{relayer_id}/token sits behind the same
// Basic + x-api-key middleware as every other relayer route. No route
// accepts an issued JWT in place of Basic auth.
func Router(cfg Config) http.Handler {
	s := NewServer(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "x-api-key"},
	}).Handler)

	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Credentials, cfg.APIKeyCache))

		r.Route("/relayers", func(r chi.Router) {
			r.Post("/{chain_id}/new", s.handleNewRelayer)
			r.Post("/{relayer_id}/clone", s.handleCloneRelayer)
			r.Get("/{relayer_id}", s.handleGetRelayer)
			r.Delete("/{relayer_id}", s.handleDeleteRelayer)
			r.Put("/{relayer_id}/pause", s.handlePause)
			r.Put("/{relayer_id}/unpause", s.handleUnpause)
			r.Put("/{relayer_id}/gas/max/{cap}", s.handleSetMaxGas)
			r.Put("/{relayer_id}/gas/eip1559/{enabled}", s.handleSetEIP1559)
			r.Post("/{relayer_id}/allowlists/{addr}", s.handleAllowlistAdd)
			r.Delete("/{relayer_id}/allowlists/{addr}", s.handleAllowlistRemove)
			r.Get("/{relayer_id}/balance", s.handleBalance)
			if s.tokens != nil {
				r.Post("/{relayer_id}/token", s.handleIssueToken)
			}
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/relayers/{relayer_id}/send", s.handleSend)
			r.Put("/replace/{id}", s.handleReplace)
			r.Put("/cancel/{id}", s.handleCancel)
			r.Get("/{id}", s.handleGetTransaction)
			r.Get("/status/{id}", s.handleGetStatus)
			r.Get("/relayers/{id}/pending/count", s.handleCountPending)
			r.Get("/relayers/{id}/inmempool/count", s.handleCountInMempool)
		})

		r.Route("/signing", func(r chi.Router) {
			r.Post("/relayers/{id}/message", s.handleSignMessage)
			r.Post("/relayers/{id}/typed-data", s.handleSignTypedData)
		})

		r.Get("/gas/price/{chain_id}", s.handleGasPrice)

		r.Route("/networks/{chain_id}", func(r chi.Router) {
			r.Put("/enable", s.handleNetworkEnable)
			r.Put("/disable", s.handleNetworkDisable)
		})
	})

	if s.tokens != nil {
		r.Post("/auth/refresh", s.handleRefreshToken)
	}

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug("http request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}
