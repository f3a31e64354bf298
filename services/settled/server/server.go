// Package server exposes the settlement engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"burnrouter/services/settled/node"
)

// Metrics is the request instrumentation the server feeds.
type Metrics interface {
	RouteObserver
	ThrottleRecorder
}

// Config defines the HTTP server and its collaborators.
type Config struct {
	ListenAddress   string
	ExecutionBudget uint64
	RateLimit       RateLimit
	Metrics         Metrics
	Gatherer        prometheus.Gatherer

	// MaxConnections caps concurrently accepted connections. Zero means
	// unlimited.
	MaxConnections int
}

// Server hosts the settlement API.
type Server struct {
	cfg     Config
	node    *node.Node
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs the API server.
func New(cfg Config, n *node.Node, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if n == nil {
		return nil, fmt.Errorf("node required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	limiter, err := NewRateLimiter(cfg.RateLimit, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		node:    n,
		auth:    auth,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v chi.Router) {
		v.Group(func(pub chi.Router) {
			pub.Use(s.limiter.Middleware)
			pub.Method(http.MethodGet, "/params", s.route("params", s.handleParams))
			pub.Method(http.MethodGet, "/assets", s.route("assets", s.handleAssets))
			pub.Method(http.MethodGet, "/balances/{account}", s.route("balances", s.handleBalances))
			pub.Method(http.MethodGet, "/partners/{account}", s.route("partner", s.handlePartner))
			pub.Method(http.MethodPost, "/quote", s.route("quote", s.handleQuote))
		})
		v.Group(func(priv chi.Router) {
			priv.Use(s.auth.Middleware)
			priv.Use(s.limiter.Middleware)
			priv.Method(http.MethodPost, "/approve", s.route("approve", s.handleApprove))
			priv.Method(http.MethodPost, "/settle", s.route("settle", s.handleSettle))
			priv.Method(http.MethodPost, "/relay", s.route("relay", s.handleRelay))
			priv.Method(http.MethodPost, "/referral/purchase", s.route("referral_purchase", s.handleReferralPurchase))
			priv.Method(http.MethodPost, "/referral/upgrade", s.route("referral_upgrade", s.handleReferralUpgrade))
			priv.Route("/admin", s.mountAdmin)
		})
	})
	return r
}

func (s *Server) route(name string, h http.HandlerFunc) http.Handler {
	return otelhttp.NewHandler(accessLog(s.logger, s.cfg.Metrics, name)(h), "settled."+name)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve answers requests on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String(), "max_connections", s.cfg.MaxConnections)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes err with its mapped status. Server faults are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"requestid", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing caller")
	}
	return caller, ok
}
