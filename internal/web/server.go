// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Contactbook Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configure the router.
type Options struct {
	// LimiterKey selects what login attempts are counted by: LimiterKeyIP
	// (default) or LimiterKeyEmail.
	LimiterKey string
	// TrustedProxies lists CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For entries are honored. Empty means the TCP peer is
	// always the client.
	TrustedProxies []string
	Logger         *slog.Logger
	// Metrics is optional.
	Metrics HTTPMetrics
}

// NewRouter builds the API handler:
//
//	POST  /users/signup   201
//	POST  /users/login    200
//	POST  /users/logout   204 (bearer)
//	GET   /users/current  200 (bearer)
//	PATCH /users          200 (bearer)
func NewRouter(service AuthService, guard Authenticator, opts Options) (http.Handler, error) {
	if service == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if guard == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.LimiterKey {
	case "":
		opts.LimiterKey = LimiterKeyIP
	case LimiterKeyIP, LimiterKeyEmail:
	default:
		return nil, oops.Code("CONFIG_INVALID").
			With("limiter_key", opts.LimiterKey).
			Errorf("limiter key must be %q or %q", LimiterKeyIP, LimiterKeyEmail)
	}

	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	h := &userHandlers{service: service, logger: logger, limiterKey: opts.LimiterKey, proxies: proxies}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	if opts.Metrics != nil {
		r.Use(instrument(opts.Metrics))
	}

	public := r.NewRoute().Subrouter()
	public.HandleFunc("/users/signup", h.signup).Methods(http.MethodPost)
	public.HandleFunc("/users/login", h.login).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(requireAuth(guard, logger))
	protected.HandleFunc("/users/logout", h.logout).Methods(http.MethodPost)
	protected.HandleFunc("/users/current", h.current).Methods(http.MethodGet)
	protected.HandleFunc("/users", h.updateSubscription).Methods(http.MethodPatch)

	var handler http.Handler = r
	handler = accessLog(logger, proxies)(handler)
	handler = requestID(handler)
	handler = recovery(logger)(handler)
	handler = otelhttp.NewHandler(handler, "contactbook.api")
	return handler, nil
}

// Server serves the API.
type Server struct {
	addr         string
	handler      http.Handler
	logger       *slog.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	listener     net.Listener
	httpServer   *http.Server
	running      atomic.Bool
}

// NewServer creates an API server for handler on addr.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:         addr,
		handler:      handler,
		logger:       logger,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Start begins serving. The returned channel receives a serve failure and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
	}
	httpSrv := s.httpServer

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the listening address, or "" if not started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
