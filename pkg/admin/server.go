package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getmockd/testproxy/pkg/logging"
	"github.com/getmockd/testproxy/pkg/proxy"
)

const (
	// DefaultMaxBodyBytes is the default limit on captured bodies (10MB).
	DefaultMaxBodyBytes = 10 * 1024 * 1024

	// DefaultUpstreamTimeout bounds a forwarded record-mode request.
	DefaultUpstreamTimeout = 100 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Server serves the control endpoints and proxies recorded traffic.
type Server struct {
	handler      *proxy.RecordingHandler
	client       *http.Client
	metrics      http.Handler
	log          *slog.Logger
	maxBodyBytes int64

	mux        *http.ServeMux
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Nil means logging.Nop().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHTTPClient sets the client used to forward record-mode requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) {
		if c != nil {
			s.client = c
		}
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithMaxBodyBytes limits the request and response bodies read per exchange.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a server in front of h.
func New(h *proxy.RecordingHandler, opts ...Option) *Server {
	s := &Server{
		handler:      h,
		client:       &http.Client{Timeout: DefaultUpstreamTimeout},
		log:          logging.Nop(),
		maxBodyBytes: DefaultMaxBodyBytes,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Replayed redirects must reach the client untouched.
	if s.client.CheckRedirect == nil {
		client := *s.client
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		s.client = &client
	}
	s.registerRoutes(s.mux)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("test proxy listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(l) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}
