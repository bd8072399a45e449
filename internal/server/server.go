package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/opencode-ai/chatsync/internal/audio"
	"github.com/opencode-ai/chatsync/internal/event"
	"github.com/opencode-ai/chatsync/internal/session"
)

// Config holds server configuration.
type Config struct {
	Hostname     string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit is the number of chat requests per second; zero disables it.
	RateLimit float64
	RateBurst int
	// HeartbeatInterval is the idle interval after which observers get an
	// empty frame.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:          "127.0.0.1",
		Port:              48678,
		EnableCORS:        true,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // No write timeout for streamed responses
		HeartbeatInterval: 30 * time.Second,
	}
}

// Deps are the services the server exposes.
type Deps struct {
	Sessions *session.Service
	Bus      *event.Bus
	// Audio serves /audio; nil disables the route.
	Audio *audio.Store
	// Tools is mounted at /mcp/search; nil disables the route.
	Tools http.Handler
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	sessions *session.Service
	bus      *event.Bus
	audio    *audio.Store
	tools    http.Handler
	metrics  *Metrics
	limiter  *rate.Limiter
}

// New creates a new Server instance.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		sessions: deps.Sessions,
		bus:      deps.Bus,
		audio:    deps.Audio,
		tools:    deps.Tools,
		metrics:  NewMetrics(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Mcp-Session-Id"},
			ExposedHeaders:   []string{"X-Request-ID", "Mcp-Session-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Hostname, fmt.Sprint(s.config.Port))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
