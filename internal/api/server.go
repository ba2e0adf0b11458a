// Package api provides the HTTP API for netscope. It exposes host
// discovery, port scanning and capture analysis as JSON endpoints, a
// websocket that streams findings while a job runs, and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	apihandlers "github.com/anstrom/netscope/internal/api/handlers"
	"github.com/anstrom/netscope/internal/api/middleware"
	"github.com/anstrom/netscope/internal/capture"
	"github.com/anstrom/netscope/internal/config"
	"github.com/anstrom/netscope/internal/discovery"
	"github.com/anstrom/netscope/internal/logging"
	"github.com/anstrom/netscope/internal/metrics"
	"github.com/anstrom/netscope/internal/portscan"
)

// Server timeout constants.
const (
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 60 * time.Second
)

// Version is reported by the health endpoint.
var Version = "dev"

// Engines bundles the scanners the API serves.
type Engines struct {
	Discovery apihandlers.HostDiscoverer
	Scanner   apihandlers.PortScanner
	Analyzer  apihandlers.CaptureAnalyzer
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	engines    Engines
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
}

// New creates a new API server instance serving engines.
func New(cfg *config.Config, engines Engines, pm *metrics.PrometheusMetrics) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if engines.Discovery == nil || engines.Scanner == nil || engines.Analyzer == nil {
		return nil, fmt.Errorf("all engines are required")
	}
	if pm == nil {
		pm = metrics.NewPrometheusMetrics()
	}

	server := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		engines: engines,
		logger:  logging.Default().WithComponent("api"),
		metrics: pm,
	}

	server.setupRoutes()
	server.handler = server.setupMiddleware()

	server.httpServer = &http.Server{
		Addr:              cfg.GetAPIAddress(),
		Handler:           server.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server, nil
}

// NewFromConfig builds the production engines from cfg, all reporting to
// the global metrics registry.
func NewFromConfig(cfg *config.Config) (*Server, error) {
	pm := metrics.GetGlobalMetrics()

	disc, err := discovery.NewEngineFromConfig(cfg.Discovery)
	if err != nil {
		return nil, err
	}
	disc.SetRecorder(pm)

	scanner := portscan.NewEngineFromConfig(cfg.Scanning)
	scanner.SetRecorder(pm)

	analyzer := capture.NewAnalyzerFromConfig(cfg.Capture)
	analyzer.SetRecorder(pm)

	return New(cfg, Engines{Discovery: disc, Scanner: scanner, Analyzer: analyzer}, pm)
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"auth", s.config.API.APIKeyHash != "",
		"cors", s.config.API.CORS.Enabled)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	timeout := s.config.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	apiCfg := s.config.API
	timeout := middleware.Timeout(apiCfg.RequestTimeout)

	scanner := apihandlers.NewScannerHandler(s.engines.Discovery, s.engines.Scanner,
		s.config.Discovery, apiCfg.MaxRequestSize, s.logger)
	packets := apihandlers.NewPacketHandler(s.engines.Analyzer, s.config.Capture, s.logger)
	stream := apihandlers.NewStreamHandler(scanner, apiCfg.CORS, s.logger)
	health := apihandlers.NewHealthHandler(Version)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.Handle("/scanner/network", timeout(http.HandlerFunc(scanner.Network))).Methods(http.MethodPost)
	api.Handle("/scanner/ports", timeout(http.HandlerFunc(scanner.Ports))).Methods(http.MethodPost)
	api.Handle("/packet/analyze", timeout(http.HandlerFunc(packets.Analyze))).Methods(http.MethodPost)
	// Streams run as long as the job does.
	api.HandleFunc("/scanner/ws", stream.Serve).Methods(http.MethodGet)
}

// setupMiddleware installs the router middleware and returns the outer
// handler. CORS wraps the router so preflight requests never hit the
// method matchers.
func (s *Server) setupMiddleware() http.Handler {
	apiCfg := s.config.API

	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))

	if apiCfg.APIKeyHash != "" {
		s.router.Use(middleware.Authentication(apiCfg.APIKeyHash,
			[]string{"/api/health", "/metrics"}, s.logger))
	}

	if !apiCfg.CORS.Enabled {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(apiCfg.CORS.AllowedOrigins),
		handlers.AllowedMethods(apiCfg.CORS.AllowedMethods),
		handlers.AllowedHeaders(apiCfg.CORS.AllowedHeaders),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
	)(s.router)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
