package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/cliqr-core/internal/hardware"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
	"github.com/nerrad567/cliqr-core/internal/infrastructure/logging"
	"github.com/nerrad567/cliqr-core/internal/recording"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight
// requests before connections are cut.
const gracefulShutdownTimeout = 10 * time.Second

// BrokerStatus reports broker connectivity for the system endpoints.
// Satisfied by *mqtt.Client.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Site     config.SiteConfig
	Logger   *logging.Logger
	Engine   *recording.Engine
	Hardware *hardware.Manager
	Broker   BrokerStatus // optional; nil when MQTT is disabled
	Hub      *Hub         // if set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP surface of CLiQR Core: the REST routes the bench UI
// drives the rig with, plus the WebSocket endpoint for live traffic.
// Create with New, start with Start, stop with Close.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	site        config.SiteConfig
	logger      *logging.Logger
	engine      *recording.Engine
	hardware    *hardware.Manager
	broker      BrokerStatus
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// Nothing listens until Start is called.
//
// Parameters:
//   - deps: wiring for the server; logger, engine, and hardware are mandatory
//
// Returns:
//   - *Server: server ready for Start
//   - error: if a mandatory dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("recording engine is required")
	}
	if deps.Hardware == nil {
		return nil, fmt.Errorf("hardware manager is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		site:      deps.Site,
		logger:    deps.Logger,
		engine:    deps.Engine,
		hardware:  deps.Hardware,
		broker:    deps.Broker,
		version:   deps.Version,
		startTime: time.Now(),
	}

	// Use an externally-provided hub if available (needed when the engine
	// callbacks are wired to the hub before the server is created).
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
		s.ensureHub()
	}

	return s, nil
}

// ensureHub returns the hub, creating it on first use, and points it at
// the engine so subscribers receive the current snapshot immediately.
func (s *Server) ensureHub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.hub.SetStatusSource(s.engine.Snapshot)
	return s.hub
}

// Start builds the router and launches the listener in a background
// goroutine. Stop with Close.
//
// Parameters:
//   - ctx: parent for background goroutines; does not bound the listener
//
// Returns:
//   - error: currently always nil; listen failures surface through the log
func (s *Server) Start(ctx context.Context) error {
	// Derive an internal context so Close can stop background goroutines
	// without waiting on the parent.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Externally-injected hubs are run by their owner; hubs we created
	// (here or lazily in Hub()) are run on our internal context.
	s.ensureHub()
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("api listening with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("api listening", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api listener failed", "error", err)
		}
	}()

	return nil
}

// Hub returns the WebSocket hub, creating it if Start has not run yet.
// Used by the composition root to wire engine callbacks to the hub.
func (s *Server) Hub() *Hub {
	return s.ensureHub()
}

// Close drains in-flight requests for up to gracefulShutdownTimeout, then
// cuts whatever is left. The hub goroutine stops with the internal context.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api: %w", err)
	}
	return nil
}

// HealthCheck reports whether the listener has been started. The daemon
// runs it once at startup alongside the broker and telemetry probes.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
