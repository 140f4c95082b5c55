// internal/dashboard/server.go
package dashboard

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/metrics"
	"github.com/signalnine/fleetwatch/internal/poller"
	"github.com/signalnine/fleetwatch/internal/proxy"
	"github.com/signalnine/fleetwatch/internal/registry"
)

// Server is the dashboard backend
type Server struct {
	cfg    *config.ServerConfig
	logger *zap.Logger
	db     *registry.DB
	hub    *poller.Hub
	server *http.Server

	ready chan struct{}
	mu    sync.Mutex
	addr  net.Addr
}

// NewServer opens the registry and wires the API. The registry handle lives as long
// as the server.
func NewServer(cfg *config.ServerConfig, logger *zap.Logger) (*Server, error) {
	db, err := registry.NewDB(cfg.DBPath, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := proxy.NewClient(logger.Named("proxy"), proxy.WithTimeout(cfg.ProxyTimeout), proxy.WithMetrics(m))
	hub := poller.NewHub(client, cfg.PollInterval, logger.Named("poller"), m)
	handler := NewHandler(registry.NewService(db, logger.Named("registry")), client, hub, logger.Named("api"))

	r := mux.NewRouter()
	handler.Register(r)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: metric streams stay open
		IdleTimeout: 120 * time.Second,
	}
	server.RegisterOnShutdown(handler.CloseStreams)

	return &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		hub:    hub,
		server: server,
		ready:  make(chan struct{}),
	}, nil
}

// Handler exposes the router for in-process use
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully and releases the
// registry handle. TLS is used when a certificate is configured.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()
	defer s.hub.Close()

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}

	if s.cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			close(s.ready)
			return fmt.Errorf("load TLS cert: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, s.server.TLSConfig)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("Dashboard starting",
		zap.String("addr", ln.Addr().String()), zap.Bool("tls", s.cfg.TLSEnabled()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Dashboard shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Addr blocks until Run has bound its listener and returns the address, or nil
// when Run failed before listening.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
