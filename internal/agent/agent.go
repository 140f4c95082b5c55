// internal/agent/agent.go
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/protocol"
)

// collectTimeout bounds a single collection, below the dashboard's proxy timeout
const collectTimeout = 8 * time.Second

// Agent serves local host metrics at /api/v1/{kind}
type Agent struct {
	cfg        *config.AgentConfig
	logger     *zap.Logger
	collectors map[protocol.Kind]CollectFunc
	server     *http.Server

	ready chan struct{}
	mu    sync.Mutex
	addr  net.Addr
}

// Option configures an Agent
type Option func(*Agent)

// WithCollector replaces the collector for kind
func WithCollector(kind protocol.Kind, fn CollectFunc) Option {
	return func(a *Agent) { a.collectors[kind] = fn }
}

// New creates an agent reading from the local host
func New(cfg *config.AgentConfig, logger *zap.Logger, opts ...Option) *Agent {
	a := &Agent{
		cfg:        cfg,
		logger:     logger,
		collectors: defaultCollectors(cfg.TopProcesses),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/{kind}", a.serveMetric).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	a.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return a
}

// Handler exposes the router for in-process use
func (a *Agent) Handler() http.Handler {
	return a.server.Handler
}

func (a *Agent) serveMetric(w http.ResponseWriter, r *http.Request) {
	kind, err := protocol.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	collect, ok := a.collectors[kind]
	if !ok {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": fmt.Sprintf("%s not collected", kind)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), collectTimeout)
	defer cancel()

	start := time.Now()
	payload, err := collect(ctx)
	if err != nil {
		a.logger.Error("Collection failed", zap.String("kind", string(kind)), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "collection failed"})
		return
	}
	a.logger.Debug("Collected", zap.String("kind", string(kind)),
		zap.Duration("took", time.Since(start)), zap.String("remote", r.RemoteAddr))

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled
func (a *Agent) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.ListenAddr)
	if err != nil {
		close(a.ready)
		return fmt.Errorf("listen on %s: %w", a.cfg.ListenAddr, err)
	}

	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()
	close(a.ready)

	a.logger.Info("Agent starting", zap.String("addr", ln.Addr().String()), zap.Int("top_processes", a.cfg.TopProcesses))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Agent shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Addr blocks until Run has bound its listener; nil when Run failed first
func (a *Agent) Addr() net.Addr {
	<-a.ready
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}
