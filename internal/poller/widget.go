// Package poller drives periodic metric fetches for dashboard widgets.
//
// A Widget owns one timer for one metric kind. It fetches once when started and
// again on every tick without waiting for earlier calls, so several calls can be in
// flight at once. Completions are numbered; a result older than the one already
// shown is dropped, and nothing is applied after Stop.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/metrics"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
)

// DefaultInterval is the refresh cadence of a live widget
const DefaultInterval = 5 * time.Second

// FetchFunc performs one metric request
type FetchFunc func(ctx context.Context) proxy.Result

// Widget polls a single metric kind until stopped
type Widget struct {
	ID   string
	Kind protocol.Kind

	fetch    FetchFunc
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	onUpdate func(proxy.Result)

	mu      sync.Mutex
	started bool
	alive   bool
	issued  uint64
	applied uint64
	latest  proxy.Result

	// serializes onUpdate calls so subscribers see results in applied order
	deliverMu sync.Mutex

	stop     chan struct{}
	done     chan struct{}
	inflight sync.WaitGroup
}

// WidgetOption configures a Widget
type WidgetOption func(*Widget)

// WithInterval sets the refresh cadence. Zero or negative makes a one-shot widget.
func WithInterval(d time.Duration) WidgetOption {
	return func(w *Widget) { w.interval = d }
}

func WithLogger(l *zap.Logger) WidgetOption {
	return func(w *Widget) { w.logger = l }
}

func WithMetrics(m *metrics.Metrics) WidgetOption {
	return func(w *Widget) { w.metrics = m }
}

// OnUpdate registers a callback for every applied result. It must not block and
// must not call Stop.
func OnUpdate(fn func(proxy.Result)) WidgetOption {
	return func(w *Widget) { w.onUpdate = fn }
}

// NewWidget creates a stopped widget
func NewWidget(kind protocol.Kind, fetch FetchFunc, opts ...WidgetOption) *Widget {
	w := &Widget{
		ID:       uuid.NewString(),
		Kind:     kind,
		fetch:    fetch,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start fetches immediately and then on every interval until Stop or ctx ends.
// Calling Start twice has no effect.
func (w *Widget) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.alive = true
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.ActiveWidgets.Inc()
	}
	w.logger.Debug("Widget started",
		zap.String("widget", w.ID), zap.String("kind", string(w.Kind)), zap.Duration("interval", w.interval))

	go w.run(ctx)
}

func (w *Widget) run(ctx context.Context) {
	defer close(w.done)

	w.tick(ctx)
	if w.interval <= 0 {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick issues one fetch without waiting for it
func (w *Widget) tick(ctx context.Context) {
	w.mu.Lock()
	if !w.alive {
		w.mu.Unlock()
		return
	}
	w.issued++
	seq := w.issued
	w.mu.Unlock()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		// Teardown does not cancel a call already on the wire; the proxy
		// timeout bounds it.
		res := w.fetch(context.WithoutCancel(ctx))
		w.apply(seq, res)
	}()
}

func (w *Widget) apply(seq uint64, res proxy.Result) {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.mu.Lock()
	if !w.alive {
		w.mu.Unlock()
		w.logger.Debug("Discarding result for stopped widget",
			zap.String("widget", w.ID), zap.Uint64("seq", seq))
		return
	}
	if seq < w.applied {
		w.mu.Unlock()
		w.logger.Debug("Discarding stale result",
			zap.String("widget", w.ID), zap.Uint64("seq", seq), zap.Uint64("applied", w.applied))
		return
	}
	w.applied = seq
	w.latest = res
	fn := w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(res)
	}
}

// Stop clears the timer and discards any result that completes afterwards.
// When Stop returns no further OnUpdate call will start.
func (w *Widget) Stop() {
	w.mu.Lock()
	if !w.alive {
		w.mu.Unlock()
		return
	}
	w.alive = false
	w.mu.Unlock()

	close(w.stop)

	// Wait out a delivery that passed the liveness check before we flipped it
	w.deliverMu.Lock()
	w.deliverMu.Unlock()

	if w.metrics != nil {
		w.metrics.ActiveWidgets.Dec()
	}
	w.logger.Debug("Widget stopped", zap.String("widget", w.ID))
}

// Wait blocks until the timer loop has exited and every issued fetch has
// returned. Only valid after Start.
func (w *Widget) Wait() {
	<-w.done
	w.inflight.Wait()
}

// Latest returns the most recently applied result
func (w *Widget) Latest() (proxy.Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.applied > 0
}

// Alive reports whether the widget is still accepting results
func (w *Widget) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}
