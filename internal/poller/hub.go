// internal/poller/hub.go
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/signalnine/fleetwatch/internal/metrics"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
)

// Fetcher is the metrics proxy as seen by the poller
type Fetcher interface {
	Fetch(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result
}

// Key identifies one shared polling loop
type Key struct {
	Host string
	Port string
	Kind protocol.Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s/%s", k.Host, k.Port, k.Kind)
}

type topic struct {
	widget *Widget
	subs   map[string]func(proxy.Result)
}

// Hub shares one widget per (host, port, kind) among any number of subscribers.
// Subscribers see the same results a private widget would produce, but identical
// requests are made once.
type Hub struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	group singleflight.Group

	mu     sync.Mutex
	topics map[Key]*topic
}

// NewHub creates a hub polling through fetcher every interval
func NewHub(fetcher Fetcher, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
		metrics:  m,
		topics:   make(map[Key]*topic),
	}
}

// Subscribe registers fn for results on key and returns the function that removes
// it. fn must not block. A subscriber joining a running loop receives the latest
// result straight away.
func (h *Hub) Subscribe(key Key, fn func(proxy.Result)) (unsubscribe func()) {
	id := uuid.NewString()

	h.mu.Lock()
	t, ok := h.topics[key]
	if ok {
		t.subs[id] = fn
		if latest, has := t.widget.Latest(); has {
			fn(latest)
		}
		h.mu.Unlock()
	} else {
		t = &topic{subs: map[string]func(proxy.Result){id: fn}}
		t.widget = NewWidget(key.Kind, h.fetchFunc(key),
			WithInterval(h.interval),
			WithLogger(h.logger),
			WithMetrics(h.metrics),
			OnUpdate(func(res proxy.Result) { h.fanout(t, res) }))
		h.topics[key] = t
		h.mu.Unlock()

		h.logger.Info("Polling started", zap.String("key", key.String()))
		t.widget.Start(context.Background())
	}

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(key, t, id) })
	}
}

func (h *Hub) unsubscribe(key Key, t *topic, id string) {
	h.mu.Lock()
	delete(t.subs, id)
	last := len(t.subs) == 0 && h.topics[key] == t
	if last {
		delete(h.topics, key)
	}
	h.mu.Unlock()

	if last {
		// Outside h.mu: Stop waits for an in-progress fanout, which takes h.mu
		t.widget.Stop()
		h.logger.Info("Polling stopped", zap.String("key", key.String()))
	}
}

// fetchFunc coalesces overlapping calls for the same key
func (h *Hub) fetchFunc(key Key) FetchFunc {
	return func(ctx context.Context) proxy.Result {
		v, _, _ := h.group.Do(key.String(), func() (any, error) {
			return h.fetcher.Fetch(ctx, key.Host, key.Port, key.Kind), nil
		})
		return v.(proxy.Result)
	}
}

func (h *Hub) fanout(t *topic, res proxy.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, fn := range t.subs {
		fn(res)
	}
}

// Topics returns the number of running polling loops
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Close stops every loop and drops all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[Key]*topic)
	h.mu.Unlock()

	for _, t := range topics {
		t.widget.Stop()
	}
}
