// internal/proxy/client.go
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/metrics"
	"github.com/signalnine/fleetwatch/internal/protocol"
)

// DefaultTimeout bounds a single agent request, connect through body
const DefaultTimeout = 10 * time.Second

// Client forwards metric requests to host agents. It keeps no per-call state and
// is safe for concurrent use.
type Client struct {
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTransport replaces the HTTP transport, mainly for tests
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.client.Transport = rt }
}

// WithMetrics records request counts and latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an agent proxy client
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
			// A redirect target never went through Validate; hand back the 3xx
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client.Timeout = c.timeout
	return c
}

// Fetch validates host and port, then makes exactly one request to
// http://{host}:{port}/api/v1/{kind}. It never retries.
func (c *Client) Fetch(ctx context.Context, host, port string, kind protocol.Kind) Result {
	target, issues := Validate(host, port)
	if _, err := protocol.ParseKind(string(kind)); err != nil {
		issues = append(issues, Issue{Path: "kind", Message: "Unknown metric kind"})
	}
	if len(issues) > 0 {
		return c.record(kind, Invalid{Issues: issues})
	}

	start := time.Now()
	res := c.do(ctx, target, kind)
	if c.metrics != nil {
		c.metrics.ProxyDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}
	return c.record(kind, res)
}

func (c *Client) do(ctx context.Context, target Target, kind protocol.Kind) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	url := fmt.Sprintf("http://%s/api/v1/%s", addr, kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error("Build agent request", zap.String("url", url), zap.Error(err))
		return TransportFailure{Message: "Internal server error"}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fault(url, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		reason := http.StatusText(resp.StatusCode)
		if reason == "" {
			reason = resp.Status
		}
		c.logger.Warn("Agent returned error status",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		return UpstreamError{Status: resp.StatusCode, Message: reason}
	}

	payload := protocol.NewPayload(kind)
	if err := json.NewDecoder(resp.Body).Decode(payload); err != nil {
		return c.fault(url, kind, fmt.Errorf("decode %s payload: %w", kind, err))
	}

	return OK{Kind: kind, Payload: payload}
}

// fault logs the real error and returns the generic result for its class
func (c *Client) fault(url string, kind protocol.Kind, err error) Result {
	if isTimeout(err) {
		c.logger.Warn("Agent request timed out",
			zap.String("url", url), zap.Duration("timeout", c.timeout), zap.Error(err))
		return Timeout{}
	}
	c.logger.Error("Agent request failed",
		zap.String("url", url), zap.String("kind", string(kind)), zap.Error(err))
	return TransportFailure{Message: "Internal server error"}
}

func (c *Client) record(kind protocol.Kind, r Result) Result {
	if c.metrics != nil {
		c.metrics.ProxyRequests.WithLabelValues(string(kind), r.Outcome()).Inc()
	}
	return r
}

// isTimeout reports whether err is a deadline rather than a connection fault
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
