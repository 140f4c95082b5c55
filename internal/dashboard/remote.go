// internal/dashboard/remote.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
)

// Remote fetches metrics through a running dashboard's /api/{kind} endpoint and
// turns the boundary response back into a proxy result.
type Remote struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemote creates a fetcher against the dashboard at baseURL. The timeout sits a
// little above the dashboard's own so its 504 arrives first.
func NewRemote(baseURL string, logger *zap.Logger) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: proxy.DefaultTimeout + 2*time.Second},
		logger:  logger,
	}
}

// Fetch implements poller.Fetcher
func (r *Remote) Fetch(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
	u := fmt.Sprintf("%s/api/%s?%s", r.baseURL, kind, url.Values{"host": {host}, "port": {port}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		r.logger.Error("Build dashboard request", zap.String("url", u), zap.Error(err))
		return proxy.TransportFailure{Message: "Internal server error"}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return proxy.Timeout{}
		}
		r.logger.Warn("Dashboard request failed", zap.String("url", u), zap.Error(err))
		return proxy.TransportFailure{Message: "Internal server error"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return proxy.TransportFailure{Message: "Internal server error"}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		payload := protocol.NewPayload(kind)
		if err := json.Unmarshal(body, payload); err != nil {
			r.logger.Warn("Decode dashboard response", zap.String("url", u), zap.Error(err))
			return proxy.TransportFailure{Message: "Internal server error"}
		}
		return proxy.OK{Kind: kind, Payload: payload}
	case http.StatusBadRequest:
		var inv struct {
			Details []proxy.Issue `json:"details"`
		}
		if err := json.Unmarshal(body, &inv); err == nil && len(inv.Details) > 0 {
			return proxy.Invalid{Issues: inv.Details}
		}
		// An agent 400 passed through by the dashboard carries no details
		return upstreamError(kind, resp.StatusCode, body)
	case http.StatusGatewayTimeout:
		return proxy.Timeout{}
	case http.StatusInternalServerError:
		return proxy.TransportFailure{Message: "Internal server error"}
	default:
		return upstreamError(kind, resp.StatusCode, body)
	}
}

func upstreamError(kind protocol.Kind, code int, body []byte) proxy.Result {
	var e errorBody
	json.Unmarshal(body, &e)
	msg := strings.TrimPrefix(e.Error, fmt.Sprintf("Failed to fetch %s data: ", kind))
	if msg == "" {
		msg = http.StatusText(code)
	}
	return proxy.UpstreamError{Status: code, Message: msg}
}
