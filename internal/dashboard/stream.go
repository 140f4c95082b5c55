// internal/dashboard/stream.go
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/poller"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
)

// keepAlive is how often an idle stream sends a comment line
const keepAlive = 30 * time.Second

// stream pushes every result of the shared poller for (host, port, kind) as a
// server-sent event until the client goes away.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	kind, err := protocol.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	q := r.URL.Query()
	target, issues := proxy.Validate(q.Get("host"), q.Get("port"))
	if len(issues) > 0 {
		code, body := resultBody(kind, proxy.Invalid{Issues: issues})
		writeJSON(w, code, body)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Keep only the newest result if the client falls behind
	updates := make(chan proxy.Result, 1)
	key := poller.Key{Host: target.Host, Port: strconv.Itoa(target.Port), Kind: kind}
	unsubscribe := h.hub.Subscribe(key, func(res proxy.Result) {
		for {
			select {
			case updates <- res:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	h.logger.Debug("Stream opened", zap.String("key", key.String()), zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Stream closed", zap.String("key", key.String()))
			return
		case <-h.closing:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case res := <-updates:
			if err := writeEvent(w, kind, res); err != nil {
				h.logger.Debug("Stream write failed", zap.String("key", key.String()), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent renders one result as an SSE frame. Successful results are sent as
// "metric" events carrying the payload; failures are "error" events carrying the
// same body and status the plain endpoint would return.
func writeEvent(w http.ResponseWriter, kind protocol.Kind, res proxy.Result) error {
	code, body := resultBody(kind, res)

	event := "metric"
	var data []byte
	var err error
	if _, ok := res.(proxy.OK); ok {
		data, err = json.Marshal(body)
	} else {
		event = "error"
		data, err = json.Marshal(streamError{Status: code, Body: body})
	}
	if err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

type streamError struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}
