// internal/dashboard/handler.go
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/poller"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
	"github.com/signalnine/fleetwatch/internal/registry"
	"github.com/signalnine/fleetwatch/internal/status"
)

// MaxQueryLen bounds the fleet search string
const MaxQueryLen = 100

var pageRe = regexp.MustCompile(`^\d+$`)

// HostView is a registry row as shown in the fleet list
type HostView struct {
	protocol.HostRecord
	Status status.Tier `json:"status"`
}

// HostPage is one page of the fleet list
type HostPage struct {
	Hosts      []HostView `json:"hosts"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}

// Handler serves the dashboard API
type Handler struct {
	hosts   *registry.Service
	fetcher poller.Fetcher
	hub     *poller.Hub
	logger  *zap.Logger
	now     func() time.Time

	closeOnce sync.Once
	closing   chan struct{}
}

// NewHandler creates the API handler
func NewHandler(hosts *registry.Service, fetcher poller.Fetcher, hub *poller.Hub, logger *zap.Logger) *Handler {
	return &Handler{
		hosts:   hosts,
		fetcher: fetcher,
		hub:     hub,
		logger:  logger,
		now:     time.Now,
		closing: make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. Plain requests are unaffected.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Register mounts the API routes on r
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/hosts", h.listHosts).Methods(http.MethodGet)
	api.HandleFunc("/hosts/{id}", h.getHost).Methods(http.MethodGet)
	api.HandleFunc("/stream/{kind}", h.stream).Methods(http.MethodGet)
	api.HandleFunc("/{kind}", h.metric).Methods(http.MethodGet)
}

func (h *Handler) listHosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if utf8.RuneCountInString(query) > MaxQueryLen {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid parameters",
			"details": []proxy.Issue{{Path: "query", Message: "Query too long"}},
		})
		return
	}
	page := parsePage(q.Get("page"))

	totalPages, err := h.hosts.Count(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch servers.")
		return
	}
	records, err := h.hosts.List(r.Context(), query, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch servers.")
		return
	}

	now := h.now()
	views := make([]HostView, 0, len(records))
	for _, rec := range records {
		views = append(views, HostView{HostRecord: rec, Status: status.ClassifyAt(rec.UpdatedOn, now)})
	}

	writeJSON(w, http.StatusOK, HostPage{Hosts: views, Page: page, TotalPages: totalPages})
}

func (h *Handler) getHost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.hosts.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch the server.")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Server not found")
		return
	}

	writeJSON(w, http.StatusOK, HostView{HostRecord: *rec, Status: status.ClassifyAt(rec.UpdatedOn, h.now())})
}

func (h *Handler) metric(w http.ResponseWriter, r *http.Request) {
	kind, err := protocol.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	q := r.URL.Query()
	res := h.fetcher.Fetch(r.Context(), q.Get("host"), q.Get("port"), kind)
	code, body := resultBody(kind, res)
	writeJSON(w, code, body)
}

// parsePage treats a missing or malformed page as the first
func parsePage(raw string) int {
	if !pageRe.MatchString(raw) {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// resultBody maps a proxy outcome onto the status and JSON body of the boundary
func resultBody(kind protocol.Kind, res proxy.Result) (int, any) {
	code := proxy.StatusCode(res)
	switch v := res.(type) {
	case proxy.OK:
		return code, v.Payload
	case proxy.Invalid:
		return code, map[string]any{"error": "Invalid parameters", "details": v.Issues}
	case proxy.UpstreamError:
		return code, errorBody{Error: fmt.Sprintf("Failed to fetch %s data: %s", kind, v.Message)}
	case proxy.Timeout:
		return code, errorBody{Error: "Request timeout"}
	default:
		return code, errorBody{Error: "Internal server error"}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
