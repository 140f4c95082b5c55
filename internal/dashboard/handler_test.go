// internal/dashboard/handler_test.go
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/poller"
	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
	"github.com/signalnine/fleetwatch/internal/registry"
)

// fetchFunc adapts a function to poller.Fetcher
type fetchFunc func(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result

func (f fetchFunc) Fetch(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
	return f(ctx, host, port, kind)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *registry.DB
	handler *Handler
	hub     *poller.Hub
	router  *mux.Router
}

func newTestEnv(t *testing.T, fetcher poller.Fetcher) *testEnv {
	t.Helper()
	db, err := registry.NewDB(filepath.Join(t.TempDir(), "registry.db"), 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := poller.NewHub(fetcher, 20*time.Millisecond, zap.NewNop(), nil)
	t.Cleanup(hub.Close)

	h := NewHandler(registry.NewService(db, zap.NewNop()), fetcher, hub, zap.NewNop())
	h.now = func() time.Time { return fixedNow }

	r := mux.NewRouter()
	h.Register(r)
	return &testEnv{db: db, handler: h, hub: hub, router: r}
}

func (e *testEnv) seed(t *testing.T, hosts ...protocol.HostRecord) {
	t.Helper()
	for i := range hosts {
		require.NoError(t, e.db.Upsert(context.Background(), &hosts[i]))
	}
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func noFetch(t *testing.T) poller.Fetcher {
	return fetchFunc(func(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
		t.Errorf("unexpected fetch %s:%s/%s", host, port, kind)
		return proxy.TransportFailure{Message: "Internal server error"}
	})
}

func TestListHostsPaging(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	for i := 1; i <= 8; i++ {
		env.seed(t, protocol.HostRecord{
			ID:        fmt.Sprintf("id-%d", i),
			IP:        fmt.Sprintf("10.0.0.%d", i),
			Hostname:  fmt.Sprintf("node%d.example.com", i),
			UpdatedOn: fixedNow.UnixMilli() - 1000,
		})
	}

	rec := env.get(t, "/api/hosts?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var page HostPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Hosts, 2)
	assert.Equal(t, "node7.example.com", page.Hosts[0].Hostname)
	assert.Equal(t, "node8.example.com", page.Hosts[1].Hostname)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)
}

func TestListHostsStatusTiers(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	now := fixedNow.UnixMilli()
	env.seed(t,
		protocol.HostRecord{ID: "a", Hostname: "a.example.com", IP: "10.1.0.1", UpdatedOn: now - 1000},
		protocol.HostRecord{ID: "b", Hostname: "b.example.com", IP: "10.1.0.2", UpdatedOn: now - 60000},
		protocol.HostRecord{ID: "c", Hostname: "c.example.com", IP: "10.1.0.3", UpdatedOn: now - 900001},
	)

	rec := env.get(t, "/api/hosts")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Hosts []struct {
			Hostname string `json:"hostname"`
			Status   string `json:"status"`
		} `json:"hosts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Hosts, 3)
	assert.Equal(t, "active", body.Hosts[0].Status)
	assert.Equal(t, "unknown", body.Hosts[1].Status)
	assert.Equal(t, "inactive", body.Hosts[2].Status)
}

func TestListHostsQuery(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	env.seed(t,
		protocol.HostRecord{ID: "1", Hostname: "h1.example.com", IP: "192.168.1.10"},
		protocol.HostRecord{ID: "2", Hostname: "db.internal", IP: "192.168.1.20"},
	)

	rec := env.get(t, "/api/hosts?query=EXAMPLE")
	require.Equal(t, http.StatusOK, rec.Code)
	var page HostPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Hosts, 1)
	assert.Equal(t, "h1.example.com", page.Hosts[0].Hostname)

	rec = env.get(t, "/api/hosts?query=192.168.1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Hosts, 2)
	assert.Equal(t, 1, page.TotalPages)
}

func TestListHostsPageFallback(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	env.seed(t, protocol.HostRecord{ID: "1", Hostname: "only.example.com", IP: "10.0.0.1"})

	for _, raw := range []string{"", "0", "-3", "abc", "1.5"} {
		rec := env.get(t, "/api/hosts?page="+raw)
		require.Equal(t, http.StatusOK, rec.Code, "page=%q", raw)
		var page HostPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		assert.Equal(t, 1, page.Page, "page=%q", raw)
		assert.Len(t, page.Hosts, 1, "page=%q", raw)
	}

	rec := env.get(t, "/api/hosts?page=9")
	var page HostPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Empty(t, page.Hosts)
	assert.Equal(t, "[]", string(mustField(t, rec.Body.Bytes(), "hosts")))
}

func mustField(t *testing.T, data []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m[name]
}

func TestListHostsQueryTooLong(t *testing.T) {
	env := newTestEnv(t, noFetch(t))

	rec := env.get(t, "/api/hosts?query="+strings.Repeat("a", MaxQueryLen+1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid parameters","details":[{"path":"query","message":"Query too long"}]}`, rec.Body.String())

	rec = env.get(t, "/api/hosts?query="+strings.Repeat("a", MaxQueryLen))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListHostsStoreFailure(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	env.db.Close()

	rec := env.get(t, "/api/hosts")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch servers."}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "sql")
}

func TestGetHost(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	env.seed(t, protocol.HostRecord{
		ID: "7f3c", Hostname: "web1.example.com", IP: "10.0.0.5", AccessPort: 8001,
		CPUCount: 8, DiskUsage: "41%", UpdatedOn: fixedNow.UnixMilli() - 120000,
	})

	rec := env.get(t, "/api/hosts/7f3c")
	require.Equal(t, http.StatusOK, rec.Code)
	var view HostView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "web1.example.com", view.Hostname)
	assert.Equal(t, 8001, view.AccessPort)
	assert.Contains(t, rec.Body.String(), `"status":"unknown"`)

	rec = env.get(t, "/api/hosts/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Server not found"}`, rec.Body.String())
}

func TestMetricEndpointOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   proxy.Result
		wantCode int
		wantBody string
	}{
		{
			name:     "ok",
			result:   proxy.OK{Kind: protocol.KindMemory, Payload: &protocol.Memory{Total: "16 GB", Percent: "42.1%"}},
			wantCode: http.StatusOK,
		},
		{
			name:     "upstream",
			result:   proxy.UpstreamError{Status: 503, Message: "Service Unavailable"},
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"error":"Failed to fetch memory data: Service Unavailable"}`,
		},
		{
			name:     "timeout",
			result:   proxy.Timeout{},
			wantCode: http.StatusGatewayTimeout,
			wantBody: `{"error":"Request timeout"}`,
		},
		{
			name:     "transport",
			result:   proxy.TransportFailure{Message: "Internal server error"},
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"Internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotHost, gotPort string
			env := newTestEnv(t, fetchFunc(func(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
				gotHost, gotPort = host, port
				assert.Equal(t, protocol.KindMemory, kind)
				return tt.result
			}))

			rec := env.get(t, "/api/memory?host=web1.example.com&port=8001")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "web1.example.com", gotHost)
			assert.Equal(t, "8001", gotPort)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			} else {
				var mem protocol.Memory
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mem))
				assert.Equal(t, "42.1%", mem.Percent)
			}
		})
	}
}

func TestMetricEndpointInvalidParams(t *testing.T) {
	env := newTestEnv(t, noFetch(t))
	env.handler.fetcher = proxy.NewClient(zap.NewNop())

	rec := env.get(t, "/api/cpu?host=bad%20host!&port=0")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid parameters","details":[
		{"path":"host","message":"Invalid hostname format"},
		{"path":"port","message":"Port must be between 1 and 65535"}]}`, rec.Body.String())
}

func TestMetricEndpointUnknownKind(t *testing.T) {
	env := newTestEnv(t, noFetch(t))

	rec := env.get(t, "/api/gpu?host=web1&port=8001")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
