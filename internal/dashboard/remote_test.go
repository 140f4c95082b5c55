// internal/dashboard/remote_test.go
package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalnine/fleetwatch/internal/protocol"
	"github.com/signalnine/fleetwatch/internal/proxy"
)

func TestRemoteRecoversResults(t *testing.T) {
	tests := []struct {
		name string
		in   proxy.Result
		want proxy.Result
	}{
		{
			name: "invalid",
			in:   proxy.Invalid{Issues: []proxy.Issue{{Path: "port", Message: "Port must be a number"}}},
			want: proxy.Invalid{Issues: []proxy.Issue{{Path: "port", Message: "Port must be a number"}}},
		},
		{
			name: "upstream",
			in:   proxy.UpstreamError{Status: 502, Message: "Bad Gateway"},
			want: proxy.UpstreamError{Status: 502, Message: "Bad Gateway"},
		},
		{
			name: "agent bad request",
			in:   proxy.UpstreamError{Status: 400, Message: "Bad Request"},
			want: proxy.UpstreamError{Status: 400, Message: "Bad Request"},
		},
		{name: "timeout", in: proxy.Timeout{}, want: proxy.Timeout{}},
		{
			name: "transport",
			in:   proxy.TransportFailure{Message: "Internal server error"},
			want: proxy.TransportFailure{Message: "Internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fetchFunc(func(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
				return tt.in
			}))
			srv := httptest.NewServer(env.router)
			defer srv.Close()

			got := NewRemote(srv.URL+"/", zap.NewNop()).Fetch(context.Background(), "web1", "8001", protocol.KindNetwork)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoteDecodesPayload(t *testing.T) {
	env := newTestEnv(t, fetchFunc(func(ctx context.Context, host, port string, kind protocol.Kind) proxy.Result {
		assert.Equal(t, "10.0.0.4", host)
		assert.Equal(t, "9100", port)
		return proxy.OK{Kind: kind, Payload: &[]protocol.Process{{PID: 1, Name: "init"}, {PID: 77, Name: "sshd"}}}
	}))
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	res := NewRemote(srv.URL, zap.NewNop()).Fetch(context.Background(), "10.0.0.4", "9100", protocol.KindProcess)

	ok, isOK := res.(proxy.OK)
	require.True(t, isOK, "got %T", res)
	procs := *ok.Payload.(*[]protocol.Process)
	require.Len(t, procs, 2)
	assert.Equal(t, "sshd", procs[1].Name)
}

func TestRemoteUnreachableDashboard(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewRemote(url, zap.NewNop()).Fetch(context.Background(), "web1", "8001", protocol.KindCPU)

	assert.Equal(t, proxy.TransportFailure{Message: "Internal server error"}, res)
}
