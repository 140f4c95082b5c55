// internal/proxy/result.go
package proxy

import (
	"net/http"

	"github.com/signalnine/fleetwatch/internal/protocol"
)

// Result is the outcome of one metric fetch. The concrete type is exactly one of
// OK, Invalid, UpstreamError, Timeout or TransportFailure.
type Result interface {
	// Outcome is a short label used for metrics and logs
	Outcome() string
	isResult()
}

// OK carries the decoded agent payload; Payload is a pointer from protocol.NewPayload
type OK struct {
	Kind    protocol.Kind
	Payload any
}

// Invalid means the target was rejected before any network call
type Invalid struct {
	Issues []Issue
}

// UpstreamError means the agent answered with a non-2xx status
type UpstreamError struct {
	Status  int
	Message string
}

// Timeout means the agent did not answer within the deadline
type Timeout struct{}

// TransportFailure covers refused connections, DNS failures and unreadable bodies.
// Message is safe to show; the underlying fault is only logged.
type TransportFailure struct {
	Message string
}

func (OK) Outcome() string               { return "ok" }
func (Invalid) Outcome() string          { return "invalid" }
func (UpstreamError) Outcome() string    { return "upstream_error" }
func (Timeout) Outcome() string          { return "timeout" }
func (TransportFailure) Outcome() string { return "transport_failure" }

func (OK) isResult()               {}
func (Invalid) isResult()          {}
func (UpstreamError) isResult()    {}
func (Timeout) isResult()          {}
func (TransportFailure) isResult() {}

// StatusCode maps a result onto the HTTP status exposed to the dashboard
func StatusCode(r Result) int {
	switch v := r.(type) {
	case OK:
		return http.StatusOK
	case Invalid:
		return http.StatusBadRequest
	case UpstreamError:
		return v.Status
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
