// internal/status/status.go
package status

import (
	"fmt"
	"time"
)

// Tier is the staleness of a host's last registry update
type Tier int

const (
	Active Tier = iota
	Unknown
	Inactive
)

const (
	activeWindow   int64 = 60_000  // 1 minute
	inactiveWindow int64 = 900_000 // 15 minutes
)

// Classify maps a last-updated timestamp to a tier relative to now (both epoch ms).
// Both window edges land in Unknown. A timestamp in the future is Active.
func Classify(lastUpdatedMillis, nowMillis int64) Tier {
	delta := nowMillis - lastUpdatedMillis
	if delta < activeWindow {
		return Active
	}
	if delta > inactiveWindow {
		return Inactive
	}
	return Unknown
}

// ClassifyAt is Classify against a wall-clock instant
func ClassifyAt(lastUpdatedMillis int64, now time.Time) Tier {
	return Classify(lastUpdatedMillis, now.UnixMilli())
}

func (t Tier) String() string {
	switch t {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Label is the badge text shown next to a host
func (t Tier) Label() string {
	switch t {
	case Active:
		return "ACTIVE"
	case Inactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*t = Active
	case "unknown":
		*t = Unknown
	case "inactive":
		*t = Inactive
	default:
		return fmt.Errorf("unknown status tier %q", b)
	}
	return nil
}
