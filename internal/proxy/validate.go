// internal/proxy/validate.go
package proxy

import (
	"regexp"
	"strconv"
)

var (
	hostnameRe = regexp.MustCompile(`(?i)^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)*[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)
	digitsRe   = regexp.MustCompile(`^\d+$`)
)

// Issue is one rejected input field
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Target is a validated agent address
type Target struct {
	Host string
	Port int
}

// Validate checks a host/port pair as received from a query string. Every failing
// field contributes an issue; the target is only meaningful when issues is empty.
func Validate(host, port string) (Target, []Issue) {
	var issues []Issue

	switch {
	case host == "":
		issues = append(issues, Issue{Path: "host", Message: "Host is required"})
	case !hostnameRe.MatchString(host):
		issues = append(issues, Issue{Path: "host", Message: "Invalid hostname format"})
	}

	var p int
	if !digitsRe.MatchString(port) {
		issues = append(issues, Issue{Path: "port", Message: "Port must be a number"})
	} else {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			issues = append(issues, Issue{Path: "port", Message: "Port must be between 1 and 65535"})
		} else {
			p = n
		}
	}

	if len(issues) > 0 {
		return Target{}, issues
	}
	return Target{Host: host, Port: p}, nil
}
