package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/chatforge/bridge-api/internal/bridge"
)

// Substrings that mark an error as transient when no typed signal is
// available. Upstreams and drivers embed these in wrapped error text.
var transientNeedles = []string{
	"ECONNRESET",
	"ETIMEDOUT",
	"ENOTFOUND",
	"ECONNABORTED",
	"connection reset",
	"connection refused",
	"Database connection",
	"not available",
}

// Transient reports whether err is worth retrying. Rate limits (429),
// upstream 5xx, timeouts, and network-level failures qualify; anything
// else is treated as permanent.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var se *bridge.StatusError
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}

	if k := bridge.KindOf(err); k != "" {
		return k.Transient()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED, syscall.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := err.Error()
	for _, needle := range transientNeedles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(msg), "network")
}
