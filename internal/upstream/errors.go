package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchError is a failure reading from an upstream service (VCS host or
// device directory).
type FetchError struct {
	Service    string // "vcs" or "directory"
	Op         string
	StatusCode int    // zero when no response was received
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReportError is a failure publishing a verdict to the VCS host.
type ReportError struct {
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ReportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("report %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("report %s: %v", e.Op, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: network errors,
// timeouts, 5xx and 429 responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	var re *ReportError
	if errors.As(err, &re) {
		return re.Transient
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// TransportTransient classifies an error returned before any response was
// received. It is transient unless the caller's own context has ended, in
// which case retrying cannot help.
func TransportTransient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	return true
}

// TransientStatus classifies an HTTP status code.
func TransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}
