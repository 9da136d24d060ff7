package warehouse

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

// ErrorClass partitions warehouse failures by how the caller should
// react: Transient errors are retried with backoff, Permanent and Auth
// errors fail the action immediately.
type ErrorClass int

const (
	Permanent ErrorClass = iota
	Transient
	Auth
)

func (c ErrorClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case Auth:
		return "auth"
	default:
		return "permanent"
	}
}

// Job error reasons that indicate a passing condition.
// https://cloud.google.com/bigquery/docs/error-messages
var transientReasons = map[string]bool{
	"backendError":         true,
	"internalError":        true,
	"rateLimitExceeded":    true,
	"jobRateLimitExceeded": true,
	"quotaExceeded":        true,
	"tableUnavailable":     true,
}

// Classify maps an error from any warehouse call to its ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return Permanent
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 401, 403:
			return Auth
		case 408, 429, 500, 502, 503, 504:
			return Transient
		default:
			return Permanent
		}
	}

	var bqerr *bigquery.Error
	if errors.As(err, &bqerr) {
		if bqerr.Reason == "accessDenied" {
			return Auth
		}
		if transientReasons[bqerr.Reason] {
			return Transient
		}
		return Permanent
	}

	if isNetworkError(err) {
		return Transient
	}

	return Permanent
}

// isNetworkError reports whether err is a connectivity-level failure
// worth retrying.
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		// A per-call deadline, not the run's cancellation.
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
		syscall.EPIPE,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"i/o timeout",
		"unexpected eof",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}
