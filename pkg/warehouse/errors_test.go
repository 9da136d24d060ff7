package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: Permanent},
		{name: "plain error", err: errors.New("schema mismatch"), want: Permanent},

		{name: "api 401", err: &googleapi.Error{Code: 401}, want: Auth},
		{name: "api 403", err: &googleapi.Error{Code: 403}, want: Auth},
		{name: "api 404", err: &googleapi.Error{Code: 404}, want: Permanent},
		{name: "api 429", err: &googleapi.Error{Code: 429}, want: Transient},
		{name: "api 500", err: &googleapi.Error{Code: 500}, want: Transient},
		{name: "api 503", err: &googleapi.Error{Code: 503}, want: Transient},
		{name: "api 400", err: &googleapi.Error{Code: 400}, want: Permanent},
		{
			name: "wrapped api error",
			err:  fmt.Errorf("create dataset: %w", &googleapi.Error{Code: 500}),
			want: Transient,
		},

		{name: "job accessDenied", err: &bigquery.Error{Reason: "accessDenied"}, want: Auth},
		{name: "job backendError", err: &bigquery.Error{Reason: "backendError"}, want: Transient},
		{name: "job rateLimitExceeded", err: &bigquery.Error{Reason: "rateLimitExceeded"}, want: Transient},
		{name: "job quotaExceeded", err: &bigquery.Error{Reason: "quotaExceeded"}, want: Transient},
		{name: "job invalid", err: &bigquery.Error{Reason: "invalid"}, want: Permanent},
		{name: "job notFound", err: &bigquery.Error{Reason: "notFound"}, want: Permanent},

		{name: "deadline exceeded", err: context.DeadlineExceeded, want: Transient},
		{name: "canceled", err: context.Canceled, want: Permanent},
		{name: "dns timeout", err: &net.DNSError{IsTimeout: true}, want: Transient},
		{name: "dns permanent", err: &net.DNSError{IsNotFound: true}, want: Permanent},
		{name: "conn refused", err: syscall.ECONNREFUSED, want: Transient},
		{name: "conn reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: Transient},
		{name: "message pattern", err: errors.New("http2: unexpected EOF"), want: Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorClassString(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  string
	}{
		{Permanent, "permanent"},
		{Transient, "transient"},
		{Auth, "auth"},
	}
	for _, tt := range tests {
		if got := tt.class.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.class), got, tt.want)
		}
	}
}

func TestJobStateString(t *testing.T) {
	if got := Succeeded.String(); got != "succeeded" {
		t.Errorf("Succeeded.String() = %q", got)
	}
	if got := JobState(99).String(); got != "unknown" {
		t.Errorf("JobState(99).String() = %q", got)
	}
}
