package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "classified error",
			err:  &Error{Kind: KindParse, Op: "search", SystemID: "sys-a", Err: errors.New("bad xml")},
			want: KindParse,
		},
		{
			name: "wrapped classified error",
			err:  fmt.Errorf("outer: %w", &Error{Kind: KindAuth, Err: errors.New("denied")}),
			want: KindAuth,
		},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "canceled", err: context.Canceled, want: KindTimeout},
		{name: "plain error", err: errors.New("what"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConnection, true},
		{KindTimeout, true},
		{KindUnknown, true},
		{KindAuth, false},
		{KindRateLimit, false},
		{KindParse, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &Error{Kind: tt.kind, Err: errors.New("x")}
			if got := Retryable(err); got != tt.want {
				t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	already := &Error{Kind: KindRateLimit, Op: "search", SystemID: "sys-a", Err: errors.New("429")}
	if got := Classify(already, "sys-b", domain.ProtocolSRU, "search"); got != already {
		t.Error("Classify should pass existing *Error through unchanged")
	}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "net timeout", err: &fakeNetError{timeout: true}, want: KindTimeout},
		{name: "net failure", err: &fakeNetError{}, want: KindConnection},
		{name: "unclassified", err: errors.New("strange"), want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "sys-a", domain.ProtocolSRU, "search")
			var ce *Error
			if !errors.As(got, &ce) {
				t.Fatalf("Classify returned %T, want *Error", got)
			}
			if ce.Kind != tt.want {
				t.Errorf("kind = %q, want %q", ce.Kind, tt.want)
			}
			if ce.SystemID != "sys-a" || ce.Protocol != domain.ProtocolSRU {
				t.Errorf("identity not stamped: %+v", ce)
			}
			if !errors.Is(got, tt.err) {
				t.Error("cause not preserved through Unwrap")
			}
		})
	}

	if Classify(nil, "sys-a", domain.ProtocolSRU, "search") != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindParse, Op: "search", SystemID: "sys-a", Protocol: domain.ProtocolKohaSRU, Err: errors.New("bad xml")}
	got := err.Error()
	for _, want := range []string{"sys-a", "search", "parse", "bad xml"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}
