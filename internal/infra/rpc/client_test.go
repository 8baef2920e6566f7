package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
)

type fakeProvider struct {
	calls   int
	results []any
	errs    []error
}

func (f *fakeProvider) GetName() string                  { return "fake" }
func (f *fakeProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{} }
func (f *fakeProvider) Close() error                     { return nil }

func (f *fakeProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func (f *fakeProvider) BatchCall(ctx context.Context, reqs []provider.BatchRequest) ([]provider.BatchResponse, error) {
	f.calls++
	out := make([]provider.BatchResponse, len(reqs))
	return out, nil
}

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestCallRetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{errors.New("connection reset"), errors.New("http 503: busy"), nil},
		results: []any{nil, nil, "0x10"},
	}
	c := NewClient(p, testRetryConfig())

	result, err := c.Call(context.Background(), "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if result != "0x10" {
		t.Errorf("unexpected result: %v", result)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", p.calls)
	}
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	transient := errors.New("timeout")
	p := &fakeProvider{errs: []error{transient, transient, transient, transient}}
	c := NewClient(p, testRetryConfig())

	_, err := c.Call(context.Background(), "eth_getLogs", nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if p.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", p.calls)
	}
}

func TestCallDoesNotRetryFatalErrors(t *testing.T) {
	fatal := &provider.RPCError{Code: -32602, Message: "invalid params"}
	p := &fakeProvider{errs: []error{fatal, nil}}
	c := NewClient(p, testRetryConfig())

	_, err := c.Call(context.Background(), "eth_getLogs", nil)
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if p.calls != 1 {
		t.Errorf("fatal error must not be retried, got %d attempts", p.calls)
	}
}

func TestCallDoesNotRetryFilterNotFound(t *testing.T) {
	lost := &provider.RPCError{Code: -32000, Message: "filter not found"}
	p := &fakeProvider{errs: []error{lost, nil}}
	c := NewClient(p, testRetryConfig())

	_, err := c.Call(context.Background(), "eth_getFilterChanges", []any{"0x1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsFilterNotFound(err) {
		t.Errorf("expected filter-not-found classification, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("lost filter must not be retried, got %d attempts", p.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("connection refused"), true},
		{"server error", &provider.RPCError{Code: -32005, Message: "limit exceeded"}, true},
		{"parse error", &provider.RPCError{Code: -32700, Message: "parse error"}, false},
		{"method not found", &provider.RPCError{Code: -32601, Message: "method not found"}, false},
		{"filter not found", &provider.RPCError{Code: -32000, Message: "filter not found"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
