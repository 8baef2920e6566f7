// Package rpc wraps the transport provider with the retry discipline used by
// the fetcher: every call gets up to three attempts with exponential backoff,
// and errors are classified so that request-shape errors and lost filters are
// surfaced immediately instead of retried.
package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/opwatcher/internal/indexing/metrics"
	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior for a single logical call.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig matches the three-attempt discipline of the fetcher.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// Client executes JSON-RPC calls against one provider with bounded retry.
type Client struct {
	provider provider.Provider
	cfg      RetryConfig
}

// NewClient creates a client around a provider.
func NewClient(p provider.Provider, cfg RetryConfig) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig
	}
	return &Client{provider: p, cfg: cfg}
}

// Call executes method with retry. Fatal request errors and lost-filter
// errors are returned on the first attempt.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	var result any
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		start := time.Now()
		res, err := c.provider.Call(ctx, method, params)
		c.observe(method, start, err)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BatchCall executes a batch with retry on whole-batch transport failures.
// Per-entry errors are returned to the caller untouched.
func (c *Client) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	var responses []provider.BatchResponse
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		start := time.Now()
		res, err := c.provider.BatchCall(ctx, requests)
		c.observe("batch", start, err)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		responses = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() provider.Provider {
	return c.provider
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.cfg.InitialDelay)
	b = retry.WithCappedDuration(c.cfg.MaxDelay, b)
	return retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), b)
}

func (c *Client) observe(method string, start time.Time, err error) {
	name := c.provider.GetName()
	metrics.RPCCallsTotal.WithLabelValues(name, method).Inc()
	metrics.RPCLatency.WithLabelValues(name, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(name, method).Inc()
	}
}

// IsFilterNotFound reports whether err is the node telling us the installed
// log filter no longer exists (expired or the node restarted).
func IsFilterNotFound(err error) bool {
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		return strings.Contains(strings.ToLower(rpcErr.Message), "filter not found")
	}
	return false
}

// IsRetryable classifies an error for the in-call retry loop. Request-shape
// errors and lost filters never heal by retrying the same request.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFilterNotFound(err) {
		return false
	}
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		// -32700 parse error, -32600 invalid request, -32601 method not
		// found, -32602 invalid params.
		switch rpcErr.Code {
		case -32700, -32600, -32601, -32602:
			return false
		}
	}
	// Network errors, 5xx, timeouts.
	return true
}
