package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. It performs no retries: the callers in this codebase must never
// resubmit a request automatically.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do executes the request. When the breaker is open ErrOpenCircuit is
// returned without touching the network. The response body remains readable
// until closed; closing it releases the per-call deadline.
func (c HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if c.Breaker != nil && !c.Breaker.Allow() {
		return nil, ErrOpenCircuit
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}

	resp, err := c.Client.Do(req.WithContext(callCtx))
	success := err == nil && resp.StatusCode < 500
	if c.Breaker != nil {
		c.Breaker.Report(success)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = bodyWithCancel{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type bodyWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b bodyWithCancel) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
