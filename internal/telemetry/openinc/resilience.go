package openinc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig bounds the retry loop around one open.INC request. A
// MaxInterval of zero leaves the exponential delay uncapped.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errThrottled   = errors.New("open.INC throttled the request")
	errServerFault = errors.New("open.INC server error")
	errStatus      = errors.New("unexpected open.INC status")
	errCircuitOpen = errors.New("open.INC circuit open")
)

// do sends one request through the circuit breaker, retrying transient
// failures with exponentially growing delays. Throttling and 5xx answers
// count as transient; a tripped breaker fails fast without burning the
// remaining retries. buildRequest is called once per attempt so the
// request body and headers are fresh each time.
func (c *Client) do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	delay := c.backoff.InitialInterval
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			return c.send(req.WithContext(ctx))
		})
		if err == nil {
			return result.(*http.Response), nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}
	}
}

// send performs a single attempt and classifies the response status.
// Bodies of rejected responses are closed here so the retry loop never
// leaks connections.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, errThrottled
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, errServerFault
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	return resp, nil
}
