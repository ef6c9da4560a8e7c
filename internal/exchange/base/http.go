// Package base provides the resilient HTTP transport shared by every
// venue adapter: a failsafe-go retry+circuit-breaker pipeline and a
// rate-limited pacer for inter-order/inter-batch pauses, grounded on the
// teacher's pkg/http/client.go and internal/exchange/base/adapter.go.
package base

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"botsupervisor/internal/core"
)

// Transport wraps http.Client with a failsafe-go resilience pipeline.
// Network and 5xx failures are retried by the pipeline; 429 rate-limit
// responses and venue-level rejection codes (4xx business errors) are the
// caller's concern and are never retried here (spec.md §7: venue rejections are not retried
// automatically).
type Transport struct {
	httpClient *http.Client
	pipeline   failsafe.Executor[*http.Response]
	pacer      *rate.Limiter
	logger     core.ILogger
}

// NewTransport builds a Transport with a 3-attempt retry policy and a
// circuit breaker that opens after a run of server-side failures,
// matching spec.md §4.1's "network/connection errors: up to 3 attempts".
func NewTransport(timeout time.Duration, logger core.ILogger) *Transport {
	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(2). // 2 retries after the first try: 3 attempts in all
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return &Transport{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pipeline: failsafe.NewExecutor[*http.Response](breaker, retry),
		pacer:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:   logger,
	}
}

// Do executes a signed request through the resilience pipeline and
// returns the raw response body and status code. Signing is the caller's
// responsibility (pass headers already computed).
func (t *Transport) Do(ctx context.Context, method, url string, headers http.Header, body []byte) ([]byte, int, error) {
	resp, err := t.pipeline.WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		return t.httpClient.Do(req)
	})
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// Pace blocks until the inter-order pacer admits the next call, honoring
// spec.md §5's ~500ms inter-order pause within a non-batch loop.
func (t *Transport) Pace(ctx context.Context) error {
	return t.pacer.Wait(ctx)
}
