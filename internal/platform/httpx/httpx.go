// Package httpx holds the small set of HTTP retry/backoff helpers shared
// by the outbound RPC clients (internal/clients/enrichment, .../imagesearch,
// .../commerce). Grounded on the teacher's internal/pkg/httpx package.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPStatusCoder is implemented by error types that carry the HTTP status
// code of the response that produced them.
type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError wraps a non-2xx HTTP response as an error that satisfies
// HTTPStatusCoder, so IsRetryableError can classify it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Code) + ": " + e.Body
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// Do performs req with up to maxAttempts tries, sleeping JitterSleep(backoff)
// between attempts and doubling backoff each time, retrying only on
// IsRetryableError/IsRetryableHTTPStatus. The caller owns closing the
// returned response body.
func Do(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error), maxAttempts int, backoff time.Duration) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(JitterSleep(backoff)):
			}
			backoff *= 2
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if IsRetryableError(err) {
				continue
			}
			return nil, err
		}
		if resp.StatusCode >= 300 {
			statusErr := &StatusError{Code: resp.StatusCode}
			if IsRetryableHTTPStatus(resp.StatusCode) && attempt < maxAttempts-1 {
				_ = resp.Body.Close()
				lastErr = statusErr
				continue
			}
			return resp, nil
		}
		return resp, nil
	}
	return nil, lastErr
}
