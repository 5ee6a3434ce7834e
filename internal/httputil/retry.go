// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the search backends and
// the content extractor.
package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryBaseDelay is the first backoff after an HTTP 429. Tests override this
// to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// RetryMaxDelay caps a single backoff wait.
var RetryMaxDelay = 8 * time.Second

const defaultMaxRetries = 2

var errRateLimited = errors.New("rate limited")

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) with exponential backoff starting at RetryBaseDelay.
//
// Requests with a body must set GetBody (http.NewRequest does for in-memory
// readers) so the body can be replayed. When maxRetries is 0 the default (2)
// is used. Each 429 body is drained and
// closed before waiting. Transport errors are returned immediately. If the
// context ends during a wait the function returns ctx.Err(). After exhausting
// retries the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var resp *http.Response
	retries := 0
	err := retry.Do(
		func() error {
			attempt := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return retry.Unrecoverable(err)
				}
				attempt.Body = body
			}
			r, err := client.Do(attempt)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if r.StatusCode != http.StatusTooManyRequests || retries >= maxRetries {
				resp = r
				return nil
			}
			retries++
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return errRateLimited
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(RetryBaseDelay),
		retry.MaxDelay(RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ReadLimited reads at most limit bytes of r.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
