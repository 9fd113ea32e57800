// Package provider contains one adapter per external payment processor.
// Adapters own every provider-shaped detail: wire formats, auth schemes,
// currency units and status vocabularies. Nothing provider-specific leaks
// past this package.
package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
)

const defaultHTTPTimeout = 30 * time.Second

// readRetries bounds the backoff loop on read operations. Charges and
// refunds are never driven through this path: they get at most one extra
// attempt, and only because the idempotency key makes it safe.
const readRetries = 3

func newHTTPClient(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// doRequest executes one provider HTTP call and converts non-2xx responses
// into ProviderError. Transport failures come back with StatusCode 0 so the
// retry policy can distinguish them from definitive rejections.
func doRequest(client *http.Client, providerName, operation string, req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := client.Do(req)
	telemetry.ProviderLatency.WithLabelValues(providerName, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, &models.ProviderError{Provider: providerName, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &models.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, data, &models.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}

	return resp.StatusCode, data, nil
}

// withReadRetry retries fn with exponential backoff while the failure is a
// transient provider error. Context cancellation stops the loop.
func withReadRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), readRetries), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// withWriteRetry runs fn once and retries exactly once on a transient
// failure. Callers must guarantee the request carries an idempotency key.
func withWriteRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isRetryable(err) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn()
}

func isRetryable(err error) bool {
	var provErr *models.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return false
}
