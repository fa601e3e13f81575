// Package retrypolicy defines the single retry/backoff policy shared by
// the external call sites that retry (spec §9 open question: "the exact backoff/retry
// policy per external service is absent; implementations should define one
// rather than infer one").
package retrypolicy

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default is the policy used by the llmgateway provider calls, the retrieval
// dense query embedding and the storage upload: exponential backoff, base
// 250ms, factor 2, capped at 10s between attempts, jittered ±20%.
func Default(maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = maxElapsed
	return b
}

// Retryable marks an error as eligible for retry; the call site decides
// what to mark. The current call sites mark every provider or transport
// error retryable without inspecting status codes, so errors such as
// authentication failures are retried until maxElapsed too.
type Retryable struct{ Err error }

func (r *Retryable) Error() string { return r.Err.Error() }
func (r *Retryable) Unwrap() error { return r.Err }

// MarkRetryable wraps err so Do will retry it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// IsRetryable reports whether err was wrapped by MarkRetryable.
func IsRetryable(err error) bool {
	var r *Retryable
	return errors.As(err, &r)
}

// Do runs fn under the default backoff policy, retrying only errors marked
// retryable via MarkRetryable. Any other error (fatal, per spec §7's
// retryable/fatal classification) returns immediately without retrying.
func Do(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	policy := backoff.WithContext(Default(maxElapsed), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		var r *Retryable
		errors.As(err, &r)
		return r.Err
	}, policy)
}
