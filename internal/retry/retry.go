// Package retry runs fallible loads under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds the attempts of a single operation.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retryable classifies errors. nil retries everything that is not
	// wrapped with Permanent.
	Retryable func(error) bool

	// Notify is called before each backoff sleep.
	Notify func(err error, next time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

// Do calls op until it succeeds, returns a non-retryable error, the tries
// are exhausted, or ctx is done.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxTries == 0 {
		p.MaxTries = DefaultPolicy().MaxTries
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(p.Notify))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}
