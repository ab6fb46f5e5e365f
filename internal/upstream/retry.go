package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Retrying re-issues a query on a fresh proxy when the previous attempt was
// refused with 403 or never reached the catalog. Any other failure, and
// ErrPoolEmpty, ends the call at once. With maxAttempts 1 it is a pass-through.
type Retrying struct {
	next        Executor
	maxAttempts int
	interval    time.Duration
	logger      *log.Entry
}

func NewRetrying(next Executor, maxAttempts int, interval time.Duration, logger *log.Entry) *Retrying {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrying{next: next, maxAttempts: maxAttempts, interval: interval, logger: logger}
}

func (r *Retrying) Execute(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	if r.maxAttempts == 1 {
		return r.next.Execute(ctx, query, variables)
	}

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, err := r.next.Execute(ctx, query, variables)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.interval), uint64(r.maxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		r.logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("Retrying catalog query on a fresh proxy")
	}
	return backoff.RetryNotifyWithData[[]byte](op, policy, notify)
}

func retryable(err error) bool {
	if IsForbidden(err) {
		return true
	}
	var tErr *TransportError
	return errors.As(err, &tErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
