// Package retry provides a bounded exponential-backoff wrapper for fallible
// operations. Only errors marked transient are retried; everything else is
// returned to the caller immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrTransient marks failures that are worth retrying (connectivity,
// transport timeouts). Adapters wrap such failures via Transient.
var ErrTransient = errors.New("transient failure")

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Policy describes a bounded exponential backoff schedule. The zero value is
// not usable; construct with New.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64

	sleep func(time.Duration)
}

func New(maxAttempts int, delay time.Duration, backoff float64) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Backoff:     backoff,
		sleep:       time.Sleep,
	}
}

// Do invokes op until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. Between attempts it sleeps
// Delay * Backoff^(attempt-1), logging the cause and the next delay. Each
// call starts its own attempt counter; Do keeps no state between calls.
//
// The backoff sleeps are plain blocking sleeps: shutdown is cooperative and
// observed at cycle boundaries, never inside an in-flight operation.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op func(context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.Delay
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		logger.WarnContext(ctx, "operation failed, retrying",
			"error", err, "attempt", attempt, "next_delay", delay)
		sleep(delay)
		delay = time.Duration(float64(delay) * p.Backoff)
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", p.MaxAttempts, err)
}
