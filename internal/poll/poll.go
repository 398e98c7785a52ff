// SPDX-License-Identifier: MIT

// Package poll waits for a segment that is being produced asynchronously.
//
// A caller that runs out of its wait budget gets ErrNotReady instead of a
// generic failure, so the HTTP layer can answer 503 with Retry-After and the
// client can come back later.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/aleczinn/loki-sub000/internal/metrics"
)

// ErrNotReady reports that the segment is still being produced.
var ErrNotReady = errors.New("segment not ready")

// NotReadyError is the concrete ErrNotReady with retry guidance.
type NotReadyError struct {
	Attempts   int
	Waited     time.Duration
	RetryAfter time.Duration
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s after %d attempts (%s)", ErrNotReady, e.Attempts, e.Waited.Round(time.Millisecond))
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// Options bound one wait.
type Options struct {
	Interval    time.Duration // between fetches
	MaxAttempts int           // 0 means bounded by Timeout only
	Timeout     time.Duration // total budget
	RetryAfter  time.Duration // advertised to the client on ErrNotReady
}

const (
	DefaultInterval   = 250 * time.Millisecond
	DefaultTimeout    = 20 * time.Second
	DefaultRetryAfter = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = DefaultRetryAfter
	}
	return o
}

// FetchFunc looks the segment up once. A non-nil error is terminal.
type FetchFunc func(ctx context.Context) (path string, ready bool, err error)

// Segment calls fetch until it reports ready, fails, or the budget runs out.
// Cancellation of ctx itself returns ctx.Err(); an exhausted budget returns
// a *NotReadyError.
func Segment(ctx context.Context, fetch FetchFunc, opts Options) (string, error) {
	opts = opts.withDefaults()
	start := time.Now()
	budget, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	attempts := 0
	for {
		if err := limiter.Wait(budget); err != nil {
			break
		}
		attempts++
		path, ready, err := fetch(budget)
		switch {
		case err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && budget.Err() != nil:
			// The fetch itself ran out of budget.
		case err != nil:
			metrics.IncPollOutcome("error")
			return "", err
		case ready:
			metrics.IncPollOutcome("ready")
			return path, nil
		}
		if opts.MaxAttempts > 0 && attempts >= opts.MaxAttempts {
			break
		}
		if budget.Err() != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		metrics.IncPollOutcome("canceled")
		return "", err
	}
	metrics.IncPollOutcome("not_ready")
	return "", &NotReadyError{Attempts: attempts, Waited: time.Since(start), RetryAfter: opts.RetryAfter}
}

// RetryAfterSeconds is the Retry-After header value for err, or 0 when err
// is not an ErrNotReady.
func RetryAfterSeconds(err error) int {
	var nr *NotReadyError
	if !errors.As(err, &nr) {
		return 0
	}
	s := int((nr.RetryAfter + time.Second - 1) / time.Second)
	return max(s, 1)
}
