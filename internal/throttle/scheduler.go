// Package throttle serializes chat-completion calls and retries them on
// transient throttling responses.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"healthbridge/internal/observability"
)

const (
	DefaultMinGap       = 1000 * time.Millisecond
	DefaultMaxRetries   = 5
	DefaultInitialDelay = 2000 * time.Millisecond
)

// ErrQuotaExhausted marks a terminal 429: the upstream quota is spent and
// retrying cannot succeed.
var ErrQuotaExhausted = errors.New("throttle: upstream quota exhausted")

// Consumer-side views of the provider error, resolved via errors.As.
type httpStatusCoder interface {
	HTTPStatusCode() int
}

type quotaExhauster interface {
	IsQuotaExhausted() bool
}

type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// Scheduler funnels operations through a single slot with a minimum gap
// between dispatches, so calls to the chat-completion provider never
// overlap. Each Run holds the slot across its retries.
type Scheduler struct {
	mu           sync.Mutex
	minGap       time.Duration
	maxRetries   int
	initialDelay time.Duration
	lastDispatch time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler. Non-positive arguments fall back to the
// defaults.
func NewScheduler(minGap time.Duration, maxRetries int, initialDelay time.Duration) *Scheduler {
	if minGap <= 0 {
		minGap = DefaultMinGap
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &Scheduler{
		minGap:       minGap,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Run executes op through the single slot, retrying on transient 429s with
// an exponentially doubling delay. A server-supplied Retry-After hint
// overrides the wait for that attempt. Quota-exhaustion 429s and all
// non-429 errors propagate immediately.
func (s *Scheduler) Run(ctx context.Context, op func(context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bo := s.newBackOff()
	retriesLeft := s.maxRetries

	for {
		if err := s.waitForSlot(ctx); err != nil {
			return "", err
		}

		out, err := op(ctx)
		s.lastDispatch = s.now()
		if err == nil {
			return out, nil
		}

		status, ok := statusCode(err)
		if !ok || status != http.StatusTooManyRequests {
			return "", err
		}
		if quotaExhausted(err) {
			return "", fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
		}
		if retriesLeft == 0 {
			return "", err
		}
		retriesLeft--
		observability.UpstreamRetriesTotal.Inc()

		// Advance the doubling schedule even when the server names its own
		// delay, so the next fallback wait is still longer.
		delay := bo.NextBackOff()
		if hint := retryAfterHint(err); hint > 0 {
			delay = hint
		}
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return "", sleepErr
		}
	}
}

func (s *Scheduler) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0 // the retry budget bounds the loop, not elapsed time
	bo.Reset()
	return bo
}

// waitForSlot enforces the minimum spacing between consecutive dispatches.
func (s *Scheduler) waitForSlot(ctx context.Context) error {
	if s.lastDispatch.IsZero() {
		return nil
	}
	gap := s.minGap - s.now().Sub(s.lastDispatch)
	if gap <= 0 {
		return nil
	}
	return s.sleep(ctx, gap)
}

func statusCode(err error) (int, bool) {
	var coder httpStatusCoder
	if !errors.As(err, &coder) {
		return 0, false
	}
	return coder.HTTPStatusCode(), true
}

func quotaExhausted(err error) bool {
	var q quotaExhauster
	return errors.As(err, &q) && q.IsQuotaExhausted()
}

func retryAfterHint(err error) time.Duration {
	var h retryAfterHinter
	if !errors.As(err, &h) {
		return 0
	}
	return h.RetryAfterHint()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
