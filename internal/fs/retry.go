package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Backoff retries transient failures, doubling the wait after each attempt.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Clock    clock.Clock
}

func DefaultBackoff() Backoff {
	return Backoff{Attempts: 5, Base: 100 * time.Millisecond, Clock: clock.New()}
}

// Do runs fn until it succeeds, fails permanently, runs out of attempts or
// ctx ends.
func (b Backoff) Do(ctx context.Context, op string, fn func() error) error {
	attempts := max(b.Attempts, 1)
	clk := b.Clock
	if clk == nil {
		clk = clock.New()
	}

	wait := b.Base
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := clk.Timer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			wait *= 2
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err = fn(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, err)
}
