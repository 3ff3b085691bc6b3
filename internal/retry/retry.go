// Package retry wraps metered external calls with classified,
// exponentially backed-off retries.
package retry

import (
	"context"
	"time"

	"github.com/smendola/conciser/internal/faults"
)

type Policy struct {
	// Attempts is the total call budget, including the first try.
	Attempts int
	// InitialDelay doubles after every failed attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff; zero means uncapped.
	MaxDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 4, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// Do runs fn until it succeeds, fails terminally, or the attempt budget
// runs out. Only transient faults are retried; terminal errors return
// immediately with their classification intact.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}

	var last error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			delay := p.InitialDelay << (attempt - 1)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !faults.IsTransient(last) {
			return last
		}
		if ctx.Err() != nil {
			return last
		}
	}
	return last
}
