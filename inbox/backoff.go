package inbox

import (
	"context"
	"time"
)

// Backoff is an exponential delay schedule. The delay starts at Initial,
// doubles after every retry and retrying stops once it reaches Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
}

func NewBackoff(unit time.Duration, maxUnits int) Backoff {
	return Backoff{Initial: unit, Max: unit * time.Duration(maxUnits), Sleep: sleepContext}
}

// Next reports whether another retry is allowed after waiting delay.
func (b Backoff) Next(delay time.Duration) bool {
	return delay < b.Max
}

func (b Backoff) wait(ctx context.Context, delay time.Duration) error {
	if b.Sleep == nil {
		return sleepContext(ctx, delay)
	}
	return b.Sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
