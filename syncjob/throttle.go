package syncjob

import (
	"context"
	"time"
)

const (
	filterTarget    = time.Second
	filterThreshold = 200
	maxItemDelay    = 50 * time.Millisecond
)

// ItemDelay is the pause after each filtered message so that filtering a channel
// takes about a second on the client's progress bar. Small sets are capped at 50ms per item.
func ItemDelay(total int) time.Duration {
	if total <= 0 {
		return 0
	}
	d := filterTarget / time.Duration(total)
	if total < filterThreshold && d > maxItemDelay {
		d = maxItemDelay
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// throttledEach calls fn for every index in [0,total), pausing delay after each call.
// It stops at the first error from fn or when ctx is done.
func throttledEach(ctx context.Context, total int, delay time.Duration, fn func(j int) error) error {
	for j := 0; j < total; j++ {
		if err := fn(j); err != nil {
			return err
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}
