package syncjob

import (
	"context"
	"log/slog"

	"github.com/onnwee/officer-sync/telemetry"
)

// Slots limits how many jobs talk to Discord at the same time across all requests.
type Slots struct {
	sem chan struct{}
}

// NewSlots returns a limiter admitting n concurrent jobs (at least one).
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	slog.Info("sync concurrency limit initialized", slog.Int("max_concurrent", n))
	return &Slots{sem: make(chan struct{}, n)}
}

// TryAcquire takes a slot without blocking.
func (s *Slots) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		telemetry.SetActiveJobs(len(s.sem))
		return true
	default:
		return false
	}
}

// Acquire blocks until a slot is available or ctx is done.
// Returns true if slot acquired, false if context canceled.
func (s *Slots) Acquire(ctx context.Context) bool {
	select {
	case s.sem <- struct{}{}:
		telemetry.SetActiveJobs(len(s.sem))
		return true
	case <-ctx.Done():
		return false
	}
}

// Release gives a slot back.
func (s *Slots) Release() {
	select {
	case <-s.sem:
		telemetry.SetActiveJobs(len(s.sem))
	default:
		// Should not happen unless mismatched acquire/release
		slog.Warn("sync slot release called without corresponding acquire")
	}
}

// Active returns the number of held slots.
func (s *Slots) Active() int { return len(s.sem) }

// Max returns the configured limit.
func (s *Slots) Max() int { return cap(s.sem) }
