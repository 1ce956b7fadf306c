package progress

import (
	"errors"
	"sync"
)

// ErrClosed is returned once a terminal event has been sent.
var ErrClosed = errors.New("progress stream closed")

// Reporter sits in front of an Emitter for the lifetime of one job. It keeps reported
// percentages non-decreasing and refuses events after done or error.
type Reporter struct {
	mu     sync.Mutex
	out    Emitter
	last   float64
	closed bool
	err    error
}

// NewReporter wraps out.
func NewReporter(out Emitter) *Reporter { return &Reporter{out: out} }

// Emit forwards e after clamping its percentage.
func (r *Reporter) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.closed {
		return ErrClosed
	}
	if e.Progress != nil {
		p := *e.Progress
		if p < r.last {
			p = r.last
		}
		if p > 100 {
			p = 100
		}
		r.last = p
		e.Progress = &p
	}
	if e.Status == StatusDone || e.Status == StatusError {
		r.closed = true
	}
	if err := r.out.Emit(e); err != nil {
		r.err = err
		return err
	}
	return nil
}

// Progress emits a progress note.
func (r *Reporter) Progress(msg string, percent float64) error {
	return r.Emit(Progress(msg, percent))
}

// Last returns the highest percentage reported so far.
func (r *Reporter) Last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Closed reports whether a terminal event has been emitted.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Err returns the first write error from the underlying emitter.
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
