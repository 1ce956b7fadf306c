package progress

import (
	"github.com/onnwee/officer-sync/report"
)

// Event statuses as seen by clients.
const (
	StatusProgress = "progress"
	StatusResult   = "result"
	StatusError    = "error"
	StatusDone     = "done"
)

// Event is one message on the stream. Only the fields relevant to Status are set.
type Event struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Progress *float64       `json:"progress,omitempty"`
	Payload  *ResultPayload `json:"payload,omitempty"`
}

// ResultPayload carries one endpoint's aggregate.
type ResultPayload struct {
	Name string        `json:"name"`
	Data report.Result `json:"data"`
}

// Progress builds a progress note.
func Progress(msg string, percent float64) Event {
	return Event{Status: StatusProgress, Message: msg, Progress: &percent}
}

// Result builds the per-endpoint result event.
func Result(name string, data report.Result) Event {
	if data == nil {
		data = report.Result{}
	}
	return Event{Status: StatusResult, Payload: &ResultPayload{Name: name, Data: data}}
}

// Error builds a terminal error event.
func Error(msg string) Event {
	return Event{Status: StatusError, Message: msg}
}

// Done builds the final event; it always reports 100.
func Done(msg string) Event {
	p := 100.0
	return Event{Status: StatusDone, Message: msg, Progress: &p}
}

// Percent returns the reported percentage or -1 when the event carries none.
func (e Event) Percent() float64 {
	if e.Progress == nil {
		return -1
	}
	return *e.Progress
}

// Emitter receives events in order. A non-nil error means the consumer is gone.
type Emitter interface {
	Emit(Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) error

// Emit calls f(e).
func (f EmitterFunc) Emit(e Event) error { return f(e) }
