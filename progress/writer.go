package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

type flusher interface{ Flush() }

// StreamWriter frames events as server-sent events ("data: <json>\n\n") and flushes
// after each one when the underlying writer supports it.
type StreamWriter struct {
	mu sync.Mutex
	w  io.Writer
	f  flusher
}

// NewStreamWriter wraps w. If w implements Flush() it is flushed after every event.
func NewStreamWriter(w io.Writer) *StreamWriter {
	sw := &StreamWriter{w: w}
	if f, ok := w.(flusher); ok {
		sw.f = f
	}
	return sw
}

// Emit writes one event.
func (s *StreamWriter) Emit(e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	if s.f != nil {
		s.f.Flush()
	}
	return nil
}

// LineWriter writes one JSON event per line.
type LineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{enc: json.NewEncoder(w)}
}

// Emit writes one event followed by a newline.
func (l *LineWriter) Emit(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(e)
}
