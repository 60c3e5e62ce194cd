// Package invoke runs one resolved command: credential resolution, argument
// coercion, the underlying call through the capability seam, and the
// retry/timeout policy around it.
package invoke

import (
	"context"
	"io"
	"sync"

	"github.com/joegilkes/speechcli/internal/param"
	"github.com/joegilkes/speechcli/internal/registry"
)

// Call is one resolved invocation handed to the executor. It lives for the
// duration of a single command execution and is never shared.
type Call struct {
	Path   string
	Args   map[string]param.Value
	Shape  registry.ReturnShape
	APIKey string
}

// Executor is the seam to the concrete network client. The pipeline never
// constructs requests itself, so tests swap in a fake returning canned
// results and errors.
type Executor interface {
	Execute(ctx context.Context, call Call) (*RawResult, error)
}

// RawResult is the provider's answer, tagged by the method's declared return
// shape. Exactly one field is populated.
type RawResult struct {
	Text       string
	Binary     io.ReadCloser
	Stream     *Stream
	Structured any
}

// Element is one unit of a streaming result: raw bytes for binary streams,
// a decoded record for structured ones.
type Element struct {
	Bytes []byte
	Value any
}

// Stream connects the producer (the underlying call) to the consumer (the
// output router) through a channel of capacity 1, so the producer never runs
// more than one unconsumed element ahead regardless of payload size.
type Stream struct {
	c      chan Element
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// NewStream returns a stream whose Cancel tears down the producer.
func NewStream(cancel context.CancelFunc) *Stream {
	if cancel == nil {
		cancel = func() {}
	}
	return &Stream{c: make(chan Element, 1), cancel: cancel}
}

// Send delivers one element, blocking until the consumer takes the previous
// one. It returns false once ctx is done, which the producer treats as a
// signal to stop.
func (s *Stream) Send(ctx context.Context, el Element) bool {
	select {
	case s.c <- el:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream; err, if non-nil, is surfaced to the consumer after
// the last element is drained.
func (s *Stream) Close(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.c)
}

// Recv takes the next element; ok is false once the stream is closed.
func (s *Stream) Recv() (Element, bool) {
	el, ok := <-s.c
	return el, ok
}

// Cancel stops the producer. Safe to call more than once.
func (s *Stream) Cancel() { s.cancel() }

// Err reports the terminal producer error, valid after Recv returns ok=false.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
