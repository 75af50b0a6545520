// Package stream frames one chat turn as a newline-delimited JSON stream.
//
// A Dispatcher owns the wire protocol for a single turn:
//
//	INIT -> ROUTING -> { THINKING | GENERATING }* -> COMPLETE | ERROR
//
// Routing advances the state without writing a frame. COMPLETE and ERROR are
// terminal: exactly one terminal frame is written per stream, and any write
// attempted afterwards fails with ErrTerminal. Frames go out in the exact
// order events arrive; the dispatcher never buffers or reorders.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/iecho-project/iecho/internal/agent"
	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/log"
)

// ContentType is the media type of the framed response body.
const ContentType = "application/x-ndjson"

// TimeoutMessage is the error frame text for turns that exceed the
// generation budget.
const TimeoutMessage = "Request timeout. Please try again."

// InternalErrorMessage is the error frame text for upstream failures whose
// detail must not reach the client.
const InternalErrorMessage = "An error occurred while processing your request. Please try again."

var (
	// ErrTerminal rejects writes after the terminal frame.
	ErrTerminal = errors.New("stream already terminated")

	// ErrBadTransition rejects events the protocol cannot accept in the
	// current state, e.g. thinking text outside a thinking span.
	ErrBadTransition = errors.New("invalid stream transition")
)

// State is the protocol position of one stream.
type State int

const (
	StateInit State = iota
	StateRouting
	StateThinking
	StateGenerating
	StateComplete
	StateError
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRouting:
		return "routing"
	case StateThinking:
		return "thinking"
	case StateGenerating:
		return "generating"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// frame is one typed NDJSON line. The terminal aggregate is a bare object
// and does not use this shape.
type frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// Dispatcher serializes one turn's events onto a writer. It is not safe for
// concurrent use: all events of a turn are produced by its request
// goroutine.
type Dispatcher struct {
	w       io.Writer
	flusher http.Flusher
	logger  log.Logger

	state State
	// resume is where a thinking span returns to: ROUTING before any
	// content, GENERATING after.
	resume State
}

// New builds a Dispatcher over w. flusher may be nil when the writer does
// not deliver incrementally (buffered tests); logger may be nil.
func New(w io.Writer, flusher http.Flusher, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{w: w, flusher: flusher, logger: logger}
}

// State reports the protocol position reached so far.
func (d *Dispatcher) State() State { return d.state }

// Emit consumes one agent event: it validates the transition, writes the
// corresponding frame, and flushes. Emit satisfies agent.EmitFunc.
func (d *Dispatcher) Emit(ctx context.Context, ev agent.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.terminal() {
		return ErrTerminal
	}

	switch ev.Type {
	case agent.EventRouting:
		if d.state != StateInit {
			return d.reject(ev)
		}
		d.state = StateRouting
		return nil

	case agent.EventThinkingStart:
		if d.state != StateRouting && d.state != StateGenerating {
			return d.reject(ev)
		}
		d.resume = d.state
		d.state = StateThinking
		return d.write(frame{Type: "thinking_start"})

	case agent.EventThinking:
		if d.state != StateThinking {
			return d.reject(ev)
		}
		return d.write(frame{Type: "thinking", Data: ev.Text})

	case agent.EventThinkingEnd:
		if d.state != StateThinking {
			return d.reject(ev)
		}
		d.state = d.resume
		return d.write(frame{Type: "thinking_end"})

	case agent.EventContent:
		if d.state != StateRouting && d.state != StateGenerating {
			return d.reject(ev)
		}
		d.state = StateGenerating
		return d.write(frame{Type: "content", Data: ev.Text})

	default:
		return d.reject(ev)
	}
}

// Complete writes the terminal aggregate: the same object the buffered
// endpoint returns, as one bare JSON line. Completing inside a thinking span
// is a protocol violation; specialists close their spans before returning.
func (d *Dispatcher) Complete(resp *engine.Response) error {
	if d.terminal() {
		return ErrTerminal
	}
	if d.state == StateThinking {
		return fmt.Errorf("%w: complete inside a thinking span", ErrBadTransition)
	}
	if err := d.writeJSON(resp); err != nil {
		return err
	}
	d.state = StateComplete
	return nil
}

// Fail writes the terminal error frame. Valid from any non-terminal state,
// including before routing: validation failures are reported in-stream.
func (d *Dispatcher) Fail(message string) error {
	if d.terminal() {
		return ErrTerminal
	}
	if err := d.write(frame{Type: "error", Data: message}); err != nil {
		return err
	}
	d.state = StateError
	return nil
}

func (d *Dispatcher) terminal() bool {
	return d.state == StateComplete || d.state == StateError
}

func (d *Dispatcher) reject(ev agent.Event) error {
	d.logger.Warn("stream event rejected",
		"state", d.state.String(),
		"event", string(ev.Type),
	)
	return fmt.Errorf("%w: %s event in state %s", ErrBadTransition, ev.Type, d.state)
}

func (d *Dispatcher) write(f frame) error {
	return d.writeJSON(f)
}

// writeJSON marshals v, writes it as one line, and flushes. A failed write
// means the client is gone; the stream is marked terminal so no further
// frame is attempted.
func (d *Dispatcher) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	b = append(b, '\n')
	if _, err := d.w.Write(b); err != nil {
		d.state = StateError
		return fmt.Errorf("writing frame: %w", err)
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
	return nil
}
