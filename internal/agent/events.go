package agent

import "context"

// EventType identifies a streamed event from a specialist.
type EventType string

const (
	// EventRouting marks the moment the query leaves validation and
	// enters specialist selection. It carries no text and produces no
	// wire frame; stream transports use it to advance their state.
	EventRouting EventType = "routing"

	// EventThinkingStart marks the beginning of a reasoning segment.
	EventThinkingStart EventType = "thinking_start"

	// EventThinking carries reasoning text. Reasoning is surfaced as its
	// own event class so transports can render it distinctly; it never
	// becomes part of the final answer.
	EventThinking EventType = "thinking"

	// EventThinkingEnd marks the end of a reasoning segment.
	EventThinkingEnd EventType = "thinking_end"

	// EventContent carries answer text. The concatenation of all content
	// events for one turn is exactly the final answer text.
	EventContent EventType = "content"
)

// Event is one streamed increment of a specialist's answer.
type Event struct {
	Type EventType
	Text string
}

// EmitFunc receives events as they are produced. Implementations must be
// fast or buffer internally; a returned error aborts generation.
type EmitFunc func(ctx context.Context, ev Event) error

// nopEmit discards events. Used when the caller wants only the final answer.
func nopEmit(context.Context, Event) error { return nil }
