package stream

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iecho-project/iecho/internal/agent"
	"github.com/iecho-project/iecho/internal/citation"
	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/testutil"
)

func emitAll(t *testing.T, d *Dispatcher, events ...agent.Event) {
	t.Helper()
	for _, ev := range events {
		if err := d.Emit(context.Background(), ev); err != nil {
			t.Fatalf("Emit(%v) error = %v", ev.Type, err)
		}
	}
}

func sampleResponse() *engine.Response {
	return &engine.Response{
		Text:      "The answer.",
		SessionID: "sess-1",
		Citations: []citation.Citation{
			{Title: "tb_guide", Source: "s3://kb/processed/tb_guide.pdf", Confidence: 0.9},
		},
		UserID:            "user-1",
		ResponseID:        "resp-1",
		FollowUpQuestions: []string{"One?", "Two?", "Three?"},
		CreatedAt:         time.Now().UTC(),
	}
}

func TestDispatcherStreamsTurn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())

	emitAll(t, d,
		agent.Event{Type: agent.EventRouting},
		agent.Event{Type: agent.EventThinkingStart},
		agent.Event{Type: agent.EventThinking, Text: "checking guidelines"},
		agent.Event{Type: agent.EventThinkingEnd},
		agent.Event{Type: agent.EventContent, Text: "The "},
		agent.Event{Type: agent.EventContent, Text: "answer."},
	)
	if err := d.Complete(sampleResponse()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	frames := testutil.ParseNDJSON(t, buf.String())
	wantTypes := []string{"thinking_start", "thinking", "thinking_end", "content", "content", ""}
	if len(frames) != len(wantTypes) {
		t.Fatalf("frames = %d, want %d:\n%s", len(frames), len(wantTypes), buf.String())
	}
	for i, want := range wantTypes {
		if frames[i].Type != want {
			t.Errorf("frames[%d].Type = %q, want %q", i, frames[i].Type, want)
		}
	}

	if got := testutil.ConcatData(frames, "content"); got != "The answer." {
		t.Errorf("concatenated content = %q, want %q", got, "The answer.")
	}
	if got := testutil.FindFrame(frames, "thinking").Data; got != "checking guidelines" {
		t.Errorf("thinking data = %q", got)
	}

	final := frames[len(frames)-1].Raw
	if final["response"] != "The answer." {
		t.Errorf("final response = %v", final["response"])
	}
	if final["responseId"] != "resp-1" || final["sessionId"] != "sess-1" || final["userId"] != "user-1" {
		t.Errorf("final ids = %v", final)
	}
	if _, hasType := final["type"]; hasType {
		t.Error("final aggregate must be a bare object without a type field")
	}
	cits, ok := final["citations"].([]any)
	if !ok || len(cits) != 1 {
		t.Fatalf("final citations = %v", final["citations"])
	}
	first, _ := cits[0].(map[string]any)
	if first["title"] != "tb_guide" || first["source"] != "s3://kb/processed/tb_guide.pdf" {
		t.Errorf("final citation = %v", first)
	}
	if qs, ok := final["followUpQuestions"].([]any); !ok || len(qs) != 3 {
		t.Errorf("final followUpQuestions = %v", final["followUpQuestions"])
	}

	if d.State() != StateComplete {
		t.Errorf("State() = %v, want complete", d.State())
	}
}

func TestDispatcherRoutingWritesNoFrame(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())

	emitAll(t, d, agent.Event{Type: agent.EventRouting})

	if buf.Len() != 0 {
		t.Errorf("routing wrote %q, want no frame", buf.String())
	}
	if d.State() != StateRouting {
		t.Errorf("State() = %v, want routing", d.State())
	}
}

func TestDispatcherRejectsOutOfOrderEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup []agent.Event
		event agent.Event
	}{
		{
			name:  "content before routing",
			event: agent.Event{Type: agent.EventContent, Text: "x"},
		},
		{
			name:  "thinking text outside a span",
			setup: []agent.Event{{Type: agent.EventRouting}},
			event: agent.Event{Type: agent.EventThinking, Text: "x"},
		},
		{
			name:  "thinking end outside a span",
			setup: []agent.Event{{Type: agent.EventRouting}},
			event: agent.Event{Type: agent.EventThinkingEnd},
		},
		{
			name:  "duplicate routing",
			setup: []agent.Event{{Type: agent.EventRouting}},
			event: agent.Event{Type: agent.EventRouting},
		},
		{
			name: "content inside a thinking span",
			setup: []agent.Event{
				{Type: agent.EventRouting},
				{Type: agent.EventThinkingStart},
			},
			event: agent.Event{Type: agent.EventContent, Text: "x"},
		},
		{
			name:  "unknown event type",
			setup: []agent.Event{{Type: agent.EventRouting}},
			event: agent.Event{Type: agent.EventType("bogus")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			d := New(&buf, nil, testutil.DiscardLogger())
			emitAll(t, d, tt.setup...)
			before := buf.Len()

			err := d.Emit(context.Background(), tt.event)
			if !errors.Is(err, ErrBadTransition) {
				t.Errorf("Emit() error = %v, want ErrBadTransition", err)
			}
			if buf.Len() != before {
				t.Errorf("rejected event wrote %q", buf.String()[before:])
			}
		})
	}
}

func TestDispatcherLateThinkingResumesGenerating(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())

	emitAll(t, d,
		agent.Event{Type: agent.EventRouting},
		agent.Event{Type: agent.EventContent, Text: "Partial. "},
		agent.Event{Type: agent.EventThinkingStart},
		agent.Event{Type: agent.EventThinking, Text: "re-checking"},
		agent.Event{Type: agent.EventThinkingEnd},
	)
	if d.State() != StateGenerating {
		t.Errorf("State() after late thinking span = %v, want generating", d.State())
	}
	emitAll(t, d, agent.Event{Type: agent.EventContent, Text: "Rest."})
	if err := d.Complete(sampleResponse()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	frames := testutil.ParseNDJSON(t, buf.String())
	wantTypes := []string{"content", "thinking_start", "thinking", "thinking_end", "content", ""}
	for i, want := range wantTypes {
		if frames[i].Type != want {
			t.Errorf("frames[%d].Type = %q, want %q", i, frames[i].Type, want)
		}
	}
}

func TestDispatcherSingleTerminalFrame(t *testing.T) {
	t.Parallel()

	t.Run("after complete", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		d := New(&buf, nil, testutil.DiscardLogger())
		emitAll(t, d,
			agent.Event{Type: agent.EventRouting},
			agent.Event{Type: agent.EventContent, Text: "done"},
		)
		if err := d.Complete(sampleResponse()); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		before := buf.Len()

		if err := d.Emit(context.Background(), agent.Event{Type: agent.EventContent, Text: "late"}); !errors.Is(err, ErrTerminal) {
			t.Errorf("Emit() after complete error = %v, want ErrTerminal", err)
		}
		if err := d.Fail("late failure"); !errors.Is(err, ErrTerminal) {
			t.Errorf("Fail() after complete error = %v, want ErrTerminal", err)
		}
		if err := d.Complete(sampleResponse()); !errors.Is(err, ErrTerminal) {
			t.Errorf("second Complete() error = %v, want ErrTerminal", err)
		}
		if buf.Len() != before {
			t.Errorf("terminal stream grew: %q", buf.String()[before:])
		}
	})

	t.Run("after fail", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		d := New(&buf, nil, testutil.DiscardLogger())
		emitAll(t, d, agent.Event{Type: agent.EventRouting})
		if err := d.Fail(TimeoutMessage); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}

		if err := d.Emit(context.Background(), agent.Event{Type: agent.EventContent, Text: "late"}); !errors.Is(err, ErrTerminal) {
			t.Errorf("Emit() after fail error = %v, want ErrTerminal", err)
		}
		if err := d.Complete(sampleResponse()); !errors.Is(err, ErrTerminal) {
			t.Errorf("Complete() after fail error = %v, want ErrTerminal", err)
		}

		frames := testutil.ParseNDJSON(t, buf.String())
		if len(frames) != 1 || frames[0].Type != "error" || frames[0].Data != TimeoutMessage {
			t.Errorf("frames = %+v, want a single timeout error frame", frames)
		}
	})
}

func TestDispatcherFailBeforeRouting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())

	// Validation failures are reported in-stream before any routing event.
	if err := d.Fail("Query cannot be empty"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	frames := testutil.ParseNDJSON(t, buf.String())
	if len(frames) != 1 || frames[0].Type != "error" || frames[0].Data != "Query cannot be empty" {
		t.Errorf("frames = %+v, want a single error frame", frames)
	}
	if d.State() != StateError {
		t.Errorf("State() = %v, want error", d.State())
	}
}

func TestDispatcherCompleteInsideThinkingRejected(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())
	emitAll(t, d,
		agent.Event{Type: agent.EventRouting},
		agent.Event{Type: agent.EventThinkingStart},
	)

	if err := d.Complete(sampleResponse()); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("Complete() inside thinking error = %v, want ErrBadTransition", err)
	}

	// Closing the span makes completion legal again.
	emitAll(t, d, agent.Event{Type: agent.EventThinkingEnd})
	if err := d.Complete(sampleResponse()); err != nil {
		t.Errorf("Complete() after closing span error = %v", err)
	}
}

// failWriter errors on every write.
type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDispatcherWriteFailureTerminatesStream(t *testing.T) {
	t.Parallel()

	d := New(failWriter{}, nil, testutil.DiscardLogger())
	emitAll(t, d, agent.Event{Type: agent.EventRouting})

	err := d.Emit(context.Background(), agent.Event{Type: agent.EventContent, Text: "x"})
	if err == nil {
		t.Fatal("Emit() error = nil, want write failure")
	}
	if d.State() != StateError {
		t.Errorf("State() = %v, want error after write failure", d.State())
	}
	if err := d.Emit(context.Background(), agent.Event{Type: agent.EventContent, Text: "y"}); !errors.Is(err, ErrTerminal) {
		t.Errorf("Emit() after write failure error = %v, want ErrTerminal", err)
	}
}

func TestDispatcherCanceledContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := New(&buf, nil, testutil.DiscardLogger())
	emitAll(t, d, agent.Event{Type: agent.EventRouting})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Emit(ctx, agent.Event{Type: agent.EventContent, Text: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Emit() error = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Errorf("canceled emit wrote %q", buf.String())
	}
	if d.State() != StateRouting {
		t.Errorf("State() = %v, want routing unchanged", d.State())
	}
}

func TestDispatcherFlushesEachFrame(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	d := New(rec, rec, testutil.DiscardLogger())

	emitAll(t, d,
		agent.Event{Type: agent.EventRouting},
		agent.Event{Type: agent.EventContent, Text: "chunk"},
	)

	if !rec.Flushed {
		t.Error("content frame was not flushed")
	}
	frames := testutil.ParseNDJSON(t, rec.Body.String())
	if len(frames) != 1 || frames[0].Type != "content" || frames[0].Data != "chunk" {
		t.Errorf("frames = %+v", frames)
	}
}
