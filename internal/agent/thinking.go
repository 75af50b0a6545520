package agent

import (
	"context"
	"regexp"
	"strings"
)

// Models occasionally wrap reasoning in <thinking> tags and leak ReAct-style
// scaffolding into their output. The tags arrive split across token chunks
// in arbitrary ways ("<thinking", ">", "...", "</thinking>"), so suppression
// needs a small state machine over the chunk stream rather than a regex over
// the whole response.
var (
	thinkingBlockRE = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)
	thinkingTagRE   = regexp.MustCompile(`</?thinking[^>]*>`)
	actionLineRE    = regexp.MustCompile(`Action: [^\n]*\n?`)
)

// FilterThinking strips reasoning tags and tool-call scaffolding from a
// complete response string. Used on non-streamed model output; streamed
// output is cleaned chunk by chunk so the emitted frames and the final
// answer stay identical.
func FilterThinking(text string) string {
	text = thinkingBlockRE.ReplaceAllString(text, "")
	text = thinkingTagRE.ReplaceAllString(text, "")
	text = actionLineRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// cleanChunk removes any reasoning tags fully contained in a single content
// chunk. No trimming: chunk boundaries carry meaningful whitespace.
func cleanChunk(chunk string) string {
	chunk = thinkingBlockRE.ReplaceAllString(chunk, "")
	chunk = thinkingTagRE.ReplaceAllString(chunk, "")
	chunk = actionLineRE.ReplaceAllString(chunk, "")
	return chunk
}

// streamParser routes model chunks into thinking and content event streams.
//
// Rules, in order, per chunk:
//  1. Whitespace-only chunks are dropped.
//  2. A chunk starting with "<thinking" opens a reasoning segment; the rest
//     of that chunk is tag residue and is dropped.
//  3. A lone ">" inside a reasoning segment before any answer text is the
//     tail of a split opening tag; dropped.
//  4. A "</" inside a reasoning segment closes it. Text before the "</" is
//     reasoning; everything after is tag residue and is dropped.
//  5. Orphan tag fragments outside a reasoning segment are dropped.
//  6. Everything else is reasoning text or answer text depending on state.
//
// The concatenation of emitted content texts is the final answer, exactly.
type streamParser struct {
	emit     EmitFunc
	thinking bool
	started  bool
	content  strings.Builder
}

func newStreamParser(emit EmitFunc) *streamParser {
	if emit == nil {
		emit = nopEmit
	}
	return &streamParser{emit: emit}
}

// feed processes one model chunk, emitting zero or more events.
func (p *streamParser) feed(ctx context.Context, chunk string) error {
	if strings.TrimSpace(chunk) == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(chunk, "<thinking"):
		p.thinking = true
		return p.send(ctx, Event{Type: EventThinkingStart})

	case chunk == ">" && p.thinking && p.content.Len() == 0:
		return nil

	case p.thinking && strings.Contains(chunk, "</"):
		before, _, _ := strings.Cut(chunk, "</")
		if before != "" {
			if err := p.send(ctx, Event{Type: EventThinking, Text: before}); err != nil {
				return err
			}
		}
		p.thinking = false
		return p.send(ctx, Event{Type: EventThinkingEnd})

	case !p.thinking && orphanFragment(chunk):
		return nil

	case p.thinking:
		return p.send(ctx, Event{Type: EventThinking, Text: chunk})

	default:
		clean := cleanChunk(chunk)
		if clean == "" {
			return nil
		}
		p.content.WriteString(clean)
		return p.send(ctx, Event{Type: EventContent, Text: clean})
	}
}

func (p *streamParser) send(ctx context.Context, ev Event) error {
	p.started = true
	return p.emit(ctx, ev)
}

// finish closes a reasoning segment left dangling by a model that never
// streamed its closing tag, so downstream state machines see a balanced span.
func (p *streamParser) finish(ctx context.Context) error {
	if !p.thinking {
		return nil
	}
	p.thinking = false
	return p.send(ctx, Event{Type: EventThinkingEnd})
}

// finalText returns the accumulated answer text.
func (p *streamParser) finalText() string {
	return p.content.String()
}

// emitted reports whether any event has been sent to the caller. Once true,
// the generation cannot be transparently retried.
func (p *streamParser) emitted() bool {
	return p.started
}

// orphanFragment reports whether chunk is a stray piece of a thinking tag
// that leaked outside a reasoning segment.
func orphanFragment(chunk string) bool {
	switch chunk {
	case "</thinking", "thinking", ">", ">\n":
		return true
	}
	return false
}
