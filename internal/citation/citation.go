// Package citation collects and deduplicates the source references surfaced
// while answering a single turn.
//
// Every retrieval call made by a specialist feeds its references into one
// Aggregator; the engine finalizes the set once the turn completes. Citations
// are strictly per-turn: a new Aggregator is created for each query and
// discarded with it.
package citation

import (
	"strings"
)

// MaxExcerptRunes bounds the stored excerpt length. Retrieval backends may
// return whole document chunks; clients only render a snippet.
const MaxExcerptRunes = 500

// Citation is one source reference attached to an answer.
type Citation struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Aggregator accumulates citations for one turn, collapsing duplicate
// sources. It is not safe for concurrent use; each turn owns its own
// Aggregator and feeds it from the request goroutine only.
type Aggregator struct {
	order []string            // first-seen source order
	seen  map[string]Citation // source -> best instance so far
}

// NewAggregator returns an empty per-turn aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]Citation)}
}

// Add records a citation. Duplicate sources keep the higher-confidence
// instance but retain the first-seen position; a zero confidence counts as
// unscored and never displaces a scored instance. Citations without a source
// cannot be attributed and are dropped.
func (a *Aggregator) Add(c Citation) {
	if c.Source == "" {
		return
	}
	if c.Title == "" {
		c.Title = TitleFromSource(c.Source)
	}
	c.Excerpt = truncateExcerpt(c.Excerpt)

	existing, ok := a.seen[c.Source]
	if !ok {
		a.order = append(a.order, c.Source)
		a.seen[c.Source] = c
		return
	}
	if c.Confidence > existing.Confidence {
		a.seen[c.Source] = c
	}
}

// Len reports the number of distinct sources collected so far.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Finalize returns the deduplicated citations in first-seen order. The
// returned slice is a copy; further Add calls do not affect it.
func (a *Aggregator) Finalize() []Citation {
	out := make([]Citation, 0, len(a.order))
	for _, src := range a.order {
		out = append(out, a.seen[src])
	}
	return out
}

// FinalizeByConfidence returns the deduplicated citations ordered by
// descending confidence. First-seen order breaks ties, so the result is
// stable for equal scores. Callers that want the default presentation order
// use Finalize.
func (a *Aggregator) FinalizeByConfidence() []Citation {
	out := a.Finalize()
	// Insertion sort keeps first-seen order for ties; citation sets are tiny.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// TitleFromSource derives a display title from a document locator: the last
// path segment with any ".pdf" suffix stripped. An empty source yields the
// generic "Document".
func TitleFromSource(source string) string {
	if source == "" {
		return "Document"
	}
	segment := source
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	segment = strings.TrimSuffix(segment, ".pdf")
	if segment == "" {
		return "Document"
	}
	return segment
}

func truncateExcerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxExcerptRunes {
		return s
	}
	return string(runes[:MaxExcerptRunes])
}
