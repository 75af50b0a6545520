// Package router selects the specialist that answers a query.
//
// Routing is deterministic. Each registered specialist scores a query by
// how many of its trigger terms appear on word boundaries, the strict
// maximum wins, and a tie or an all-zero score falls through to the
// registry's fallback specialist. Registration order never affects the
// outcome, so adding a specialist cannot change how existing queries
// route unless it strictly outscores them.
package router

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/iecho-project/iecho/internal/agent"
)

// Registry is the routing table. Specialists compete with the trigger
// vocabulary they declared; the table itself knows nothing about any
// individual specialist.
type Registry struct {
	mu       sync.RWMutex
	entries  []entry
	names    map[string]bool
	fallback *agent.Specialist
}

type entry struct {
	specialist *agent.Specialist
	terms      []string
}

// NewRegistry creates a routing table that resolves ties and no-match
// queries to the given fallback specialist.
func NewRegistry(fallback *agent.Specialist) (*Registry, error) {
	if fallback == nil {
		return nil, fmt.Errorf("creating registry: fallback specialist is required")
	}
	return &Registry{
		names:    make(map[string]bool),
		fallback: fallback,
	}, nil
}

// Register adds a specialist to the routing table. The name must be
// unique and the specialist must declare at least one trigger term.
func (r *Registry) Register(s *agent.Specialist) error {
	if s == nil {
		return fmt.Errorf("registering specialist: specialist is nil")
	}
	name := s.Name()

	terms := normalizeTerms(s.TriggerTerms())
	if len(terms) == 0 {
		return fmt.Errorf("registering specialist %q: no trigger terms", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[name] {
		return fmt.Errorf("registering specialist %q: already registered", name)
	}
	r.names[name] = true
	r.entries = append(r.entries, entry{specialist: s, terms: terms})
	return nil
}

// Route selects the specialist for a query. The specialist with the
// strictly highest trigger score wins; a tie for the top score or a
// query matching nothing selects the fallback. Route never returns nil.
func (r *Registry) Route(query string) *agent.Specialist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	padded := " " + strings.Join(words(query), " ") + " "

	var best *agent.Specialist
	bestScore := 0
	tied := false
	for _, e := range r.entries {
		score := 0
		for _, t := range e.terms {
			if strings.Contains(padded, " "+t+" ") {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = e.specialist, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if best == nil || tied {
		return r.fallback
	}
	return best
}

// Fallback returns the specialist that handles unroutable queries.
func (r *Registry) Fallback() *agent.Specialist {
	return r.fallback
}

// Names lists the registered specialist names in sorted order. The
// fallback is not part of the competition and is not listed.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.specialist.Name())
	}
	slices.Sort(names)
	return names
}

// words lowercases s and splits it into letter/digit runs, stripping
// punctuation so that "TB?" and "tb" score identically.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// normalizeTerms canonicalizes trigger terms the same way queries are
// canonicalized and drops empties and duplicates. Multi-word terms keep
// their word order and match as a phrase.
func normalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		norm := strings.Join(words(t), " ")
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
