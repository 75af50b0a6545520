package testutil

import (
	"context"
	"sync"

	"github.com/iecho-project/iecho/internal/knowledge"
)

// FakeRetriever returns canned passages per topic and records every
// retrieval call. It satisfies the retriever interfaces consumed by the
// agent and engine packages.
//
// Thread-safe for concurrent use.
type FakeRetriever struct {
	mu       sync.Mutex
	passages map[string][]knowledge.Passage
	err      error
	calls    []RetrieveCall
}

// RetrieveCall records one Retrieve invocation.
type RetrieveCall struct {
	Topic string
	Query string
}

// NewFakeRetriever creates an empty FakeRetriever.
func NewFakeRetriever() *FakeRetriever {
	return &FakeRetriever{passages: make(map[string][]knowledge.Passage)}
}

// SetPassages registers the passages returned for a topic.
func (f *FakeRetriever) SetPassages(topic string, passages ...knowledge.Passage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passages[topic] = passages
}

// SetError makes all subsequent Retrieve calls fail with err.
func (f *FakeRetriever) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Retrieve returns the canned passages for topic, recording the call.
func (f *FakeRetriever) Retrieve(_ context.Context, topic, query string) ([]knowledge.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, RetrieveCall{Topic: topic, Query: query})
	if f.err != nil {
		return nil, f.err
	}
	return f.passages[topic], nil
}

// Calls returns a copy of all recorded retrieval calls.
func (f *FakeRetriever) Calls() []RetrieveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]RetrieveCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}
