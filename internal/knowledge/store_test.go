package knowledge

import (
	"context"
	"testing"
)

func TestNewStoreRequiresPool(t *testing.T) {
	if _, err := NewStore(nil, nil, Config{}); err == nil {
		t.Fatal("NewStore(nil pool) error = nil, want error")
	}
}

func TestRetrieveEmptyInputsShortCircuit(t *testing.T) {
	// Guards run before any pool or embedder access, so a zero Store is safe.
	s := &Store{}

	for _, tt := range []struct {
		name  string
		topic string
		query string
	}{
		{"empty query", "tb", ""},
		{"empty topic", "", "how is TB treated?"},
		{"both empty", "", ""},
		{"NUL byte in query", "tb", "treatment\x00plan"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Retrieve(context.Background(), tt.topic, tt.query)
			if err != nil {
				t.Fatalf("Retrieve() error = %v, want nil", err)
			}
			if len(got) != 0 {
				t.Errorf("Retrieve() = %d passages, want 0", len(got))
			}
		})
	}
}

func TestAddValidatesInputs(t *testing.T) {
	s := &Store{}

	if err := s.Add(context.Background(), "", "src", "content"); err == nil {
		t.Error("Add(empty topic) error = nil, want error")
	}
	if err := s.Add(context.Background(), "tb", "src", ""); err == nil {
		t.Error("Add(empty content) error = nil, want error")
	}
}

func TestResolveTopK(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, DefaultTopK},
		{"negative uses default", -3, DefaultTopK},
		{"in range kept", 7, 7},
		{"above cap clamped", 50, MaxTopK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveTopK(tt.in); got != tt.want {
				t.Errorf("resolveTopK(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
