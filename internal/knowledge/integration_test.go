//go:build integration
// +build integration

package knowledge_test

import (
	"context"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/iecho-project/iecho/internal/knowledge"
	"github.com/iecho-project/iecho/internal/testutil"
)

func newIntegrationStore(t *testing.T) *knowledge.Store {
	t.Helper()
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	g := genkit.Init(context.Background())
	embedder := testutil.NewMockEmbedder(int(knowledge.VectorDimension)).RegisterEmbedder(g)

	store, err := knowledge.NewStore(db.Pool, embedder, knowledge.Config{Logger: testutil.DiscardLogger()})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestStoreAddAndRetrieve(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	passages := []struct{ topic, source, content string }{
		{"tuberculosis", "s3://docs/processed/tb_guide.pdf", "HRZE is the standard first-line regimen."},
		{"tuberculosis", "s3://docs/processed/dots.pdf", "DOTS requires observed dosing."},
		{"agriculture", "s3://docs/processed/maize.pdf", "Plant maize at the start of the rains."},
	}
	for _, p := range passages {
		if err := store.Add(ctx, p.topic, p.source, p.content); err != nil {
			t.Fatalf("Add(%s) error = %v", p.source, err)
		}
	}

	// Identical text embeds to the identical vector, so the passage
	// matches its own content with similarity 1.
	got, err := store.Retrieve(ctx, "tuberculosis", "HRZE is the standard first-line regimen.")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Retrieve() = %d passages, want 2 tuberculosis rows", len(got))
	}
	if got[0].Source != "s3://docs/processed/tb_guide.pdf" {
		t.Errorf("top passage source = %q, want exact-match passage first", got[0].Source)
	}
	if got[0].Score < 0.99 {
		t.Errorf("top passage score = %f, want ~1.0 for identical text", got[0].Score)
	}
	for _, p := range got {
		if p.Source == "s3://docs/processed/maize.pdf" {
			t.Error("Retrieve() leaked a passage from another topic")
		}
	}
}

func TestStoreTopicScoping(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, "agriculture", "s3://docs/processed/soil.pdf", "Rotate legumes to fix nitrogen."); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, err := store.Retrieve(ctx, "tuberculosis", "Rotate legumes to fix nitrogen.")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Retrieve() = %d passages, want 0 outside the topic", len(got))
	}
}

func TestStoreDeduplicatesContent(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	const content = "Cough lasting three weeks warrants a TB test."
	for range 2 {
		if err := store.Add(ctx, "tuberculosis", "s3://docs/processed/tb.pdf", content); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	count, err := store.Count(ctx, "tuberculosis")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1 after duplicate insert", count)
	}
}

func TestStorePing(t *testing.T) {
	store := newIntegrationStore(t)

	if err := store.Ping(context.Background(), 5*time.Second); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
