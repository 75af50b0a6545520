// Package knowledge provides topic-scoped semantic retrieval over the
// document corpus backed by PostgreSQL + pgvector.
//
// Documents are chunked passages with a topic label ("tuberculosis",
// "agriculture"), a source URI pointing at the original file, and a
// 768-dimensional embedding. Retrieval embeds the query and ranks passages by cosine
// similarity within a single topic, so a tuberculosis question never
// surfaces irrigation manuals.
package knowledge

import "time"

const (
	// VectorDimension is the embedding dimensionality for the documents table.
	// Must match the vector(768) column in the schema.
	VectorDimension int32 = 768

	// EmbedTimeout bounds a single embedding API call.
	EmbedTimeout = 10 * time.Second

	// DefaultTopK is the number of passages returned when the caller
	// does not configure a limit.
	DefaultTopK = 5

	// MaxTopK caps the passage count regardless of configuration.
	MaxTopK = 10

	// MaxQueryLen truncates oversized retrieval queries before embedding.
	MaxQueryLen = 2000
)

// Passage is one retrieved chunk with its provenance and similarity score.
type Passage struct {
	// Content is the chunk text injected into the generation context.
	Content string

	// Source is the URI of the originating document, e.g.
	// "s3://iecho-docs/processed/tb_treatment_guidelines.pdf".
	Source string

	// Score is cosine similarity in [0, 1]; higher is closer.
	Score float64
}
