package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config tunes a Store. Zero values fall back to package defaults.
type Config struct {
	TopK   int
	Logger *slog.Logger
}

// Store answers similarity queries against the documents table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	topK     int
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, cfg Config) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, topK: resolveTopK(cfg.TopK), logger: logger}, nil
}

// resolveTopK clamps a configured passage limit into [1, MaxTopK],
// falling back to DefaultTopK for zero or negative values.
func resolveTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Retrieve returns the passages most similar to query within topic,
// ordered by cosine similarity descending.
//
// An empty query or topic yields an empty result rather than an error;
// upstream validation should have rejected those already.
func (s *Store) Retrieve(ctx context.Context, topic, query string) ([]Passage, error) {
	if topic == "" || query == "" {
		return []Passage{}, nil
	}
	if len(query) > MaxQueryLen {
		query = query[:MaxQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return []Passage{}, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT content, source, 1 - (embedding <=> $1) AS score
		 FROM documents
		 WHERE topic = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, topic, s.topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	passages, err := scanPassages(rows)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("knowledge retrieved",
		"topic", topic,
		"passages", len(passages),
		"queryLength", len(query),
	)
	return passages, nil
}

// Add inserts one passage into the corpus. Used by the seeding path and
// by integration tests; bulk ingestion lives outside this service.
func (s *Store) Add(ctx context.Context, topic, source, content string) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if content == "" {
		return fmt.Errorf("content is required")
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, content)
	if err != nil {
		return fmt.Errorf("embedding passage: %w", err)
	}

	if err := s.insertRow(ctx, s.pool, topic, source, content, vec); err != nil {
		return err
	}
	return nil
}

// insertRow inserts a passage using the provided querier (pool or tx).
func (*Store) insertRow(ctx context.Context, q querier, topic, source, content string, vec pgvector.Vector) error {
	_, err := q.Exec(ctx,
		`INSERT INTO documents (topic, source, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (topic, md5(content)) DO NOTHING`,
		topic, source, content, vec,
	)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// Count returns the number of stored passages, optionally scoped to a topic.
// An empty topic counts the whole corpus.
func (s *Store) Count(ctx context.Context, topic string) (int, error) {
	var count int
	var err error
	if topic == "" {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE topic = $1`, topic).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// Ping verifies database connectivity within the given timeout.
// Used by the health and status endpoints.
func (s *Store) Ping(ctx context.Context, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// scanPassages reads Passage values from pgx.Rows.
func scanPassages(rows pgx.Rows) ([]Passage, error) {
	var passages []Passage
	for rows.Next() {
		var p Passage
		if err := rows.Scan(&p.Content, &p.Source, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return passages, nil
}
