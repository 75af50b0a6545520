package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists responses and ratings in the responses and
// feedback tables.
//
// PostgresStore is safe for concurrent use by multiple goroutines.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// SaveResponse stores the metadata for a completed turn.
func (s *PostgresStore) SaveResponse(ctx context.Context, meta ResponseMeta) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO responses (response_id, user_id, session_id, agent, query, response, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		meta.ResponseID, meta.UserID, meta.SessionID, meta.Agent, meta.Query, meta.Answer, meta.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting response: %w", err)
	}
	return nil
}

// GetResponse looks up a recorded response by id.
func (s *PostgresStore) GetResponse(ctx context.Context, responseID string) (ResponseMeta, error) {
	var meta ResponseMeta
	err := s.pool.QueryRow(ctx,
		`SELECT response_id, user_id, session_id, agent, query, response, created_at
		 FROM responses
		 WHERE response_id = $1`,
		responseID,
	).Scan(&meta.ResponseID, &meta.UserID, &meta.SessionID, &meta.Agent, &meta.Query, &meta.Answer, &meta.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ResponseMeta{}, ErrResponseNotFound
	}
	if err != nil {
		return ResponseMeta{}, fmt.Errorf("querying response: %w", err)
	}
	return meta, nil
}

// SaveFeedback appends one rating.
func (s *PostgresStore) SaveFeedback(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (feedback_id, user_id, response_id, rating, feedback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.FeedbackID, rec.UserID, rec.ResponseID, rec.Rating, rec.Feedback, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}
