// Package feedback correlates user ratings with the responses they rate.
//
// Every completed chat turn is recorded before its response id reaches the
// client, so a rating can only ever reference a response that exists. A
// rating outside 1..5 or against an unknown response id stores nothing.
// Multiple ratings for the same response accumulate as distinct records.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iecho-project/iecho/internal/log"
)

var (
	// ErrInvalidRating is returned for ratings outside the 1..5 range.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrResponseNotFound is returned when a rating references a response
	// id that was never recorded.
	ErrResponseNotFound = errors.New("response not found")
)

// ResponseMeta describes one completed chat turn.
type ResponseMeta struct {
	ResponseID string    `json:"responseId"`
	UserID     string    `json:"userId"`
	SessionID  string    `json:"sessionId"`
	Agent      string    `json:"agent"`
	Query      string    `json:"query"`
	Answer     string    `json:"response"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Record is one stored rating.
type Record struct {
	FeedbackID string    `json:"feedbackId"`
	UserID     string    `json:"userId"`
	ResponseID string    `json:"responseId"`
	Rating     int       `json:"rating"`
	Feedback   string    `json:"feedback"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Store persists response metadata and the ratings against it.
// GetResponse returns ErrResponseNotFound for ids that were never saved.
type Store interface {
	SaveResponse(ctx context.Context, meta ResponseMeta) error
	GetResponse(ctx context.Context, responseID string) (ResponseMeta, error)
	SaveFeedback(ctx context.Context, rec Record) error
}

// Correlator validates ratings and ties them to recorded responses.
type Correlator struct {
	store  Store
	logger log.Logger
}

// NewCorrelator creates a correlator over the given store.
func NewCorrelator(store Store, logger log.Logger) (*Correlator, error) {
	if store == nil {
		return nil, fmt.Errorf("creating correlator: store is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Correlator{store: store, logger: logger}, nil
}

// Record saves the metadata of a completed turn. It must run before the
// response id is handed to the client so that an immediate rating finds
// its response.
func (c *Correlator) Record(ctx context.Context, meta ResponseMeta) error {
	if meta.ResponseID == "" {
		return fmt.Errorf("recording response: response id is empty")
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if err := c.store.SaveResponse(ctx, meta); err != nil {
		return fmt.Errorf("recording response %s: %w", meta.ResponseID, err)
	}
	return nil
}

// Apply validates and stores one rating, returning the new feedback id.
func (c *Correlator) Apply(ctx context.Context, userID, responseID string, rating int, text string) (string, error) {
	if rating < 1 || rating > 5 {
		return "", ErrInvalidRating
	}
	if _, err := c.store.GetResponse(ctx, responseID); err != nil {
		return "", fmt.Errorf("looking up response %s: %w", responseID, err)
	}

	rec := Record{
		FeedbackID: uuid.New().String(),
		UserID:     userID,
		ResponseID: responseID,
		Rating:     rating,
		Feedback:   text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.store.SaveFeedback(ctx, rec); err != nil {
		return "", fmt.Errorf("saving feedback for response %s: %w", responseID, err)
	}

	c.logger.Info("feedback submitted",
		"user_id", userID,
		"response_id", responseID,
		"rating", rating,
		"feedback_id", rec.FeedbackID)
	return rec.FeedbackID, nil
}
