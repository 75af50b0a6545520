package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/log"
)

// feedbackRequest is the wire shape of POST /feedback.
type feedbackRequest struct {
	UserID     string `json:"userId"`
	ResponseID string `json:"responseId"`
	Rating     int    `json:"rating"`
	Feedback   string `json:"feedback"`
}

type feedbackHandler struct {
	correlator *feedback.Correlator
	logger     log.Logger
}

// submit handles POST /feedback: it validates the rating, ties it to a
// previously answered response, and returns the new feedback id.
func (h *feedbackHandler) submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", h.logger)
		return
	}

	feedbackID, err := h.correlator.Apply(r.Context(), req.UserID, req.ResponseID, req.Rating, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrInvalidRating):
			writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5", h.logger)
		case errors.Is(err, feedback.ErrResponseNotFound):
			writeError(w, http.StatusNotFound, "Response not found", h.logger)
		default:
			h.logger.Error("storing feedback", "error", err, "response_id", req.ResponseID)
			writeError(w, http.StatusInternalServerError, "Internal server error", h.logger)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Feedback submitted successfully",
		"feedbackId": feedbackID,
	}, h.logger)
}
