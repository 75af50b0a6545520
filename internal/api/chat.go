package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iecho-project/iecho/internal/engine"
	"github.com/iecho-project/iecho/internal/log"
	"github.com/iecho-project/iecho/internal/stream"
)

// maxRequestBytes bounds chat request bodies. A 5 MB image grows to
// roughly 6.8 MB as base64, plus JSON overhead, so 8 MB admits every
// legal payload.
const maxRequestBytes = 8 << 20

// chatRequest is the wire shape of POST /chat and POST /chat-stream.
type chatRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Image     string `json:"image"`
}

// chatHandler serves the buffered and streaming chat endpoints.
type chatHandler struct {
	engine *engine.Engine
	logger log.Logger
}

// chat handles POST /chat: one buffered turn, full response as JSON.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", h.logger)
		return
	}

	resp, err := h.engine.Query(r.Context(), engine.Request{
		Query:     req.Query,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Image:     req.Image,
	}, nil)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("client disconnected", "path", r.URL.Path)
			return
		}
		status, detail, code := classifyChatError(err, req.Query)
		if status == http.StatusInternalServerError {
			h.logger.Error("chat turn failed", "error", err)
		}
		if code != "" {
			writeCodedError(w, status, detail, code, h.logger)
			return
		}
		writeError(w, status, detail, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// chatStream handles POST /chat-stream: the same turn as chat, relayed
// as NDJSON frames while the model generates.
//
// The stream is established before the body is inspected, so validation
// failures arrive as an in-stream error frame rather than an HTTP status.
func (h *chatHandler) chatStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	d := stream.New(w, flusher, h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = d.Fail("Invalid request body")
		return
	}

	resp, err := h.engine.Query(r.Context(), engine.Request{
		Query:     req.Query,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Image:     req.Image,
	}, d.Emit)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("client disconnected during stream", "path", r.URL.Path)
			return
		}
		status, detail, _ := classifyChatError(err, req.Query)
		message := detail
		if status == http.StatusInternalServerError {
			h.logger.Error("stream turn failed", "error", err)
			message = stream.InternalErrorMessage
		}
		if failErr := d.Fail(message); failErr != nil && !errors.Is(failErr, stream.ErrTerminal) {
			h.logger.Debug("writing error frame", "error", failErr)
		}
		return
	}

	if err := d.Complete(resp); err != nil {
		h.logger.Debug("writing final frame", "error", err)
	}
}

// classifyChatError maps an engine failure to an HTTP status, the detail
// text the original frontend expects, and an optional stable code.
// Unrecognized failures collapse to a generic 500 so internal error
// strings never reach clients.
func classifyChatError(err error, query string) (status int, detail, code string) {
	switch {
	case errors.Is(err, engine.ErrEmptyQuery):
		return http.StatusBadRequest, "Query cannot be empty", ""
	case errors.Is(err, engine.ErrQueryTooLong):
		detail := fmt.Sprintf("Query too long. %d tokens provided, maximum %d tokens allowed.",
			engine.TokenEstimate(query), engine.MaxQueryTokens)
		return http.StatusBadRequest, detail, ""
	case errors.Is(err, engine.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "Image too large. Maximum size is 5MB.", "IMAGE_TOO_LARGE"
	case errors.Is(err, engine.ErrImageDecode):
		return http.StatusBadRequest, "Invalid image format", "IMAGE_DECODE_ERROR"
	case errors.Is(err, engine.ErrTimeout):
		return http.StatusGatewayTimeout, stream.TimeoutMessage, ""
	default:
		return http.StatusInternalServerError, "Internal server error", ""
	}
}
