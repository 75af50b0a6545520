package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/iecho-project/iecho/internal/docstore"
	"github.com/iecho-project/iecho/internal/log"
)

// DocumentStore is the document surface the server exposes: a listing of
// processed knowledge-base files and presigned downloads for them.
type DocumentStore interface {
	List(ctx context.Context) ([]docstore.Document, error)
	PresignURL(ctx context.Context, path string) (string, error)
}

// documentsHandler serves GET /documents and GET /document-url/{path...}.
// docs is nil when no bucket is configured; both endpoints then report
// the missing configuration instead of failing obscurely.
type documentsHandler struct {
	docs   DocumentStore
	logger log.Logger
}

func (h *documentsHandler) list(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeError(w, http.StatusInternalServerError, "Document store not configured", h.logger)
		return
	}

	docs, err := h.docs.List(r.Context())
	if err != nil {
		h.logger.Error("listing documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	}, h.logger)
}

func (h *documentsHandler) presign(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		writeError(w, http.StatusInternalServerError, "Document store not configured", h.logger)
		return
	}

	path := r.PathValue("path")
	// The mux collapses double slashes before routing, so an unencoded
	// "s3://bucket/key" arrives here as "s3:/bucket/key". Restore the
	// scheme; clients that URL-encode the path are unaffected.
	if rest, found := strings.CutPrefix(path, "s3:/"); found && !strings.HasPrefix(rest, "/") {
		path = "s3://" + rest
	}

	url, err := h.docs.PresignURL(r.Context(), path)
	if err != nil {
		if errors.Is(err, docstore.ErrBadObjectPath) {
			writeError(w, http.StatusBadRequest, "Invalid S3 URL format", h.logger)
			return
		}
		h.logger.Error("presigning document", "error", err, "path", path)
		writeError(w, http.StatusInternalServerError, "Failed to generate document URL", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url}, h.logger)
}
