package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/iecho-project/iecho/internal/log"
)

// errorBody is the JSON error envelope. Detail carries the human-readable
// message; Code is set only for errors clients branch on programmatically.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// writeJSON writes a JSON response with the given status code. The body is
// encoded to a buffer first so headers go out only after encoding succeeds
// and a real 500 can still be returned on encoding failure.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are routine, keep them out of error logs.
		logger.Debug("writing response body", "error", err)
	}
}

// writeError writes the {"detail": ...} error envelope.
func writeError(w http.ResponseWriter, status int, detail string, logger log.Logger) {
	writeJSON(w, status, errorBody{Detail: detail}, logger)
}

// writeCodedError is writeError with a stable machine-readable code.
func writeCodedError(w http.ResponseWriter, status int, detail, code string, logger log.Logger) {
	writeJSON(w, status, errorBody{Detail: detail, Code: code}, logger)
}
