package api

import (
	"net/http"
	"time"

	"github.com/iecho-project/iecho/internal/log"
)

// serviceName is the identity every operational endpoint reports. The
// deployed frontend matches on it, so it never changes.
const serviceName = "iECHO RAG Chatbot API"

// health is the liveness probe. It sits outside the middleware stack and
// answers from memory only.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}, logger)
	}
}
