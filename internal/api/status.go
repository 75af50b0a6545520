package api

import (
	"net/http"
	"time"

	"github.com/iecho-project/iecho/internal/log"
)

// statusHandler reports which optional subsystems the server was wired
// with. Dashboards poll it to distinguish a degraded deployment from a
// broken one.
type statusHandler struct {
	region              string
	knowledgeConfigured bool
	documentsConfigured bool
	feedbackConfigured  bool
	logger              log.Logger
}

func (h *statusHandler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":                 serviceName,
		"status":                  "running",
		"knowledgeBaseConfigured": h.knowledgeConfigured,
		"documentsConfigured":     h.documentsConfigured,
		"feedbackConfigured":      h.feedbackConfigured,
		"region":                  h.region,
		"timestamp":               time.Now().UTC().Format(time.RFC3339Nano),
	}, h.logger)
}
