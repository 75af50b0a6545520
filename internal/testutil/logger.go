package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output. For
// components that take the internal/log package's Logger (an alias for
// *slog.Logger), log.NewNop() returns the same thing.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
