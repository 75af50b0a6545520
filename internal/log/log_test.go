package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})
	logger.Info("query routed", "specialist", "tb")

	output := buf.String()
	if !strings.Contains(output, "query routed") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, "specialist=tb") {
		t.Errorf("expected output to contain attribute, got: %s", output)
	}
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{JSON: true})
	logger.Info("session created", "sessionId", "abc")

	output := buf.String()
	if !strings.Contains(output, `"msg":"session created"`) {
		t.Errorf("expected JSON output with msg field, got: %s", output)
	}
	if !strings.Contains(output, `"sessionId":"abc"`) {
		t.Errorf("expected JSON output with attribute, got: %s", output)
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop() returned nil")
	}

	// Should not panic.
	logger.Info("discarded")
	logger.Error("discarded too")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{})
	logger.With("component", "router").Info("scored")

	if !strings.Contains(buf.String(), "component=router") {
		t.Errorf("expected output to contain component attribute, got: %s", buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Info("below threshold")
	logger.Warn("at threshold")

	output := buf.String()
	if strings.Contains(output, "below threshold") {
		t.Error("INFO message should be filtered out at WARN level")
	}
	if !strings.Contains(output, "at threshold") {
		t.Error("WARN message should appear")
	}
}
