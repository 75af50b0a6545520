package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/iecho-project/iecho/internal/config"
	"github.com/iecho-project/iecho/internal/feedback"
	"github.com/iecho-project/iecho/internal/testutil"
)

func TestAppCloseNilSafety(t *testing.T) {
	tests := []struct {
		name string
		app  *App
	}{
		{"empty app", &App{}},
		{"only logger", &App{Logger: testutil.DiscardLogger()}},
		{"only cancel", &App{cancel: func() {}}},
		{"only otel shutdown", &App{otelShutdown: func() {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.app.Close(); err != nil {
				t.Errorf("Close() = %v, want nil", err)
			}
		})
	}
}

func TestAppCloseCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Logger: testutil.DiscardLogger(), ctx: ctx, cancel: cancel}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	select {
	case <-a.ctx.Done():
	default:
		t.Error("background context still live after Close()")
	}
}

func TestAppCloseShutdownOrder(t *testing.T) {
	var order []string
	a := &App{
		Logger:       testutil.DiscardLogger(),
		cancel:       func() { order = append(order, "cancel") },
		otelShutdown: func() { order = append(order, "otel") },
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Background work must stop before the exporter flushes
	want := []string{"cancel", "otel"}
	if len(order) != len(want) {
		t.Fatalf("shutdown steps = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestProvideFeedbackStore(t *testing.T) {
	logger := testutil.DiscardLogger()

	t.Run("memory backend", func(t *testing.T) {
		cfg := &config.Config{FeedbackBackend: config.FeedbackMemory}
		store, err := provideFeedbackStore(cfg, nil, logger)
		if err != nil {
			t.Fatalf("provideFeedbackStore() failed: %v", err)
		}
		if _, ok := store.(*feedback.MemoryStore); !ok {
			t.Errorf("store type = %T, want *feedback.MemoryStore", store)
		}
	})

	t.Run("file backend", func(t *testing.T) {
		cfg := &config.Config{
			FeedbackBackend: config.FeedbackFile,
			FeedbackDir:     t.TempDir(),
		}
		store, err := provideFeedbackStore(cfg, nil, logger)
		if err != nil {
			t.Fatalf("provideFeedbackStore() failed: %v", err)
		}
		if _, ok := store.(*feedback.FileStore); !ok {
			t.Errorf("store type = %T, want *feedback.FileStore", store)
		}
	})

	t.Run("postgres backend requires pool", func(t *testing.T) {
		cfg := &config.Config{FeedbackBackend: config.FeedbackPostgres}
		if _, err := provideFeedbackStore(cfg, nil, logger); err == nil {
			t.Error("provideFeedbackStore() succeeded without a pool, want error")
		}
	})
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := &App{
		Config:  &config.Config{Host: "127.0.0.1", Port: 0, Environment: config.EnvDev},
		Logger:  testutil.DiscardLogger(),
		Handler: http.NewServeMux(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

func TestRunReportsListenError(t *testing.T) {
	// Occupy a port so ListenAndServe fails immediately
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	a := &App{
		Config:  &config.Config{Host: "127.0.0.1", Port: port, Environment: config.EnvDev},
		Logger:  testutil.DiscardLogger(),
		Handler: http.NewServeMux(),
	}

	runErr := a.Run(context.Background())
	if runErr == nil {
		t.Fatal("Run() = nil, want listen error for occupied port")
	}
	if !strings.Contains(runErr.Error(), "serving") {
		t.Errorf("Run() error = %v, want it wrapped as a serving error", runErr)
	}
	var opErr *net.OpError
	if !errors.As(runErr, &opErr) {
		t.Errorf("Run() error = %v, want a net.OpError in the chain", runErr)
	}
}
