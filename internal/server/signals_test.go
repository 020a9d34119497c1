package server

import (
	"io"
	"log/slog"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleSignalsDrainsOnSIGTERM(t *testing.T) {
	srv := &http.Server{
		Addr:    "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	}

	done := make(chan error, 1)
	go func() {
		done <- HandleSignals(quietLogger(), srv, 2*time.Second)
	}()

	// Give the listener a moment to come up before signalling.
	time.Sleep(100 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("failed to signal self: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("graceful shutdown returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after SIGTERM")
	}
}

func TestHandleSignalsReturnsListenFailure(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:-1"}

	done := make(chan error, 1)
	go func() {
		done <- HandleSignals(quietLogger(), srv, time.Second)
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error for an unbindable address")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listen failure must not wait for a signal")
	}
}
