package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_RunsInitialPassAndRepeats(t *testing.T) {
	var passes atomic.Int32
	sw := NewSweeper("test", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		passes.Add(1)
		return 1, nil
	}, discardLogger())

	done := make(chan struct{})
	go func() {
		sw.Start(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for passes.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d passes before deadline, want >= 3", passes.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	sw.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("sweeper did not stop after Stop()")
	}
}

func TestSweeper_ContextCancelExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper("test", time.Hour, func(ctx context.Context) (int, error) {
		return 0, nil
	}, discardLogger())

	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("sweeper did not exit on context cancellation")
	}
}

func TestSweeper_ErrorDoesNotStopLoop(t *testing.T) {
	var passes atomic.Int32
	sw := NewSweeper("test", 10*time.Millisecond, func(ctx context.Context) (int, error) {
		passes.Add(1)
		return 0, errors.New("sweep failed")
	}, discardLogger())

	done := make(chan struct{})
	go func() {
		sw.Start(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for passes.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("only %d passes before deadline, want >= 2", passes.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	sw.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("sweeper did not stop after Stop()")
	}
}

func TestSweeper_ZeroIntervalIsDisabled(t *testing.T) {
	var passes atomic.Int32
	sw := NewSweeper("test", 0, func(ctx context.Context) (int, error) {
		passes.Add(1)
		return 0, nil
	}, discardLogger())

	done := make(chan struct{})
	go func() {
		sw.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled sweeper must return immediately")
	}
	if passes.Load() != 0 {
		t.Errorf("disabled sweeper ran %d passes, want 0", passes.Load())
	}
}
