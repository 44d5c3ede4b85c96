// Package jobs runs the periodic background sweeps: room expiry, suspicious
// activity detection over recent failures, and scheduled API key expiry.
// Each sweep is a Sweeper wrapping one service method; the loop runs an
// initial pass on startup and then repeats on its interval until Stop() is
// called or the context is cancelled.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/VidDazzleLLC/digicon-ai-systems-sub000/internal/telemetry"
)

// SweepFunc is one sweep pass. It returns the number of entities it acted on.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper periodically runs one sweep function.
type Sweeper struct {
	name     string
	interval time.Duration
	run      SweepFunc
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewSweeper creates a Sweeper. name labels the sweep in logs and metrics.
func NewSweeper(name string, interval time.Duration, run SweepFunc, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. It runs one pass immediately, then repeats on
// the configured interval. The loop exits when ctx is cancelled or Stop() is
// called. Start blocks; run it under safego.Go.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("sweep disabled", "job", s.name)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweep started", "job", s.name, "interval", s.interval)

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("sweep stopped", "job", s.name)
			return
		case <-ctx.Done():
			s.logger.Info("sweep context cancelled", "job", s.name)
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

func (s *Sweeper) runOnce(ctx context.Context) {
	start := time.Now()
	n, err := s.run(ctx)
	telemetry.SweepDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.SweepErrorsTotal.WithLabelValues(s.name).Inc()
		s.logger.Error("sweep pass failed", "job", s.name, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("sweep pass finished", "job", s.name, "affected", n)
	}
}
