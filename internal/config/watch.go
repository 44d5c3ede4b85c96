package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SuspiciousTuning is the live-reloadable view of the suspicious-activity
// thresholds. Detection code reads through Current() on every evaluation, so
// an operator tightening the knobs during an incident takes effect on the
// next attempt without a restart.
type SuspiciousTuning struct {
	mu  sync.RWMutex
	cur SuspiciousConfig
}

// NewSuspiciousTuning seeds the tuning with the values loaded at startup.
func NewSuspiciousTuning(initial SuspiciousConfig) *SuspiciousTuning {
	return &SuspiciousTuning{cur: initial}
}

// Current returns the thresholds in effect right now.
func (t *SuspiciousTuning) Current() SuspiciousConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

func (t *SuspiciousTuning) set(next SuspiciousConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = next
}

// Watch starts watching the config file for changes and pushes validated
// security.suspicious updates into tuning. Only the suspicious-activity
// thresholds reload live; changing anything else still requires a restart,
// and an edit that fails validation is logged and ignored.
//
// Watch is a no-op for Config values that were not produced by Load.
func (c *Config) Watch(tuning *SuspiciousTuning) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		var next Config
		if err := c.v.Unmarshal(&next); err != nil {
			slog.Warn("config reload failed, keeping previous thresholds", "file", e.Name, "error", err)
			return
		}

		s := next.Security.Suspicious
		if s.FailureThreshold < 1 || s.Window <= 0 || s.DistinctIPThreshold < 1 {
			slog.Warn("config reload rejected, invalid suspicious thresholds",
				"failure_threshold", s.FailureThreshold,
				"window", s.Window,
				"distinct_ip_threshold", s.DistinctIPThreshold)
			return
		}

		tuning.set(s)
		slog.Info("suspicious-activity thresholds reloaded",
			"failure_threshold", s.FailureThreshold,
			"window", s.Window,
			"distinct_ip_threshold", s.DistinctIPThreshold)
	})
	c.v.WatchConfig()
}
