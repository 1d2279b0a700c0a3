package core

// scheduler.go reaps edit sessions that clients abandoned.
//
// Clients are identified by a cookie and may disappear without closing their
// workflow. The reaper periodically discards workflows that have been idle
// longer than the configured timeout and have no call outstanding.

import (
	"context"
	"log/slog"
	"time"
)

// ReaperConfig holds configuration for the session reaper.
type ReaperConfig struct {
	IdleTimeout   time.Duration // Discard workflows untouched for this long (default: 2h)
	CheckInterval time.Duration // How often to scan (default: 5m)
}

// StartSessionReaper scans for idle workflows every CheckInterval until ctx
// is cancelled.
func (s *Service) StartSessionReaper(ctx context.Context, cfg ReaperConfig) {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}

	slog.Info("session reaper started",
		"idle_timeout", cfg.IdleTimeout,
		"check_interval", cfg.CheckInterval,
	)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session reaper stopped")
			return
		case <-ticker.C:
			s.reapIdle(time.Now(), cfg.IdleTimeout)
		}
	}
}

// reapIdle discards workflows idle since before now-idleTimeout and returns
// how many were removed.
func (s *Service) reapIdle(now time.Time, idleTimeout time.Duration) int {
	start := time.Now()
	cutoff := now.Add(-idleTimeout)

	s.mu.Lock()
	var stale []*Workflow
	for id, w := range s.workflows {
		if w.LastActive().Before(cutoff) && !w.Busy() {
			stale = append(stale, w)
			delete(s.workflows, id)
		}
	}
	s.mu.Unlock()

	for _, w := range stale {
		w.Close()
		slog.Debug("session reaped", "client_id", w.clientID)
	}

	if len(stale) > 0 {
		slog.Info("reaped idle sessions",
			"sessions_reaped", len(stale),
			"remaining", s.ActiveWorkflows(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return len(stale)
}
