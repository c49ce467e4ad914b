package memory

import (
	"context"
	"log/slog"
	"time"
)

// ScheduleConfig controls how ScheduleSync debounces requests.
type ScheduleConfig struct {
	Cooldown    time.Duration // minimum spacing between unforced passes
	QuickDelay  time.Duration // delay once the cooldown has elapsed
	ForcedDelay time.Duration // upper bound on the delay of a forced request inside the cooldown
}

// DefaultScheduleConfig returns the default debounce timings.
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Cooldown:    15 * time.Second,
		QuickDelay:  250 * time.Millisecond,
		ForcedDelay: 1500 * time.Millisecond,
	}
}

func (c ScheduleConfig) withDefaults() ScheduleConfig {
	d := DefaultScheduleConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.QuickDelay <= 0 {
		c.QuickDelay = d.QuickDelay
	}
	if c.ForcedDelay <= 0 {
		c.ForcedDelay = d.ForcedDelay
	}
	return c
}

type scheduledSync struct {
	timer      *time.Timer
	generation uint64
}

// ScheduleSync requests an eventual sync pass for workspaceID without blocking.
// At most one pass is pending per workspace; further requests join it. Inside
// the cooldown an unforced request is dropped and a forced one is delayed by
// at most ForcedDelay.
func (m *Manager) ScheduleSync(workspaceID, root string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if _, ok := m.pending[workspaceID]; ok {
		return
	}

	cfg := m.cfg.Schedule
	delay := cfg.QuickDelay
	if last, ok := m.lastRun[workspaceID]; ok {
		if since := m.now().Sub(last); since < cfg.Cooldown {
			if !force {
				return
			}
			delay = min(cfg.ForcedDelay, cfg.Cooldown-since)
		}
	}

	s := &scheduledSync{generation: m.generations[workspaceID]}
	s.timer = time.AfterFunc(delay, func() { m.runScheduled(workspaceID, root, s) })
	m.pending[workspaceID] = s
	slog.Debug("memory sync: scheduled", "workspace", workspaceID, "delay", delay, "force", force)
}

// PendingSync reports whether a pass is scheduled for workspaceID.
func (m *Manager) PendingSync(workspaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[workspaceID]
	return ok
}

func (m *Manager) runScheduled(workspaceID, root string, s *scheduledSync) {
	m.mu.Lock()
	if m.pending[workspaceID] != s {
		// cancelled or superseded
		m.mu.Unlock()
		return
	}
	delete(m.pending, workspaceID)
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.running.Add(1)
	m.mu.Unlock()
	defer m.running.Done()

	stats, err := m.SyncWorkspace(context.Background(), workspaceID, root, WithGeneration(s.generation))
	if err != nil {
		slog.Warn("memory sync: scheduled pass failed", "workspace", workspaceID, "error", err)
		return
	}
	if stats.Aborted {
		slog.Debug("memory sync: scheduled pass aborted", "workspace", workspaceID)
	}
}

// CancelSync bumps the generation of workspaceID so that scheduled and
// in-flight passes abort before their next write.
func (m *Manager) CancelSync(workspaceID string) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bumpGenerationLocked(workspaceID)
	m.cancelPendingLocked(workspaceID)
}

func (m *Manager) cancelPendingLocked(workspaceID string) {
	if s, ok := m.pending[workspaceID]; ok {
		s.timer.Stop()
		delete(m.pending, workspaceID)
	}
}
