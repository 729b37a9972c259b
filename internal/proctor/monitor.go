// Package proctor watches for focus-loss signals during an exam and escalates
// repeated tab switches into an automatic submission.
package proctor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/store"
)

// DefaultLimit is the tab-switch count that forces submission.
const DefaultLimit = 3

// Level classifies a tab switch.
type Level int

const (
	LevelWarning Level = iota + 1
	LevelFinalWarning
	LevelBreach
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelFinalWarning:
		return "final_warning"
	case LevelBreach:
		return "breach"
	default:
		return "unknown"
	}
}

// Escalation is the outcome of one recorded focus loss.
type Escalation struct {
	Count   int
	Level   Level
	Message string
}

// Fatal reports whether the switch must end the exam.
func (e Escalation) Fatal() bool {
	return e.Level == LevelBreach
}

// Config controls monitoring. Bypass disables monitoring entirely and is
// meant for automated UI testing only.
type Config struct {
	Bypass bool
	Limit  int
}

// Monitor counts focus losses while armed. It is owned by a single session
// event loop and is not safe for concurrent use.
type Monitor struct {
	counter store.CounterStore
	key     string
	cfg     Config
	log     zerolog.Logger

	armed bool
	count int
}

// New creates a Monitor persisting its counter under key.
func New(counter store.CounterStore, key string, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.Limit < 1 {
		cfg.Limit = DefaultLimit
	}
	return &Monitor{
		counter: counter,
		key:     key,
		cfg:     cfg,
		log:     log.With().Str("component", "tab_switch_monitor").Logger(),
	}
}

// Restore loads the persisted count, e.g. after a reload mid-exam.
func (m *Monitor) Restore(ctx context.Context) (int, error) {
	n, err := m.counter.Get(ctx, m.key)
	if err != nil {
		return 0, fmt.Errorf("restore tab switch count: %w", err)
	}
	m.count = n
	if n > 0 {
		m.log.Info().Int("count", n).Msg("Restored tab switch count")
	}
	return n, nil
}

// Arm starts monitoring. Called when the candidate enters the questions view.
func (m *Monitor) Arm() {
	m.armed = true
}

// Disarm stops monitoring. Called whenever the questions view is left.
func (m *Monitor) Disarm() {
	m.armed = false
}

// Active reports whether focus losses are currently counted.
func (m *Monitor) Active() bool {
	return m.armed && !m.cfg.Bypass
}

// Count returns the last known count.
func (m *Monitor) Count() int {
	return m.count
}

// FocusLost records a focus loss. ok is false when the monitor is inactive
// and nothing was recorded.
func (m *Monitor) FocusLost(ctx context.Context) (Escalation, bool) {
	if !m.Active() {
		return Escalation{}, false
	}

	n, err := m.counter.Incr(ctx, m.key)
	if err != nil {
		// Keep counting locally so a broken store cannot be used to dodge the limit.
		m.count++
		n = m.count
		m.log.Error().Err(err).Int("count", n).Msg("Persist tab switch count failed")
	}
	if n < m.count {
		n = m.count + 1
	}
	m.count = n

	esc := m.escalate(n)
	m.log.Warn().Int("count", n).Str("level", esc.Level.String()).Msg("Tab switch detected")
	return esc, true
}

// Clear resets the persisted counter. Only finalize and retake call this.
func (m *Monitor) Clear(ctx context.Context) error {
	m.count = 0
	if err := m.counter.Clear(ctx, m.key); err != nil {
		return fmt.Errorf("clear tab switch count: %w", err)
	}
	return nil
}

func (m *Monitor) escalate(n int) Escalation {
	remaining := m.cfg.Limit - n
	switch {
	case remaining <= 0:
		return Escalation{Count: n, Level: LevelBreach, Message: "Too many tab switches. Submitting exam..."}
	case remaining == 1:
		return Escalation{Count: n, Level: LevelFinalWarning, Message: "Final Warning: 1 tab switch left before auto-submission."}
	default:
		return Escalation{
			Count:   n,
			Level:   LevelWarning,
			Message: fmt.Sprintf("Warning: Do not switch tabs. %d attempts remaining.", remaining),
		}
	}
}
