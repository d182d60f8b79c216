// Package deadline watches a fixed set of named deadlines, classifies them
// on every tick and escalates expired ones into the current state record.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/continuity/internal/logging"
	"github.com/danielpatrickdp/continuity/internal/metrics"
	"github.com/danielpatrickdp/continuity/internal/state"
)

// #region interfaces

// MissionStore is the slice of state.Store the monitor writes through.
type MissionStore interface {
	Escalate(status state.EmergencyStatus) (state.Escalation, error)
	CurrentSessionID() string
}

// Recorder receives escalation events.
type Recorder interface {
	RecordEscalation(entry logging.EscalationEntry) error
}

// Optimizer is the per-tick timeline hook. The default does nothing.
type Optimizer func(ctx context.Context, classes []Classification) error

// RunState is the monitor lifecycle state.
type RunState string

const (
	StateStopped RunState = "STOPPED"
	StateRunning RunState = "RUNNING"
)

// DefaultInterval is the tick interval when none is configured.
const DefaultInterval = 30 * time.Second

// #endregion interfaces

// #region monitor

// Options configures a Monitor.
type Options struct {
	Interval  time.Duration
	Now       func() time.Time
	Optimizer Optimizer
	Recorder  Recorder
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// Monitor runs the deadline loop.
type Monitor struct {
	set      *Set
	store    MissionStore
	interval time.Duration
	now      func() time.Time
	optimize Optimizer
	recorder Recorder
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}

	tickMu    sync.Mutex
	escalated map[string]string // deadline name -> session ID escalated
}

// NewMonitor builds a stopped monitor.
func NewMonitor(set *Set, store MissionStore, opts Options) *Monitor {
	m := &Monitor{
		set:       set,
		store:     store,
		interval:  opts.Interval,
		now:       opts.Now,
		optimize:  opts.Optimizer,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		log:       logging.OrNop(opts.Logger).Named("deadline"),
		escalated: make(map[string]string),
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.optimize == nil {
		m.optimize = optimizeTimeline
	}
	return m
}

// optimizeTimeline is the extension point for schedule optimization.
func optimizeTimeline(context.Context, []Classification) error {
	return nil
}

// State reports whether Run is active.
func (m *Monitor) State() RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return StateRunning
	}
	return StateStopped
}

// Interval is the normal tick interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// #endregion monitor

// #region run

// Run ticks until Stop is called or ctx is done. A tick in progress always
// completes; Stop only prevents the next one. Tick failures back off for
// twice the interval and never end the loop. Run returns nil after Stop
// and ctx.Err() after cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.stopping = false
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		m.log.Info("deadline monitor stopped")
	}()

	m.log.Info("deadline monitor started", zap.Duration("interval", m.interval), zap.Int("deadlines", len(m.set.deadlines)))

	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		wait := m.interval
		if _, err := m.safeTick(ctx); err != nil {
			wait = 2 * m.interval
			m.metrics.IncTickError()
			m.log.Error("deadline tick failed", zap.Error(err), zap.Duration("backoff", wait))
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-timer.C:
		}
	}
}

// Stop asks a running loop to exit after its current tick.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.stopping {
		return
	}
	m.stopping = true
	close(m.stopCh)
}

// safeTick converts a panic inside a tick into a TickError.
func (m *Monitor) safeTick(ctx context.Context) (classes []Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TickError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return m.Tick(ctx)
}

// #endregion run

// #region tick

// Tick evaluates every deadline once, in configured order, escalates
// expired escalating deadlines and runs the timeline hook. Failures are
// collected into a single *TickError; one deadline's failure does not
// skip the others.
func (m *Monitor) Tick(ctx context.Context) ([]Classification, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	now := m.now()
	classes := make([]Classification, 0, len(m.set.deadlines))
	var errs []error

	for _, d := range m.set.deadlines {
		c := classify(d, now)
		classes = append(classes, c)
		m.metrics.SetTier(d.Name, int(c.Tier))
		m.logTier(c)

		if c.Tier == TierExpired && d.EscalatesOnExpiry {
			if err := m.escalate(d, now); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := m.optimize(ctx, classes); err != nil {
		errs = append(errs, fmt.Errorf("timeline optimization: %w", err))
	}

	if len(errs) > 0 {
		return classes, &TickError{Err: errors.Join(errs...)}
	}
	m.metrics.IncTick()
	return classes, nil
}

func (m *Monitor) logTier(c Classification) {
	fields := []zap.Field{zap.String("deadline", c.Deadline.Name), zap.Int("days", c.Days), zap.Stringer("tier", c.Tier)}
	switch c.Tier {
	case TierExpired:
		m.log.Error("deadline expired", fields...)
	case TierCritical:
		m.log.Warn("deadline critical", fields...)
	case TierApproaching:
		m.log.Info("deadline approaching", fields...)
	default:
		m.log.Debug("deadline normal", fields...)
	}
}

// escalate writes an emergency status for d into the current record, once
// per (deadline, session). A record that already carries an active
// emergency for d is left as is. Callers hold tickMu.
func (m *Monitor) escalate(d Deadline, now time.Time) error {
	sessionID := m.store.CurrentSessionID()
	if sessionID == "" {
		m.log.Debug("escalation deferred: no current session", zap.String("deadline", d.Name))
		return nil
	}
	if m.escalated[d.Name] == sessionID {
		return nil
	}

	esc, err := m.store.Escalate(state.EmergencyStatus{
		Active:         true,
		Deadline:       d.Name,
		ActionRequired: "IMMEDIATE",
		Timestamp:      now,
	})
	if errors.Is(err, state.ErrNoCurrentRecord) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("escalate %s: %w", d.Name, err)
	}

	// the store reports the record it actually inspected
	m.escalated[d.Name] = esc.SessionID
	if !esc.Applied {
		m.log.Debug("emergency already active",
			zap.String("deadline", d.Name),
			zap.String("session_id", esc.SessionID),
		)
		return nil
	}

	m.metrics.IncEscalation(d.Name)
	m.log.Error("emergency protocol activated",
		zap.String("deadline", d.Name),
		zap.String("session_id", esc.SessionID),
	)
	if m.recorder != nil {
		entry := logging.EscalationEntry{
			SessionID: esc.SessionID,
			Deadline:  d.Name,
			Tier:      TierExpired.String(),
			CreatedAt: now.UTC(),
		}
		if err := m.recorder.RecordEscalation(entry); err != nil {
			m.log.Warn("audit escalation failed", zap.Error(err))
		}
	}
	return nil
}

// #endregion tick
