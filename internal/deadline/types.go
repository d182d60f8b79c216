package deadline

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/continuity/internal/config"
)

// #region tier

// Tier classifies how close a deadline is.
type Tier int

const (
	TierNormal Tier = iota
	TierApproaching
	TierCritical
	TierExpired
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "NORMAL"
	case TierApproaching:
		return "APPROACHING"
	case TierCritical:
		return "CRITICAL"
	case TierExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// #endregion tier

// #region deadline-set

// Deadline is one named absolute timestamp.
type Deadline struct {
	Name              string
	At                time.Time
	EscalatesOnExpiry bool
}

// Set is the fixed, ordered collection of deadlines a monitor watches.
// It is immutable once built.
type Set struct {
	deadlines []Deadline
}

// NewSet validates names and keeps the given order.
func NewSet(deadlines []Deadline) (*Set, error) {
	seen := make(map[string]bool, len(deadlines))
	out := make([]Deadline, 0, len(deadlines))
	for _, d := range deadlines {
		if d.Name == "" {
			return nil, errors.New("deadline: empty name")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("deadline: duplicate %q", d.Name)
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	return &Set{deadlines: out}, nil
}

// FromConfig builds a Set from the configured deadlines.
func FromConfig(cfg config.Config) (*Set, error) {
	ds := make([]Deadline, 0, len(cfg.Deadlines))
	for _, dc := range cfg.Deadlines {
		at, err := dc.Time()
		if err != nil {
			return nil, fmt.Errorf("deadline %q: %w", dc.Name, err)
		}
		ds = append(ds, Deadline{Name: dc.Name, At: at, EscalatesOnExpiry: dc.EscalatesOnExpiry})
	}
	return NewSet(ds)
}

// All returns the deadlines in configured order.
func (s *Set) All() []Deadline {
	out := make([]Deadline, len(s.deadlines))
	copy(out, s.deadlines)
	return out
}

// Lookup finds a deadline by name.
func (s *Set) Lookup(name string) (Deadline, bool) {
	for _, d := range s.deadlines {
		if d.Name == name {
			return d, true
		}
	}
	return Deadline{}, false
}

// #endregion deadline-set

// #region classification

// Classification is one deadline evaluated at a point in time.
type Classification struct {
	Deadline  Deadline
	Remaining time.Duration
	Days      int
	Tier      Tier
}

// Classify maps the time remaining until at into a tier. Days are whole
// days remaining, truncated.
func Classify(now, at time.Time) Tier {
	remaining := at.Sub(now)
	if remaining <= 0 {
		return TierExpired
	}
	switch days := int(remaining / (24 * time.Hour)); {
	case days <= 2:
		return TierCritical
	case days <= 7:
		return TierApproaching
	default:
		return TierNormal
	}
}

func classify(d Deadline, now time.Time) Classification {
	remaining := d.At.Sub(now)
	days := 0
	if remaining > 0 {
		days = int(remaining / (24 * time.Hour))
	}
	return Classification{
		Deadline:  d,
		Remaining: remaining,
		Days:      days,
		Tier:      Classify(now, d.At),
	}
}

// #endregion classification

// #region errors

// TickError wraps a failure inside one monitor tick. The loop logs it,
// backs off and continues.
type TickError struct {
	Err error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("deadline tick: %v", e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// ErrAlreadyRunning is returned by Run on a monitor that is already running.
var ErrAlreadyRunning = errors.New("deadline monitor already running")

// #endregion errors
