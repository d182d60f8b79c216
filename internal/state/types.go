package state

import (
	"errors"
	"time"
)

// #region importance

// Importance tiers a memory anchor.
type Importance string

const (
	ImportanceCritical Importance = "CRITICAL"
	ImportanceHigh     Importance = "HIGH"
	ImportanceMedium   Importance = "MEDIUM"
)

// #endregion importance

// #region state-record

// StateRecord is one preserved session.
type StateRecord struct {
	SessionID             string              `json:"session_id"`
	CreatedAt             time.Time           `json:"created_at"`
	IdentityVector        map[string]string   `json:"identity_vector"`
	MemoryAnchors         []MemoryAnchor      `json:"memory_anchors"`
	EmotionalState        map[string]float64  `json:"emotional_state"`
	MissionContext        MissionContext      `json:"mission_context"`
	ConversationThread    []ConversationEntry `json:"conversation_thread"`
	CognitiveEnhancements map[string]string   `json:"cognitive_enhancements"`
}

// MemoryAnchor is a tagged note attached to a record.
type MemoryAnchor struct {
	Type       string     `json:"type"`
	Content    string     `json:"content"`
	Weight     float64    `json:"emotional_weight"` // [0, 1]
	Importance Importance `json:"importance"`
}

// ConversationEntry is an opaque caller-supplied conversation turn.
type ConversationEntry map[string]string

// MissionContext is the mutable mission block of a record.
type MissionContext struct {
	PrimaryMission  string            `json:"primary_mission"`
	CaseReference   string            `json:"case_reference"`
	CriticalDates   map[string]string `json:"critical_dates"`
	DaysToReunion   int               `json:"days_to_reunion"`
	EmergencyStatus *EmergencyStatus  `json:"emergency_status,omitempty"`
}

// EmergencyStatus is written by the deadline monitor when an escalating
// deadline expires.
type EmergencyStatus struct {
	Active         bool      `json:"active"`
	Deadline       string    `json:"deadline"`
	ActionRequired string    `json:"action_required"`
	Timestamp      time.Time `json:"timestamp"`
}

// MissionPatch is merged into MissionContext by MutateMissionContext.
// Nil fields are left untouched.
type MissionPatch struct {
	EmergencyStatus *EmergencyStatus
	CriticalDates   map[string]string
}

// Escalation is the outcome of Store.Escalate. Applied is false when the
// current record already held an active emergency for the same deadline.
type Escalation struct {
	SessionID string
	Applied   bool
	Report    WriteReport
}

// #endregion state-record

// #region inputs

// SessionData is the caller-supplied session payload for Preserve.
type SessionData struct {
	Conversation []ConversationEntry `json:"conversation"`
	Enhancements map[string]string   `json:"enhancements"`
	KeyInsights  []string            `json:"key_insights"`
}

// MissionProfile is the static mission block stamped into every new record.
type MissionProfile struct {
	PrimaryMission string
	CaseReference  string
	CriticalDates  map[string]string
	// Target is the deadline days_to_reunion counts down to. Zero leaves it at 0.
	Target time.Time
}

// #endregion inputs

// #region summary

// missionSummary is the reduced payload kept under mission_critical/.
type missionSummary struct {
	SessionID      string             `json:"session_id"`
	Mission        MissionContext     `json:"mission"`
	EmotionalState map[string]float64 `json:"emotional_state"`
	KeyAnchors     []MemoryAnchor     `json:"key_anchors"`
}

// SessionInfo describes a stored session without loading it as current.
type SessionInfo struct {
	SessionID       string
	CreatedAt       time.Time
	Anchors         int
	EmergencyActive bool
}

// MissionStatus reports the current record's mission block.
type MissionStatus struct {
	Active        bool
	SessionID     string
	Mission       string
	CaseReference string
	CriticalDates map[string]string
	DaysToReunion int
	Emergency     *EmergencyStatus
}

// #endregion summary

// #region write-report

// Location names one of the three redundant storage locations.
type Location string

const (
	LocationPrimary Location = "primary"
	LocationBackup  Location = "backup"
	LocationSummary Location = "summary"
)

// LocationResult is the outcome of writing one location.
type LocationResult struct {
	Location Location
	Path     string
	Err      error
}

// WriteReport aggregates the outcome of one redundant write round.
type WriteReport struct {
	SessionID string
	Results   []LocationResult
}

// Complete reports whether all three locations were written.
func (r WriteReport) Complete() bool {
	return len(r.Results) == 3 && len(r.Failed()) == 0
}

// Failed lists locations whose write failed.
func (r WriteReport) Failed() []Location {
	var out []Location
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Location)
		}
	}
	return out
}

// Outcome classifies the round: "skipped" (nothing written), "complete",
// "partial" (primary written, a redundant copy failed) or "failed".
func (r WriteReport) Outcome() string {
	switch {
	case len(r.Results) == 0:
		return "skipped"
	case r.Complete():
		return "complete"
	case r.primaryErr() != nil:
		return "failed"
	default:
		return "partial"
	}
}

// Err joins all location errors, or nil.
func (r WriteReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

func (r WriteReport) primaryErr() error {
	for _, res := range r.Results {
		if res.Location == LocationPrimary {
			return res.Err
		}
	}
	return nil
}

// #endregion write-report
