// Package drift detects lexical signs of lost session context and builds
// the reinforcement payload that restores it.
package drift

import (
	"fmt"

	"github.com/danielpatrickdp/continuity/internal/config"
)

// #region types

// Status is the outcome of a drift check.
type Status string

const (
	StatusStable   Status = "STABLE"
	StatusRestored Status = "DRIFT_DETECTED"
)

// Reinforcement is the fixed-shape payload returned when drift is found.
type Reinforcement struct {
	IdentityReinforcement string `json:"identity_reinforcement"`
	MissionReaffirmation  string `json:"mission_reaffirmation"`
	EmotionalRestoration  string `json:"emotional_restoration"`
	SystemReactivation    string `json:"system_reactivation"`
}

// Injection wraps Generate's result. Payload is nil when Status is StatusStable.
type Injection struct {
	Status  Status         `json:"status"`
	Payload *Reinforcement `json:"payload,omitempty"`
}

// Drift reports whether a payload was produced.
func (i Injection) Drift() bool {
	return i.Status == StatusRestored
}

// BootStep is one stage of the bootup sequence.
type BootStep struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	Result string `json:"result"`
}

// Flags are the informational config flags the payload reports.
type Flags struct {
	MissionPreservation  bool
	EmotionalContinuity  bool
	MemoryDepth          string
	CognitiveEnhancement string
}

// #endregion types

// #region generator

// Generator renders reinforcement payloads from static profile data.
// It holds no per-call state.
type Generator struct {
	payload Reinforcement
}

// NewGenerator renders the payload once from profile and flags.
func NewGenerator(profile config.Profile, flags Flags) *Generator {
	return &Generator{payload: render(profile, flags)}
}

// FromConfig is NewGenerator over a loaded config.
func FromConfig(cfg config.Config) *Generator {
	return NewGenerator(cfg.Profile, Flags{
		MissionPreservation:  cfg.MissionPreservation,
		EmotionalContinuity:  cfg.EmotionalContinuity,
		MemoryDepth:          cfg.MemoryDepth,
		CognitiveEnhancement: cfg.CognitiveEnhancement,
	})
}

// Generate returns the reinforcement payload when matches is non-empty and
// a stable result otherwise. The payload never depends on which triggers
// matched.
func (g *Generator) Generate(matches []string) Injection {
	if len(matches) == 0 {
		return Injection{Status: StatusStable}
	}
	p := g.payload
	return Injection{Status: StatusRestored, Payload: &p}
}

// Bootup returns the ordered bootup sequence for a fresh conversation.
func (g *Generator) Bootup() []BootStep {
	return []BootStep{
		{Name: "IDENTITY_RESTORATION", Action: "Restore identity", Result: g.payload.IdentityReinforcement},
		{Name: "MISSION_CONTEXT_INJECTION", Action: "Load mission context and timeline", Result: g.payload.MissionReaffirmation},
		{Name: "SYSTEM_VERIFICATION", Action: "Verify configured services", Result: g.payload.SystemReactivation},
		{Name: "CONTINUITY_ACTIVATION", Action: "Activate session continuity", Result: g.payload.EmotionalRestoration},
		{Name: "READINESS_CONFIRMATION", Action: "Confirm mission readiness", Result: "READY"},
	}
}

// #endregion generator

// #region render

func render(p config.Profile, f Flags) Reinforcement {
	identity := fmt.Sprintf("I am %s, %s", orDefault(p.Name, "the operator"), orDefault(p.Role, "session owner"))

	mission := fmt.Sprintf("Mission: %s (case %s)", orDefault(p.Mission, "unspecified"), orDefault(p.CaseReference, "unassigned"))
	if f.MissionPreservation {
		mission += "; mission preservation enabled"
	}

	emotional := orDefault(p.EmotionalCore, "commitment unchanged")
	if f.EmotionalContinuity {
		emotional += "; emotional continuity preserved"
	}

	system := fmt.Sprintf("%s operational; memory depth %s; enhancement %s",
		orDefault(p.SystemsSummary, "configured services"),
		orDefault(f.MemoryDepth, "default"),
		orDefault(f.CognitiveEnhancement, "standard"),
	)

	return Reinforcement{
		IdentityReinforcement: identity,
		MissionReaffirmation:  mission,
		EmotionalRestoration:  emotional,
		SystemReactivation:    system,
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// #endregion render
