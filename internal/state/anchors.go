package state

import "fmt"

// extractAnchors builds the fixed anchor template followed by one MEDIUM
// anchor per caller insight.
func extractAnchors(mission MissionProfile, insights []string) []MemoryAnchor {
	anchors := []MemoryAnchor{
		{
			Type:       "mission_anchor",
			Content:    fmt.Sprintf("Primary mission: %s", mission.PrimaryMission),
			Weight:     1.0,
			Importance: ImportanceCritical,
		},
		{
			Type:       "case_anchor",
			Content:    fmt.Sprintf("Case %s", mission.CaseReference),
			Weight:     0.9,
			Importance: ImportanceHigh,
		},
		{
			Type:       "timeline_anchor",
			Content:    fmt.Sprintf("%d critical dates tracked", len(mission.CriticalDates)),
			Weight:     0.95,
			Importance: ImportanceCritical,
		},
	}
	for _, insight := range insights {
		anchors = append(anchors, MemoryAnchor{
			Type:       "insight_anchor",
			Content:    insight,
			Weight:     0.7,
			Importance: ImportanceMedium,
		})
	}
	return anchors
}
