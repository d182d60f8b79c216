package drift

// #region imports
import (
	"sort"
	"strings"
)

// #endregion imports

// #region vocabulary

// DefaultTriggers is the phrase vocabulary that signals lost context.
var DefaultTriggers = []string{
	"who am i",
	"what's my purpose",
	"remind me",
	"need context",
	"not sure about",
	"let me check",
	"could you remind",
	"i don't recall",
	"i'm not sure",
	"help me understand",
	"what's the context",
	"identity confusion",
	"mission uncertainty",
	"system gaps",
	"emotional disconnect",
	"context loss",
}

// #endregion vocabulary

// #region detector

// Detector matches text against a fixed phrase vocabulary.
type Detector struct {
	triggers []string
}

// NewDetector builds a detector. A nil or empty vocabulary uses DefaultTriggers.
// Triggers are lowercased and deduplicated.
func NewDetector(triggers []string) *Detector {
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}
	seen := make(map[string]bool, len(triggers))
	norm := make([]string, 0, len(triggers))
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		norm = append(norm, t)
	}
	return &Detector{triggers: norm}
}

// Detect returns the matched triggers, sorted, or nil when none match.
// Matching is case-insensitive substring containment.
func (d *Detector) Detect(text string) []string {
	lower := strings.ToLower(normalizeApostrophes(text))
	var found []string
	for _, t := range d.triggers {
		if strings.Contains(lower, t) {
			found = append(found, t)
		}
	}
	sort.Strings(found)
	return found
}

// normalizeApostrophes folds typographic apostrophes so "I don’t recall"
// matches "i don't recall".
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

// #endregion detector
