// Package continuity folds each finished chapter into the running state
// carried to the next chapter request.
package continuity

// State is the rolling summary plus the phrases later chapters must avoid.
// ForbiddenPhrases is insertion-ordered and duplicate-free.
type State struct {
	Summary          string   `json:"summary"`
	ForbiddenPhrases []string `json:"forbiddenPhrases"`
}

// New starts a run from the outline's overall summary.
func New(summary string) State {
	return State{Summary: summary, ForbiddenPhrases: []string{}}
}

// Apply replaces the summary and unions newPhrases into the forbidden set.
// Existing entries keep their order; unseen phrases are appended in the
// order received. Matching is exact and case-sensitive. The input state is
// not modified.
func Apply(s State, newSummary string, newPhrases []string) State {
	seen := make(map[string]struct{}, len(s.ForbiddenPhrases)+len(newPhrases))
	phrases := make([]string, 0, len(s.ForbiddenPhrases)+len(newPhrases))

	for _, p := range s.ForbiddenPhrases {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		phrases = append(phrases, p)
	}
	for _, p := range newPhrases {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		phrases = append(phrases, p)
	}

	return State{Summary: newSummary, ForbiddenPhrases: phrases}
}
