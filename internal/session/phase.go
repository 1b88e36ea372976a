package session

import (
	"fmt"
	"strings"

	"github.com/rbright/wakeproof/internal/textsim"
)

// PhaseKind names one verification category.
type PhaseKind string

const (
	PhaseAffirmations PhaseKind = "affirmations"
	PhaseGoals        PhaseKind = "goals"
	PhaseChallenge    PhaseKind = "challenge"
)

// Lines are the user's configured target lines.
type Lines struct {
	Affirmations []string
	Goals        []string
}

// Requirements are the per-alarm flags carried by a fired payload.
type Requirements struct {
	Affirmations bool
	Goals        bool
	Challenge    bool
}

// Phase is one step of the ordered verification sequence.
type Phase struct {
	Kind          PhaseKind
	Lines         []string
	ChallengeWord string
}

// Request scopes verification to this phase's lines only.
func (p Phase) Request(transcript string, minSimilarity float64) textsim.Request {
	req := textsim.Request{
		Transcript:    transcript,
		ChallengeWord: p.ChallengeWord,
		MinSimilarity: minSimilarity,
	}
	switch p.Kind {
	case PhaseAffirmations:
		req.Affirmations = p.Lines
	case PhaseGoals:
		req.Goals = p.Lines
	}
	return req
}

func (p Phase) empty() bool {
	return len(p.Lines) == 0 && p.ChallengeWord == ""
}

// BuildPhases returns the ordered phase sequence for req. The challenge word is
// checked in the last phase, or gets a phase of its own when nothing else is
// required. Phases with nothing to
// verify are dropped and reported as warnings.
func BuildPhases(req Requirements, lines Lines, challengeWord string) ([]Phase, []string) {
	var phases []Phase
	if req.Affirmations {
		phases = append(phases, Phase{Kind: PhaseAffirmations, Lines: cleanLines(lines.Affirmations)})
	}
	if req.Goals {
		phases = append(phases, Phase{Kind: PhaseGoals, Lines: cleanLines(lines.Goals)})
	}

	word := strings.TrimSpace(challengeWord)
	if req.Challenge && word != "" {
		// Goals is always last when present.
		if len(phases) == 0 {
			phases = append(phases, Phase{Kind: PhaseChallenge})
		}
		phases[len(phases)-1].ChallengeWord = word
	}

	var warnings []string
	kept := phases[:0]
	for _, phase := range phases {
		if phase.empty() {
			warnings = append(warnings, fmt.Sprintf("%s phase skipped: no lines configured", phase.Kind))
			continue
		}
		kept = append(kept, phase)
	}
	return kept, warnings
}

func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
