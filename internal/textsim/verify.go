package textsim

import (
	"fmt"
	"strings"
)

// DefaultMinSimilarity is the per-line pass threshold used when none is configured.
const DefaultMinSimilarity = 0.72

const challengePassScore = 0.9

// LineScore pairs one required line with its similarity to the transcript.
type LineScore struct {
	Line  string  `json:"line"`
	Score float64 `json:"score"`
}

// Scores holds every score produced by one verification.
type Scores struct {
	Affirmations []LineScore `json:"affirmations,omitempty"`
	Goals        []LineScore `json:"goals,omitempty"`
	Challenge    *float64    `json:"challenge,omitempty"` // nil when no challenge word was required
	Overall      float64     `json:"overall"`
}

// Result is the outcome of one Verify call.
type Result struct {
	Passed             bool     `json:"passed"`
	AffirmationsPassed bool     `json:"affirmations_passed"`
	GoalsPassed        bool     `json:"goals_passed"`
	ChallengePassed    bool     `json:"challenge_passed"`
	FailedAffirmations []string `json:"failed_affirmations,omitempty"`
	FailedGoals        []string `json:"failed_goals,omitempty"`
	Scores             Scores   `json:"scores"`
	Details            string   `json:"details"`
}

// Request is the input to Verify. Only the lines of the active phase are set.
type Request struct {
	Transcript    string
	Affirmations  []string
	Goals         []string
	ChallengeWord string
	MinSimilarity float64
}

// Verify scores the transcript against every required line and the optional
// challenge word.
func Verify(req Request) Result {
	minSimilarity := req.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	transcript := Normalize(req.Transcript)

	affirmations, failedAffirmations := scoreLines(req.Affirmations, transcript, minSimilarity)
	goals, failedGoals := scoreLines(req.Goals, transcript, minSimilarity)

	result := Result{
		AffirmationsPassed: len(failedAffirmations) == 0,
		GoalsPassed:        len(failedGoals) == 0,
		ChallengePassed:    true,
		FailedAffirmations: failedAffirmations,
		FailedGoals:        failedGoals,
		Scores: Scores{
			Affirmations: affirmations,
			Goals:        goals,
		},
	}

	challengeTerm := 1.0
	word := Normalize(req.ChallengeWord)
	if word != "" {
		score := 0.0
		if strings.Contains(transcript, word) {
			score = 1.0
		}
		result.Scores.Challenge = &score
		result.ChallengePassed = score >= challengePassScore
		challengeTerm = score
	}

	result.Scores.Overall = 0.4*meanScore(affirmations) + 0.4*meanScore(goals) + 0.2*challengeTerm
	result.Passed = result.AffirmationsPassed && result.GoalsPassed && result.ChallengePassed
	result.Details = details(result, strings.TrimSpace(req.ChallengeWord))
	return result
}

func scoreLines(lines []string, transcript string, minSimilarity float64) ([]LineScore, []string) {
	scores := make([]LineScore, 0, len(lines))
	var failed []string
	for _, line := range lines {
		score := Similarity(line, transcript)
		scores = append(scores, LineScore{Line: line, Score: score})
		if score < minSimilarity {
			failed = append(failed, line)
		}
	}
	return scores, failed
}

// meanScore treats a category with no lines as fully satisfied.
func meanScore(scores []LineScore) float64 {
	if len(scores) == 0 {
		return 1
	}
	total := 0.0
	for _, s := range scores {
		total += s.Score
	}
	return total / float64(len(scores))
}

func details(result Result, challengeWord string) string {
	var parts []string
	if !result.AffirmationsPassed {
		parts = append(parts, fmt.Sprintf("Missing or unclear affirmations: %s.", strings.Join(result.FailedAffirmations, ", ")))
	}
	if !result.GoalsPassed {
		parts = append(parts, fmt.Sprintf("Missing or unclear goals: %s.", strings.Join(result.FailedGoals, ", ")))
	}
	if !result.ChallengePassed {
		parts = append(parts, fmt.Sprintf("Challenge word '%s' not detected.", challengeWord))
	}
	if len(parts) == 0 {
		return "Verification successful."
	}
	return strings.Join(parts, " ")
}
