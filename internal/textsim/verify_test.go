package textsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAffirmationPasses(t *testing.T) {
	result := Verify(Request{
		Transcript:    "I keep my promises to myself",
		Affirmations:  []string{"I keep promises to myself"},
		MinSimilarity: 0.72,
	})

	require.True(t, result.Passed)
	require.True(t, result.AffirmationsPassed)
	require.True(t, result.GoalsPassed)
	require.Nil(t, result.Scores.Challenge)
	require.Empty(t, result.FailedAffirmations)
	require.Equal(t, "Verification successful.", result.Details)
	require.Len(t, result.Scores.Affirmations, 1)
	// Unrequired goals and challenge count as satisfied.
	require.InDelta(t, 0.4*result.Scores.Affirmations[0].Score+0.6, result.Scores.Overall, 1e-9)
}

func TestVerifyMissingChallengeWordFails(t *testing.T) {
	result := Verify(Request{
		Transcript:    "Run five kilometers before work",
		Goals:         []string{"Run five kilometers before work"},
		ChallengeWord: "sunrise",
		MinSimilarity: 0.72,
	})

	require.True(t, result.GoalsPassed)
	require.False(t, result.ChallengePassed)
	require.False(t, result.Passed)
	require.NotNil(t, result.Scores.Challenge)
	require.InDelta(t, 0.0, *result.Scores.Challenge, 1e-9)
	require.Contains(t, result.Details, "Challenge word 'sunrise' not detected.")
	require.InDelta(t, 0.8, result.Scores.Overall, 1e-9)
}

func TestVerifyChallengeWordDetected(t *testing.T) {
	result := Verify(Request{
		Transcript:    "Greet the sunrise with gratitude!",
		Goals:         []string{"Greet the sunrise with gratitude"},
		ChallengeWord: "Sunrise",
	})

	require.True(t, result.Passed)
	require.True(t, result.ChallengePassed)
	require.InDelta(t, 1.0, *result.Scores.Challenge, 1e-9)
}

func TestVerifyReportsFailedLines(t *testing.T) {
	result := Verify(Request{
		Transcript:   "the weather is nice today",
		Affirmations: []string{"I keep promises to myself", "I make progress even when it is hard"},
	})

	require.False(t, result.Passed)
	require.False(t, result.AffirmationsPassed)
	require.Equal(t, []string{"I keep promises to myself", "I make progress even when it is hard"}, result.FailedAffirmations)
	require.Equal(t,
		"Missing or unclear affirmations: I keep promises to myself, I make progress even when it is hard.",
		result.Details,
	)
}

func TestVerifyDefaultsThreshold(t *testing.T) {
	// 0.65 blend: below the default threshold.
	result := Verify(Request{
		Transcript: "run five kilometers before work and remember sunrise",
		Goals:      []string{"Run five kilometers before work"},
	})
	require.False(t, result.Passed)
	require.Equal(t, []string{"Run five kilometers before work"}, result.FailedGoals)
}
