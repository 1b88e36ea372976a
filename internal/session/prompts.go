package session

import "fmt"

const (
	greeting          = "Good morning."
	promptEncourager  = "Nice, last one. Keep going."
	promptSuccess     = "Done. You kept your promise today."
	promptRetry       = "Almost there. Let's try that again."
	promptRecording   = "Listening."
	promptSnoozed     = "Snoozed."
	promptDismissed   = "Alarm dismissed."
	msgPlayback       = "Playback detected. Please speak the words yourself."
	msgLowEnergy      = "Unable to detect clear speech. Please speak louder."
	msgChallenge      = "Challenge word not detected. Please include it."
	msgRecognition    = "Speech recognition failed. Please try again."
	msgNoAudio        = "No audio captured. Please try again."
	msgSnoozeExceeded = "No snoozes left. Finish verification to dismiss."
)

// phasePrompt tells the user what to say for phases[index].
func phasePrompt(phases []Phase, index int) string {
	if index < 0 || index >= len(phases) {
		return promptSuccess
	}

	phase := phases[index]
	var text string
	switch phase.Kind {
	case PhaseAffirmations:
		text = "Say your affirmations now."
	case PhaseGoals:
		text = "Now say your goals."
	default:
		text = fmt.Sprintf("Say the word '%s'.", phase.ChallengeWord)
	}
	if phase.Kind != PhaseChallenge && phase.ChallengeWord != "" {
		text += fmt.Sprintf(" Include the word '%s'.", phase.ChallengeWord)
	}

	switch {
	case index == 0:
		return greeting + " " + text
	case index == len(phases)-1:
		return promptEncourager + " " + text
	default:
		return text
	}
}
