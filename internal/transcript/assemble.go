// Package transcript assembles streaming recognizer results into one utterance.
package transcript

import "strings"

// Assemble joins final segments, then a trailing partial that no final has
// superseded yet, collapsing whitespace.
func Assemble(finalSegments []string, partial string) string {
	parts := make([]string, 0, len(finalSegments)+1)
	parts = append(parts, finalSegments...)
	if strings.TrimSpace(partial) != "" {
		parts = append(parts, partial)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Assembler accumulates recognizer results for one recording attempt.
// It is not safe for concurrent use.
type Assembler struct {
	finals      []string
	confidences []float64
	partial     string
}

// Add records one result. A final result clears the pending partial.
func (a *Assembler) Add(text string, final bool, confidence float64) {
	text = strings.TrimSpace(text)
	if !final {
		a.partial = text
		return
	}
	a.partial = ""
	if text == "" {
		return
	}
	a.finals = append(a.finals, text)
	if confidence > 0 {
		a.confidences = append(a.confidences, confidence)
	}
}

// Text returns the assembled transcript.
func (a *Assembler) Text() string {
	return Assemble(a.finals, a.partial)
}

// Segments returns a copy of the final segments.
func (a *Assembler) Segments() []string {
	return append([]string(nil), a.finals...)
}

// Confidence is the mean confidence of final results that reported one.
func (a *Assembler) Confidence() float64 {
	if len(a.confidences) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range a.confidences {
		sum += c
	}
	return sum / float64(len(a.confidences))
}

// Reset clears the assembler for the next attempt.
func (a *Assembler) Reset() {
	a.finals = nil
	a.confidences = nil
	a.partial = ""
}
