// Package challenge picks the word a user must include while verifying.
package challenge

import "time"

// Words is the fixed challenge vocabulary.
var Words = []string{
	"sunrise", "gratitude", "strength", "courage", "clarity",
	"focus", "energy", "balance", "purpose", "growth",
	"kindness", "wisdom", "patience", "determination", "peace",
	"joy", "hope", "resilience", "confidence", "commitment",
}

// Daily returns the word for the local calendar day of t. Every alarm on
// the same day shares it.
func Daily(t time.Time) string {
	return Words[t.YearDay()%len(Words)]
}
