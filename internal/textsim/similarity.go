package textsim

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	weightTokens  = 0.3
	weightChars   = 0.2
	weightBigrams = 0.3
	weightPhrases = 0.2
)

// Similarity blends token, character, bigram, and key-phrase closeness of
// expected and actual into a score in [0,1].
func Similarity(expected, actual string) float64 {
	expected = strings.TrimSpace(strings.ToLower(expected))
	actual = strings.TrimSpace(strings.ToLower(actual))

	return weightTokens*Jaccard(Tokenize(expected), Tokenize(actual)) +
		weightChars*LevenshteinRatio(expected, actual) +
		weightBigrams*BigramSimilarity(expected, actual) +
		weightPhrases*Jaccard(KeyPhrases(expected), KeyPhrases(actual))
}

// Jaccard returns |a∩b|/|a∪b| over the distinct elements. Two empty sets are
// identical and score 1.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}

	intersection := 0
	for item := range setA {
		if _, ok := setB[item]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// LevenshteinRatio returns 1 - distance/maxLen measured in runes.
func LevenshteinRatio(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// BigramSimilarity is the Dice coefficient over character bigrams with
// whitespace removed.
func BigramSimilarity(a, b string) float64 {
	first := []rune(stripSpace(a))
	second := []rune(stripSpace(b))
	if string(first) == string(second) {
		return 1
	}
	if len(first) < 2 || len(second) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(first)-1)
	for i := 0; i < len(first)-1; i++ {
		counts[[2]rune{first[i], first[i+1]}]++
	}

	intersection := 0
	for i := 0; i < len(second)-1; i++ {
		bigram := [2]rune{second[i], second[i+1]}
		if counts[bigram] > 0 {
			counts[bigram]--
			intersection++
		}
	}
	return 2 * float64(intersection) / float64(len(first)+len(second)-2)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
