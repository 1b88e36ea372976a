// Package textsim normalizes spoken text and scores it against target lines.
package textsim

import (
	"regexp"
	"strings"
)

var (
	punctuationPattern = regexp.MustCompile(`[^\w\s]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	fillerPattern      = regexp.MustCompile(`\b(?:um|uh|er|ah|like|you know|i mean|sort of|kind of|basically|actually|literally)\b`)
)

var articles = map[string]struct{}{"a": {}, "an": {}, "the": {}}

type suffixRule struct {
	suffix      string
	replacement string
}

// Applied in order; the first matching suffix wins.
var lemmaRules = []suffixRule{
	{"ies", "y"},
	{"ves", "f"},
	{"oes", "o"},
	{"ses", "s"},
	{"shes", "sh"},
	{"ches", "ch"},
	{"xes", "x"},
	{"zes", "z"},
	{"ied", "y"},
	{"ing", ""},
	{"ed", ""},
	{"s", ""},
}

// Normalize lowercases text, turns punctuation into spaces, drops filler words,
// and collapses whitespace.
func Normalize(text string) string {
	normalized := strings.TrimSpace(strings.ToLower(text))
	normalized = punctuationPattern.ReplaceAllString(normalized, " ")
	normalized = whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = fillerPattern.ReplaceAllString(normalized, "")
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(normalized, " "))
}

// Tokenize normalizes text and splits it into words, dropping articles.
func Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, skip := articles[field]; skip {
			continue
		}
		tokens = append(tokens, field)
	}
	return tokens
}

// Lemmatize strips one plural or tense suffix from word.
func Lemmatize(word string) string {
	for _, rule := range lemmaRules {
		if strings.HasSuffix(word, rule.suffix) {
			return strings.TrimSuffix(word, rule.suffix) + rule.replacement
		}
	}
	return word
}

// KeyPhrases tokenizes text and lemmatizes every token.
func KeyPhrases(text string) []string {
	tokens := Tokenize(text)
	for i, token := range tokens {
		tokens[i] = Lemmatize(token)
	}
	return tokens
}
