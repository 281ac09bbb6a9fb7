// Package textmatch isolates the literal phrase matching used by the policy
// kernel, the connection tracker and the pacing detector, so a semantic
// classifier can replace it without touching rule orchestration.
package textmatch

import "strings"

// Matcher reports which of the given phrases occur in text.
type Matcher interface {
	// First returns the first phrase found in text, in phrase order.
	First(text string, phrases []string) (string, bool)
	// All returns every phrase found in text, in phrase order.
	All(text string, phrases []string) []string
}

// Literal is a case-insensitive substring Matcher. Typographic apostrophes
// and runs of whitespace are normalised before matching.
type Literal struct{}

var normalizer = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`)

// Normalize lowercases text, folds smart quotes and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(normalizer.Replace(text))), " ")
}

func (Literal) First(text string, phrases []string) (string, bool) {
	norm := Normalize(text)
	for _, p := range phrases {
		if p != "" && strings.Contains(norm, Normalize(p)) {
			return p, true
		}
	}
	return "", false
}

func (Literal) All(text string, phrases []string) []string {
	norm := Normalize(text)
	var found []string
	for _, p := range phrases {
		if p != "" && strings.Contains(norm, Normalize(p)) {
			found = append(found, p)
		}
	}
	return found
}

// Contains is shorthand for m.First(text, phrases) reporting only presence.
func Contains(m Matcher, text string, phrases ...string) bool {
	_, ok := m.First(text, phrases)
	return ok
}
