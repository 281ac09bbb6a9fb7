package onboarding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/attune/internal/textmatch"
)

// ParseAnswer interprets a free-text chat message as an answer to q.
// Options may be named by value, by label or by their 1-based position;
// multi-select answers are separated by commas. Scalar questions take the
// first number in the text. Open questions take the text as is.
func ParseAnswer(q Question, text string) (Answer, error) {
	a := Answer{QuestionID: q.ID}
	text = strings.TrimSpace(text)

	switch q.Type {
	case TypeOpen:
		a.Text = text
		return a, nil

	case TypeScalar:
		for _, tok := range strings.FieldsFunc(text, func(r rune) bool { return r < '0' || r > '9' }) {
			n, err := strconv.Atoi(tok)
			if err != nil {
				continue
			}
			if _, ok := q.Option(tok); ok {
				a.Scalar = &n
				return a, nil
			}
		}
		if v, ok := matchOption(q, text, false); ok {
			n, _ := strconv.Atoi(v)
			a.Scalar = &n
			return a, nil
		}
		return a, fmt.Errorf("%w: expected a number for %s", ErrInvalidAnswer, q.ID)

	case TypeSingle:
		if v, ok := matchOption(q, text, true); ok {
			a.Selected = []string{v}
			return a, nil
		}
		return a, fmt.Errorf("%w: %q matches no option of %s", ErrInvalidAnswer, text, q.ID)

	case TypeMulti:
		seen := map[string]bool{}
		for _, part := range strings.Split(text, ",") {
			v, ok := matchOption(q, part, true)
			if !ok || seen[v] {
				continue
			}
			seen[v] = true
			a.Selected = append(a.Selected, v)
		}
		if len(a.Selected) == 0 {
			return a, fmt.Errorf("%w: %q matches no option of %s", ErrInvalidAnswer, text, q.ID)
		}
		return a, nil
	}
	return a, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidAnswer, q.ID, q.Type)
}

// matchOption resolves one fragment of text to an option value. A bare
// number is read as a position when byPosition is set. Exact value or label
// matches come next, then a single option whose label appears in the text.
func matchOption(q Question, text string, byPosition bool) (string, bool) {
	norm := textmatch.Normalize(strings.Trim(text, " .!"))
	if norm == "" {
		return "", false
	}
	if byPosition {
		if n, err := strconv.Atoi(norm); err == nil && n >= 1 && n <= len(q.Options) {
			return q.Options[n-1].Value, true
		}
	}
	for _, o := range q.Options {
		if norm == textmatch.Normalize(o.Value) ||
			norm == textmatch.Normalize(strings.ReplaceAll(o.Value, "_", " ")) ||
			norm == textmatch.Normalize(o.Label) {
			return o.Value, true
		}
	}

	var m textmatch.Literal
	var hit string
	for _, o := range q.Options {
		if textmatch.Contains(m, norm, o.Label) {
			if hit != "" {
				return "", false
			}
			hit = o.Value
		}
	}
	return hit, hit != ""
}
