package onboarding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/attune/internal/profile"
)

// ConfidenceStep is added to the profile confidence the first time a question
// is answered. Answering the same question again, even with a different
// choice, adds nothing, so confidence counts distinct questions rather than
// recorded answers.
const ConfidenceStep = 8

// WelcomeQuestionID is the question whose answer sets the interview depth.
const WelcomeQuestionID = "welcome_comfort"

var (
	// ErrUnknownQuestion is returned when an answer names no catalog question.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrInvalidAnswer is returned when an answer does not fit its question.
	ErrInvalidAnswer = errors.New("invalid answer")
)

// RecordAnswer folds answer into a copy of p and prog and returns both.
// Each selected option's patch is merged with its field's strategy; open
// answers are split on commas and unioned into the question's captured
// field. Confidence grows by ConfidenceStep the first time a question is
// answered, so re-submitting an answer changes nothing.
func RecordAnswer(q Question, answer Answer, p profile.Profile, prog Progress, now time.Time) (profile.Profile, Progress, error) {
	patch, err := patchFor(q, answer)
	if err != nil {
		return p, prog, err
	}

	next := p.Clone()
	// Catalog patches are validated at load; open-text captures are free text.
	_ = next.Apply(patch)

	np := prog.Clone()
	if np.StartedAt.IsZero() {
		np.StartedAt = now
	}
	if q.ID == WelcomeQuestionID && len(answer.Selected) > 0 {
		switch answer.Selected[0] {
		case "excited":
			np.Depth = profile.TierDeep
			np.SelfAwareness = AwarenessHigh
		case "unsure":
			np.Depth = profile.TierBasic
		}
	}
	if !np.HasAnswered(q.ID) {
		np.Answered = append(np.Answered, q.ID)
		next.Confidence = min(next.Confidence+ConfidenceStep, profile.MaxConfidence)
	}
	next.LastUpdated = now
	return next, np, nil
}

// patchFor resolves the answer to the profile patch it implies.
func patchFor(q Question, answer Answer) (profile.Patch, error) {
	switch q.Type {
	case TypeSingle:
		if len(answer.Selected) != 1 {
			return nil, fmt.Errorf("%w: %s takes exactly one option", ErrInvalidAnswer, q.ID)
		}
		o, ok := q.Option(answer.Selected[0])
		if !ok {
			return nil, fmt.Errorf("%w: %s has no option %q", ErrInvalidAnswer, q.ID, answer.Selected[0])
		}
		return o.Indicates, nil

	case TypeMulti:
		if len(answer.Selected) == 0 {
			return nil, fmt.Errorf("%w: %s needs at least one option", ErrInvalidAnswer, q.ID)
		}
		var patch profile.Patch
		for _, v := range answer.Selected {
			o, ok := q.Option(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no option %q", ErrInvalidAnswer, q.ID, v)
			}
			patch = append(patch, o.Indicates...)
		}
		return patch, nil

	case TypeScalar:
		var value string
		switch {
		case answer.Scalar != nil:
			value = strconv.Itoa(*answer.Scalar)
		case len(answer.Selected) == 1:
			value = answer.Selected[0]
		default:
			return nil, fmt.Errorf("%w: %s needs a number", ErrInvalidAnswer, q.ID)
		}
		o, ok := q.Option(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s is out of range for %s", ErrInvalidAnswer, value, q.ID)
		}
		return o.Indicates, nil

	case TypeOpen:
		if q.Captures == "" {
			return nil, nil
		}
		var items []string
		for _, part := range strings.Split(answer.Text, ",") {
			if s := strings.TrimSpace(part); s != "" {
				items = append(items, s)
			}
		}
		if len(items) == 0 {
			return nil, nil
		}
		return profile.Patch{{Field: q.Captures, Values: items}}, nil
	}
	return nil, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidAnswer, q.ID, q.Type)
}

// Complete marks onboarding finished: the profile's depth is frozen to the
// depth reached and the completion flag is set. The profile is otherwise
// untouched.
func Complete(p profile.Profile, prog Progress, now time.Time) (profile.Profile, Progress) {
	next := p.Clone()
	next.OnboardingComplete = true
	next.OnboardingDepth = prog.Depth
	next.LastUpdated = now

	np := prog.Clone()
	if np.CompletedAt == nil {
		t := now
		np.CompletedAt = &t
	}
	return next, np
}
