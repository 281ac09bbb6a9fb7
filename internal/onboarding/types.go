package onboarding

import (
	"time"

	"github.com/kalambet/attune/internal/profile"
)

// QuestionType is how a question is answered.
type QuestionType string

const (
	TypeSingle QuestionType = "single"
	TypeMulti  QuestionType = "multi"
	TypeScalar QuestionType = "scalar"
	TypeOpen   QuestionType = "open"
)

// Question is an immutable catalog entry.
type Question struct {
	ID       string        `json:"id" yaml:"id"`
	Prompt   string        `json:"prompt" yaml:"prompt"`
	Type     QuestionType  `json:"type" yaml:"type"`
	Options  []Option      `json:"options,omitempty" yaml:"options"`
	Tier     profile.Tier  `json:"tier" yaml:"tier"`
	Requires []string      `json:"requires,omitempty" yaml:"requires"`
	Captures profile.Field `json:"captures,omitempty" yaml:"captures"`
}

// Option is one selectable answer. Indicates is the partial profile the
// option implies; scalar questions use the numeric point as Value.
type Option struct {
	Value     string        `json:"value" yaml:"value"`
	Label     string        `json:"label" yaml:"label"`
	Indicates profile.Patch `json:"indicates,omitempty" yaml:"indicates"`
}

// Option returns the option with the given value.
func (q Question) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// SelfAwareness is the estimated self-awareness level of the person.
type SelfAwareness string

const (
	AwarenessLow      SelfAwareness = "low"
	AwarenessModerate SelfAwareness = "moderate"
	AwarenessHigh     SelfAwareness = "high"
)

// Progress is the mutable half of onboarding: which questions were answered
// and how deep the interview may go.
type Progress struct {
	Answered      []string      `json:"answered"`
	Depth         profile.Tier  `json:"depth"`
	SelfAwareness SelfAwareness `json:"self_awareness"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// NewProgress returns the starting progress record.
func NewProgress() Progress {
	return Progress{
		Answered:      []string{},
		Depth:         profile.TierStandard,
		SelfAwareness: AwarenessModerate,
	}
}

// HasAnswered reports whether id is in the answered set.
func (p Progress) HasAnswered(id string) bool {
	for _, a := range p.Answered {
		if a == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of p.
func (p Progress) Clone() Progress {
	cp := p
	cp.Answered = append([]string{}, p.Answered...)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Answer is a person's response to one question. Selected holds option
// values for single and multi questions; Scalar holds the chosen point;
// Text holds free text for open questions.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected,omitempty"`
	Scalar     *int     `json:"scalar,omitempty"`
	Text       string   `json:"text,omitempty"`
}
