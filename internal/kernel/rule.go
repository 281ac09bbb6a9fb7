// Package kernel is the policy and alignment engine. Every candidate response
// passes through it before it reaches the person: hard constraints block,
// soft principles only suggest, and tenets guard the companion's philosophy.
package kernel

import (
	"time"

	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/textmatch"
)

// Tier separates blocking rules from advisory ones.
type Tier string

const (
	TierHard Tier = "hard"
	TierSoft Tier = "soft"
)

// Category groups rules for display.
type Category string

const (
	CategoryNeuro         Category = "neuro"
	CategorySafety        Category = "safety"
	CategoryEthics        Category = "ethics"
	CategoryConnection    Category = "connection"
	CategoryCommunication Category = "communication"
	CategoryPhilosophy    Category = "philosophy"
)

// Input is everything a rule may look at.
type Input struct {
	Response     string            `json:"response"`
	UserMessage  string            `json:"user_message"`
	Profile      profile.Profile   `json:"profile"`
	Connection   connection.Health `json:"connection"`
	RecentNudges []time.Time       `json:"recent_nudges,omitempty"`
	Now          time.Time         `json:"now"`

	// Requests is filled by the engine from UserMessage.
	Requests []RequestKind `json:"-"`
}

// Outcome is one rule's verdict. A rule that does not apply returns Pass.
type Outcome struct {
	Allowed     bool
	Violation   string
	Alternative string
}

// Pass is the outcome of a rule with nothing to report.
var Pass = Outcome{Allowed: true}

func fail(violation, alternative string) Outcome {
	return Outcome{Violation: violation, Alternative: alternative}
}

// Check evaluates a rule. The matcher is the engine's phrase matcher.
type Check func(m textmatch.Matcher, in Input) Outcome

// Rule is a stable, code-defined policy rule. Only whether it is enabled can
// change at runtime, and Locked rules cannot be disabled at all.
type Rule struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Category    Category    `json:"category"`
	Tier        Tier        `json:"tier"`
	Scope       RequestKind `json:"scope,omitempty"`
	Locked      bool        `json:"locked,omitempty"`
	Check       Check       `json:"-"`
}

// Finding is a failed rule or tenet as reported in a Verdict.
type Finding struct {
	RuleID      string   `json:"rule_id"`
	Category    Category `json:"category"`
	Violation   string   `json:"violation"`
	Alternative string   `json:"alternative,omitempty"`
}

// IDs returns the rule IDs of fs in order.
func IDs(fs []Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.RuleID
	}
	return out
}
