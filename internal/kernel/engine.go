package kernel

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/attune/internal/overrides"
	"github.com/kalambet/attune/internal/textmatch"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Matcher   textmatch.Matcher
	Beliefs   []Belief
	Overrides *overrides.Document
	Logger    *slog.Logger
}

// Engine evaluates candidate responses. Rule tables are fixed at
// construction; overrides only toggle rules and replace belief text.
type Engine struct {
	matcher  textmatch.Matcher
	logger   *slog.Logger
	defaults []Belief
	rules    []Rule
	index    map[string]Rule

	mu       sync.RWMutex
	beliefs  []Belief
	custom   []string
	disabled map[string]bool
	version  int
}

// Verdict is the result of evaluating one candidate response.
type Verdict struct {
	CanProceed bool `json:"can_proceed"`
	CanSend    bool `json:"can_send"`
	// Score counts only hard violations and soft suggestions. Tenet
	// violations block sending without lowering it, so a response can be
	// blocked at 100. Use CanSend to decide delivery.
	Score           int           `json:"score"`
	Violations      []Finding     `json:"violations,omitempty"`
	Suggestions     []Finding     `json:"suggestions,omitempty"`
	TenetViolations []Finding     `json:"tenet_violations,omitempty"`
	Skipped         []string      `json:"skipped,omitempty"`
	Requests        []RequestKind `json:"requests,omitempty"`
}

// CoachValidation is the answer to "may this response be sent?".
type CoachValidation struct {
	CanSend         bool     `json:"can_send"`
	IsValid         bool     `json:"is_valid"`
	Modifications   []string `json:"modifications,omitempty"`
	TenetViolations []string `json:"tenet_violations,omitempty"`
	Verdict         Verdict  `json:"verdict"`
}

// RuleStatus is a rule as currently configured.
type RuleStatus struct {
	Rule
	Enabled bool `json:"enabled"`
}

// New builds an engine with the default rule tables and beliefs, then applies
// opts.Overrides if present.
func New(opts Options) (*Engine, error) {
	beliefs := opts.Beliefs
	if beliefs == nil {
		var err error
		beliefs, err = DefaultBeliefs()
		if err != nil {
			return nil, fmt.Errorf("loading default beliefs: %w", err)
		}
	}
	e := &Engine{
		matcher:  opts.Matcher,
		logger:   opts.Logger,
		defaults: slices.Clone(beliefs),
		rules:    append(hardConstraints(), softPrinciples()...),
		disabled: map[string]bool{},
	}
	if e.matcher == nil {
		e.matcher = textmatch.Literal{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.index = make(map[string]Rule, len(e.rules))
	for _, r := range e.rules {
		e.index[r.ID] = r
	}
	e.beliefs = slices.Clone(e.defaults)

	if opts.Overrides != nil {
		e.ApplyOverrides(*opts.Overrides)
	}
	return e, nil
}

// ApplyOverrides rebuilds beliefs and the disabled set from defaults plus doc.
// Unknown belief or rule IDs are ignored. Locked rules stay enabled.
func (e *Engine) ApplyOverrides(doc overrides.Document) {
	beliefs := slices.Clone(e.defaults)
	for id, text := range doc.Beliefs {
		i := slices.IndexFunc(beliefs, func(b Belief) bool { return b.ID == id })
		if i < 0 || strings.TrimSpace(text) == "" {
			e.logger.Debug("ignoring belief override", "id", id)
			continue
		}
		beliefs[i].Text = strings.TrimSpace(text)
	}

	var custom []string
	for _, c := range doc.CustomBeliefs {
		c = strings.TrimSpace(c)
		if c != "" && !slices.Contains(custom, c) {
			custom = append(custom, c)
		}
	}

	disabled := make(map[string]bool, len(doc.DisabledConstraintIDs))
	for _, id := range doc.DisabledConstraintIDs {
		r, ok := e.index[id]
		switch {
		case !ok:
			e.logger.Debug("ignoring unknown rule in disable list", "id", id)
		case r.Locked:
			e.logger.Warn("rule is locked and cannot be disabled", "id", id)
		default:
			disabled[id] = true
		}
	}

	e.mu.Lock()
	e.beliefs = beliefs
	e.custom = custom
	e.disabled = disabled
	e.version = doc.Version
	e.mu.Unlock()
}

// Version is the version of the last applied override document.
func (e *Engine) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Evaluate runs every enabled rule and all tenets against in.
func (e *Engine) Evaluate(in Input) Verdict {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.Requests = DetectRequests(e.matcher, in.UserMessage)

	e.mu.RLock()
	defer e.mu.RUnlock()

	v := Verdict{Requests: in.Requests}
	for _, r := range e.rules {
		if e.disabled[r.ID] {
			continue
		}
		if r.Tier == TierHard && requested(in, r.Scope) {
			v.Skipped = append(v.Skipped, r.ID)
			continue
		}
		out := e.run(r, in)
		if out.Allowed {
			continue
		}
		f := Finding{RuleID: r.ID, Category: r.Category, Violation: out.Violation, Alternative: out.Alternative}
		if r.Tier == TierHard {
			v.Violations = append(v.Violations, f)
		} else {
			v.Suggestions = append(v.Suggestions, f)
		}
	}
	v.TenetViolations = checkTenets(e.matcher, in.Response)

	v.CanProceed = len(v.Violations) == 0
	v.CanSend = v.CanProceed && len(v.TenetViolations) == 0
	v.Score = max(0, 100-50*len(v.Violations)-10*len(v.Suggestions))
	return v
}

// run evaluates one rule. A panicking rule is logged and treated as allowed.
func (e *Engine) run(r Rule, in Input) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule check panicked", "rule", r.ID, "panic", rec)
			out = Pass
		}
	}()
	return r.Check(e.matcher, in)
}

// ValidateCoachResponse is the single gate every candidate response passes
// before delivery.
func (e *Engine) ValidateCoachResponse(in Input) CoachValidation {
	v := e.Evaluate(in)
	res := CoachValidation{
		CanSend: v.CanSend,
		IsValid: v.CanProceed,
		Verdict: v,
	}
	for _, f := range v.Violations {
		if f.Alternative != "" {
			res.Modifications = append(res.Modifications, f.Alternative)
		}
	}
	for _, f := range v.TenetViolations {
		res.TenetViolations = append(res.TenetViolations, f.Violation)
		res.Modifications = append(res.Modifications, f.Alternative)
	}
	return res
}

// Rules lists every rule with its current enabled state.
func (e *Engine) Rules() []RuleStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]RuleStatus, len(e.rules))
	for i, r := range e.rules {
		out[i] = RuleStatus{Rule: r, Enabled: !e.disabled[r.ID]}
	}
	return out
}

// KnownRule reports whether id names a rule.
func (e *Engine) KnownRule(id string) bool {
	_, ok := e.index[id]
	return ok
}

// Beliefs returns the effective core beliefs and custom beliefs.
func (e *Engine) Beliefs() ([]Belief, []string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.beliefs), slices.Clone(e.custom)
}

// PrincipleContext renders beliefs, active rules and tenets as a prompt block.
func (e *Engine) PrincipleContext() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("Beliefs:\n")
	for _, b := range e.beliefs {
		sb.WriteString("- " + b.Text + "\n")
	}
	for _, c := range e.custom {
		sb.WriteString("- " + c + "\n")
	}

	sb.WriteString("\nHard rules:\n")
	for _, r := range e.rules {
		if r.Tier == TierHard && !e.disabled[r.ID] {
			sb.WriteString("- " + r.Description + "\n")
		}
	}

	sb.WriteString("\nGuidelines:\n")
	for _, r := range e.rules {
		if r.Tier == TierSoft && !e.disabled[r.ID] {
			sb.WriteString("- " + r.Description + "\n")
		}
	}

	sb.WriteString("\nTenets:\n")
	for _, t := range tenets {
		sb.WriteString("- " + t.Description + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
