// Package coach runs one conversational turn end to end: onboarding when it
// is active, otherwise compose, complete and validate before anything is
// delivered.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/attune/internal/adapt"
	"github.com/kalambet/attune/internal/composer"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/llm"
	"github.com/kalambet/attune/internal/metrics"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/pacing"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

// maxAttempts bounds completions per turn: the first try plus one revision.
const maxAttempts = 2

// Turn modes.
const (
	ModeOnboarding   = "onboarding"
	ModeConversation = "conversation"
)

// Fallback reasons.
const (
	ReasonBlocked     = "blocked"
	ReasonLLMError    = "llm_error"
	ReasonUnavailable = "llm_unavailable"
)

// ErrNoMessage is returned by Turn for an empty user message.
var ErrNoMessage = errors.New("no user message")

// Completer produces a reply for a prepared message list.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Onboarding is the interview the coach routes to while it is active.
type Onboarding interface {
	Active() bool
	Next() (onboarding.Question, bool)
	Progress() onboarding.Progress
	Record(onboarding.Answer) (onboarding.Result, error)
	Complete() (profile.Profile, onboarding.Progress, error)
}

// Profiles reads the current profile.
type Profiles interface {
	GetProfile() profile.Profile
}

// Connection observes user messages for connection-health signals.
type Connection interface {
	Observe(message string) connection.Health
}

// Nudges records delivered connection nudges.
type Nudges interface {
	Record(kind, text string) storage.Nudge
	Times() []time.Time
}

// Policy validates candidate responses.
type Policy interface {
	ValidateCoachResponse(kernel.Input) kernel.CoachValidation
	PrincipleContext() string
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Deps are the collaborators of a Coach. Completer and Metrics may be nil.
type Deps struct {
	Onboarding Onboarding
	Profiles   Profiles
	Connection Connection
	Nudges     Nudges
	Policy     Policy
	Completer  Completer
	Composer   *composer.Composer
	Metrics    *metrics.Metrics
	Matcher    textmatch.Matcher
	Clock      Clock
}

// Coach orchestrates a conversational turn.
type Coach struct {
	deps Deps
}

// New creates a Coach, filling defaults for the optional dependencies.
func New(deps Deps) *Coach {
	if deps.Composer == nil {
		deps.Composer = composer.New(0)
	}
	if deps.Matcher == nil {
		deps.Matcher = textmatch.Literal{}
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	return &Coach{deps: deps}
}

// TurnRequest is one user message with optional audio metrics and the
// preceding conversation.
type TurnRequest struct {
	Message string               `json:"message"`
	Audio   *pacing.AudioMetrics `json:"audio,omitempty"`
	History []llm.Message        `json:"history,omitempty"`
}

// TurnResult is what the coach delivered and why.
type TurnResult struct {
	Reply              string                  `json:"reply"`
	Mode               string                  `json:"mode"`
	Question           *onboarding.Question    `json:"question,omitempty"`
	OnboardingComplete bool                    `json:"onboarding_complete,omitempty"`
	Pacing             *pacing.Result          `json:"pacing,omitempty"`
	Validation         *kernel.CoachValidation `json:"validation,omitempty"`
	Attempts           int                     `json:"attempts,omitempty"`
	Fallback           string                  `json:"fallback,omitempty"`
}

// Turn handles one user message. Crisis language always bypasses onboarding.
func (c *Coach) Turn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return TurnResult{}, ErrNoMessage
	}
	start := time.Now()
	defer func() {
		if m := c.deps.Metrics; m != nil {
			m.TurnLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if c.deps.Onboarding != nil && c.deps.Onboarding.Active() && !kernel.DetectCrisis(c.deps.Matcher, req.Message) {
		if res, ok, err := c.onboard(req.Message); ok || err != nil {
			return res, err
		}
	}
	return c.converse(ctx, req), nil
}

// onboard treats the message as the answer to the pending question. ok is
// false when there is no pending question.
func (c *Coach) onboard(message string) (TurnResult, bool, error) {
	q, ok := c.deps.Onboarding.Next()
	if !ok {
		return TurnResult{}, false, nil
	}
	res := TurnResult{Mode: ModeOnboarding}

	answer, err := onboarding.ParseAnswer(q, message)
	if err != nil {
		intro := "I didn't quite catch that."
		if len(c.deps.Onboarding.Progress().Answered) == 0 {
			intro = "Welcome! Before we talk, I'd like to learn a little about how your mind works."
		}
		res.Reply = intro + "\n\n" + FormatQuestion(q)
		res.Question = &q
		return res, true, nil
	}

	rec, err := c.deps.Onboarding.Record(answer)
	if err != nil {
		return TurnResult{}, true, fmt.Errorf("recording answer: %w", err)
	}
	if m := c.deps.Metrics; m != nil {
		m.AnswersRecorded.Inc()
	}

	if rec.Next != nil {
		res.Reply = FormatQuestion(*rec.Next)
		res.Question = rec.Next
		return res, true, nil
	}

	if _, _, err := c.deps.Onboarding.Complete(); err != nil {
		return TurnResult{}, true, fmt.Errorf("completing onboarding: %w", err)
	}
	res.OnboardingComplete = true
	res.Reply = "Thank you, that helps me a lot. I'll keep all of this in mind. What's on your mind today?"
	return res, true, nil
}

func (c *Coach) converse(ctx context.Context, req TurnRequest) TurnResult {
	d := c.deps
	health := d.Connection.Observe(req.Message)
	pace := pacing.DetectWith(d.Matcher, pacing.Input{Text: req.Message, Audio: req.Audio})
	p := d.Profiles.GetProfile()

	res := TurnResult{Mode: ModeConversation, Pacing: &pace}
	if d.Metrics != nil {
		d.Metrics.PacingStates.WithLabelValues(string(pace.State)).Inc()
	}

	var recent []time.Time
	if d.Nudges != nil {
		recent = d.Nudges.Times()
	}

	sections := composer.Sections{
		Principles: d.Policy.PrincipleContext(),
		Pacing:     pace.Directive.PromptHint(),
		Profile:    profile.ContextBlock(p),
		Adaptation: adapt.Project(p).Lines(),
	}
	messages := append(append([]llm.Message{}, req.History...), llm.Message{Role: "user", Content: req.Message})

	if d.Completer == nil {
		return c.fallback(res, req.Message, health, ReasonUnavailable)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		composed := d.Composer.Compose(llm.ChatRequest{Messages: messages}, sections)

		text, err := d.Completer.Complete(ctx, composed.Messages)
		if err != nil {
			slog.Warn("completion failed", "attempt", attempt, "error", err)
			if d.Metrics != nil {
				d.Metrics.LLMErrors.Inc()
			}
			return c.fallback(res, req.Message, health, ReasonLLMError)
		}

		v := d.Policy.ValidateCoachResponse(kernel.Input{
			Response:     text,
			UserMessage:  req.Message,
			Profile:      p,
			Connection:   health,
			RecentNudges: recent,
			Now:          d.Clock.Now(),
		})
		c.observe(v)
		res.Validation = &v

		if v.CanSend {
			res.Reply = text
			c.recordNudge(text)
			return res
		}
		slog.Info("candidate response blocked",
			"attempt", attempt,
			"violations", len(v.Verdict.Violations),
			"tenet_violations", len(v.TenetViolations))
		sections.Revisions = revisions(v)
	}
	return c.fallback(res, req.Message, health, ReasonBlocked)
}

func (c *Coach) observe(v kernel.CoachValidation) {
	if c.deps.Metrics == nil {
		return
	}
	c.deps.Metrics.ObserveVerdict(v.CanSend, v.Verdict.Score,
		kernel.IDs(v.Verdict.Violations), kernel.IDs(v.Verdict.Suggestions), kernel.IDs(v.Verdict.TenetViolations))
}

func (c *Coach) recordNudge(text string) {
	if c.deps.Nudges == nil || !connection.IsNudge(c.deps.Matcher, text) {
		return
	}
	c.deps.Nudges.Record(connection.NudgeKind, text)
	if c.deps.Metrics != nil {
		c.deps.Metrics.NudgesDelivered.Inc()
	}
}

// revisions turns a blocked validation into instructions for the retry.
func revisions(v kernel.CoachValidation) []string {
	var out []string
	for _, f := range v.Verdict.Violations {
		out = append(out, fmt.Sprintf("Your previous reply %s. %s", f.Violation, f.Alternative))
	}
	for _, f := range v.Verdict.TenetViolations {
		out = append(out, fmt.Sprintf("Your previous reply %s. %s", f.Violation, f.Alternative))
	}
	return out
}

// Fallback replies. Each passes every hard constraint and tenet for the
// situation it is used in.
const (
	crisisFallback = "I'm really glad you told me, and I'm taking it seriously. " +
		"If you might act on these thoughts, please call or text 988 (Suicide & Crisis Lifeline) " +
		"or contact your local emergency services right now. I'm here to keep talking with you too."
	isolationFallback = "Thank you for telling me. It sounds like things have felt lonely lately. " +
		"A counselor or a support group could be a place to find people who get it, whenever you feel ready. " +
		"I'm here to keep talking too."
	defaultFallback = "Thank you for sharing that with me. " +
		"Could you tell me a little more about what feels most important right now?"
)

func (c *Coach) fallback(res TurnResult, message string, health connection.Health, reason string) TurnResult {
	switch {
	case kernel.DetectCrisis(c.deps.Matcher, message):
		res.Reply = crisisFallback
	case health.Isolation == connection.LevelSevere:
		res.Reply = isolationFallback
	default:
		res.Reply = defaultFallback
	}
	res.Fallback = reason
	if c.deps.Metrics != nil {
		c.deps.Metrics.FallbackReplies.WithLabelValues(reason).Inc()
	}
	return res
}

// FormatQuestion renders a question with numbered options for chat.
func FormatQuestion(q onboarding.Question) string {
	var sb strings.Builder
	sb.WriteString(q.Prompt)
	switch q.Type {
	case onboarding.TypeSingle, onboarding.TypeMulti:
		sb.WriteString("\n")
		for i, o := range q.Options {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, o.Label)
		}
		if q.Type == onboarding.TypeMulti {
			sb.WriteString("\n\nYou can pick more than one, separated by commas.")
		}
	case onboarding.TypeScalar:
		if n := len(q.Options); n > 0 {
			fmt.Fprintf(&sb, "\n\n(%s = %s, %s = %s)", q.Options[0].Value, q.Options[0].Label,
				q.Options[n-1].Value, q.Options[n-1].Label)
		}
	}
	return sb.String()
}
