// Package composer assembles the system context sent to the language model
// from the companion's principles, the person's profile and this turn's
// pacing.
package composer

import (
	"strings"

	"github.com/kalambet/attune/internal/llm"
)

const defaultMaxContextTokens = 4000

// Sections are the parts of the injected system context. Principles and
// Revisions are always included; the rest are dropped line by line, lowest
// priority first, when the token budget runs out.
type Sections struct {
	Principles string
	Pacing     string
	Profile    string
	Adaptation []string
	// Revisions carries corrections for a response that was blocked.
	Revisions []string
}

// Composer builds enriched chat requests within a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose prepends a system message built from s. If the request already
// starts with a system message the enrichment is prepended to it. Other
// messages are preserved unchanged.
func (c *Composer) Compose(req llm.ChatRequest, s Sections) llm.ChatRequest {
	enrichment := c.Build(s)
	if enrichment == "" {
		return req
	}

	msgs := make([]llm.Message, 0, len(req.Messages)+1)
	if len(req.Messages) > 0 && req.Messages[0].Role == "system" {
		msgs = append(msgs, llm.Message{
			Role:    "system",
			Content: enrichment + "\n\n---\n\n" + req.Messages[0].Content,
		})
		msgs = append(msgs, req.Messages[1:]...)
	} else {
		msgs = append(msgs, llm.Message{Role: "system", Content: enrichment})
		msgs = append(msgs, req.Messages...)
	}

	out := req
	out.Messages = msgs
	return out
}

// Build renders s as system message content.
func (c *Composer) Build(s Sections) string {
	var sb strings.Builder
	write := func(header, body string) {
		if body == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		sb.WriteString(body)
	}

	write("[Companion Principles]", s.Principles)
	write("[Revision Required]", bulletList(s.Revisions))

	remaining := c.MaxContextTokens - EstimateTokens(sb.String())

	// Optional sections in priority order.
	optional := []struct {
		header string
		lines  []string
	}{
		{"[This Turn]", nonEmpty(s.Pacing)},
		{"[Person Profile]", nonEmpty(s.Profile)},
		{"[Adaptation]", bullets(s.Adaptation)},
	}
	for _, sec := range optional {
		headerTokens := EstimateTokens("\n\n" + sec.header + "\n")
		if len(sec.lines) == 0 || headerTokens >= remaining {
			continue
		}
		var kept []string
		budget := remaining - headerTokens
		for _, line := range sec.lines {
			tokens := EstimateTokens(line + "\n")
			if tokens > budget {
				continue
			}
			kept = append(kept, line)
			budget -= tokens
		}
		if len(kept) == 0 {
			continue
		}
		body := strings.Join(kept, "\n")
		write(sec.header, body)
		remaining -= headerTokens + EstimateTokens(body)
	}

	return sb.String()
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

func bullets(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, "- "+l)
		}
	}
	return out
}

func bulletList(lines []string) string {
	return strings.Join(bullets(lines), "\n")
}
