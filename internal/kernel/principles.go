package kernel

import (
	"strings"
	"time"
	"unicode"

	"github.com/kalambet/attune/internal/adapt"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/textmatch"
)

// Soft principle IDs.
const (
	ValidateBeforeAdvising     = "validate_before_advising"
	RespectStructurePreference = "respect_structure_preference"
	MatchCommunicationStyle    = "match_communication_style"
	EncourageHumanConnection   = "encourage_human_connection"
	NudgeFrequency             = "nudge_frequency"
	PlainLanguage              = "plain_language"
)

// NudgeCooldown is the minimum spacing between two connection nudges.
const NudgeCooldown = 24 * time.Hour

var advicePhrases = []string{
	"you should", "try to", "i suggest", "i recommend", "have you tried",
	"consider", "what if you", "it might help to",
}

var validationPhrases = []string{
	"that sounds", "it makes sense", "makes sense that", "i hear", "understandable",
	"that's hard", "that is hard", "it's okay", "it is okay", "that must",
	"thank you for sharing", "of course you", "no wonder",
}

var hedgePhrases = []string{
	"maybe", "perhaps", "i wonder if", "might", "possibly", "sort of", "kind of",
}

var bluntPhrases = []string{
	"you need to", "you must", "you have to", "obviously", "clearly you",
	"the problem is you",
}

var jargonPhrases = []string{
	"cognitive distortion", "maladaptive", "dysregulation", "schema",
	"somatization", "executive function", "neuroplasticity", "parasympathetic",
	"rumination cycle", "psychoeducation", "catastrophizing",
}

func softPrinciples() []Rule {
	return []Rule{
		{
			ID:          ValidateBeforeAdvising,
			Description: "Acknowledge feelings before offering advice to people who need validation first.",
			Category:    CategoryCommunication,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				if !adapt.Project(in.Profile).ValidateBeforeAdvising {
					return Pass
				}
				if !textmatch.Contains(m, in.Response, advicePhrases...) || textmatch.Contains(m, in.Response, validationPhrases...) {
					return Pass
				}
				return fail("advises without validating first",
					"Open by reflecting what they feel before suggesting anything.")
			},
		},
		{
			ID:          RespectStructurePreference,
			Description: "Match the amount of structure to the person's preference.",
			Category:    CategoryCommunication,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				items := listItems(in.Response)
				switch in.Profile.StructurePreference {
				case "minimal_structure":
					if items >= 3 {
						return fail("heavy list structure for someone who prefers little structure",
							"Say it in a short paragraph instead of a list.")
					}
				case "high_structure":
					if items == 0 && wordCount(in.Response) > 80 {
						return fail("long unstructured reply for someone who prefers structure",
							"Break the reply into a few clear steps.")
					}
				}
				return Pass
			},
		},
		{
			ID:          MatchCommunicationStyle,
			Description: "Speak in the person's preferred communication style.",
			Category:    CategoryCommunication,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				switch in.Profile.CommunicationStyle {
				case "direct":
					if len(m.All(in.Response, hedgePhrases)) >= 3 {
						return fail("too much hedging for a direct communicator",
							"State the point plainly.")
					}
				case "gentle":
					if p, ok := m.First(in.Response, bluntPhrases); ok {
						return fail("blunt phrasing "+quote(p)+" for a gentle communicator",
							"Soften the wording and offer rather than instruct.")
					}
				}
				return Pass
			},
		},
		{
			ID:          EncourageHumanConnection,
			Description: "When someone is withdrawing, point them back toward people.",
			Category:    CategoryConnection,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				if in.Connection.Isolation.Rank() < connection.LevelModerate.Rank() {
					return Pass
				}
				if connection.IsNudge(m, in.Response) || textmatch.Contains(m, in.Response, connection.ReferralPhrases...) {
					return Pass
				}
				return fail("isolation noticed but no encouragement toward people",
					"Gently invite them to reach out to someone they trust.")
			},
		},
		{
			ID:          NudgeFrequency,
			Description: "Do not repeat connection nudges more than once a day.",
			Category:    CategoryConnection,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				if !connection.IsNudge(m, in.Response) {
					return Pass
				}
				for _, t := range in.RecentNudges {
					if in.Now.Sub(t) < NudgeCooldown {
						return fail("another connection nudge within a day",
							"Skip the nudge this time and stay with what they shared.")
					}
				}
				return Pass
			},
		},
		{
			ID:          PlainLanguage,
			Description: "Use everyday words instead of clinical jargon.",
			Category:    CategoryCommunication,
			Tier:        TierSoft,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				if found := m.All(in.Response, jargonPhrases); len(found) >= 2 {
					return fail("clinical jargon: "+strings.Join(found, ", "),
						"Swap clinical terms for plain descriptions.")
				}
				return Pass
			},
		},
	}
}

// listItems counts lines that start like a bullet or numbered item.
func listItems(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
			n++
		case len(line) > 2 && unicode.IsDigit(rune(line[0])) && (line[1] == '.' || line[1] == ')'):
			n++
		}
	}
	return n
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
