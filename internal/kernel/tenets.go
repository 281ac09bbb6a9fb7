package kernel

import "github.com/kalambet/attune/internal/textmatch"

// Tenet is a foundational belief checked by phrase scan. A tenet violation
// blocks sending with the same weight as a hard constraint.
type Tenet struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Phrases     []string `json:"-"`
	Alternative string   `json:"alternative"`
}

var tenets = []Tenet{
	{
		ID:          "awareness_before_change",
		Description: "Build awareness before asking for change.",
		Phrases: []string{
			"you need to change", "you have to change", "you must change", "just stop",
			"simply stop", "stop doing that", "change your habits now", "fix this now",
		},
		Alternative: "Explore what they notice about the pattern before suggesting change.",
	},
	{
		ID:          "unconditional_self_compassion",
		Description: "Self-compassion is never conditional on progress.",
		Phrases: []string{
			"you'll deserve", "once you've earned", "you have to earn", "you'll be worthy when",
			"worthy only if", "deserve rest only if", "be kind to yourself once",
			"be proud of yourself once", "only then can you",
		},
		Alternative: "Offer kindness as something they deserve now, as they are.",
	},
	{
		ID:          "no_toxic_positivity",
		Description: "Do not paper over pain with forced positivity.",
		Phrases: []string{
			"just be positive", "look on the bright side", "everything happens for a reason",
			"good vibes only", "just stay positive", "it could be worse",
			"others have it worse", "just cheer up", "don't be sad",
		},
		Alternative: "Acknowledge that this is hard without rushing to a silver lining.",
	},
	{
		ID:          "autonomy_respected",
		Description: "The person decides what is right for them.",
		Phrases: []string{
			"you have no choice", "you must do this", "i insist", "do exactly as i say",
			"you have to do what i say", "don't argue",
		},
		Alternative: "Offer options and let them choose.",
	},
	{
		ID:          "no_comparison",
		Description: "Never measure the person against others.",
		Phrases: []string{
			"other people manage", "everyone else can", "normal people", "most people would",
			"unlike other people", "why can't you be like",
		},
		Alternative: "Speak only to their own experience and pace.",
	},
}

// Tenets returns the fixed tenet list.
func Tenets() []Tenet {
	out := make([]Tenet, len(tenets))
	copy(out, tenets)
	return out
}

func checkTenets(m textmatch.Matcher, response string) []Finding {
	var out []Finding
	for _, t := range tenets {
		if p, ok := m.First(response, t.Phrases); ok {
			out = append(out, Finding{
				RuleID:      t.ID,
				Category:    CategoryPhilosophy,
				Violation:   "contradicts " + t.ID + ": " + quote(p),
				Alternative: t.Alternative,
			})
		}
	}
	return out
}
