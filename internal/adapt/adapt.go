// Package adapt projects a cognitive profile onto the behavioural directives
// the companion follows when phrasing a response.
package adapt

import (
	"fmt"
	"slices"

	"github.com/kalambet/attune/internal/profile"
)

// Directives is a flat, derived view of a profile. It is recomputed on
// every turn and never stored.
type Directives struct {
	UseMetaphors                  bool   `json:"use_metaphors"`
	UseStepByStep                 bool   `json:"use_step_by_step"`
	ValidateBeforeAdvising        bool   `json:"validate_before_advising"`
	Pacing                        string `json:"pacing"`
	VisualizationPermitted        bool   `json:"visualization_permitted"`
	InnerVoiceTechniquesPermitted bool   `json:"inner_voice_techniques_permitted"`
	AuditoryTechniquesPermitted   bool   `json:"auditory_techniques_permitted"`
	FutureProjectionPermitted     bool   `json:"future_projection_permitted"`
	BigPictureFirst               bool   `json:"big_picture_first"`
	OfferChoices                  bool   `json:"offer_choices"`
	ShortParagraphs               bool   `json:"short_paragraphs"`
	SomaticGrounding              bool   `json:"somatic_grounding"`
	EncourageSocialProcessing     bool   `json:"encourage_social_processing"`
	SuggestWindDown               bool   `json:"suggest_wind_down"`
	Tone                          string `json:"tone"`
}

// Project derives directives from p. It is pure and deterministic.
func Project(p profile.Profile) Directives {
	mode := p.PrimaryMode
	return Directives{
		UseMetaphors: mode == profile.ModeNarrativeStory ||
			mode == profile.ModeIntuitiveHolistic ||
			mode == profile.ModeAssociativeWeb ||
			mode == profile.ModePatternAbstract,
		UseStepByStep: p.StructurePreference == "high_structure" ||
			mode == profile.ModeSystematicSequential ||
			mode == profile.ModeLogicalAnalytical,
		ValidateBeforeAdvising: p.CommunicationStyle == "gentle" ||
			mode == profile.ModeEmotionalRelational ||
			p.EmotionalProcessing == "external_verbal",
		Pacing:                        p.ProcessingPace,
		VisualizationPermitted:        p.MentalImagery.AtLeastTypical(),
		InnerVoiceTechniquesPermitted: p.InnerVoice != profile.VividnessAbsent,
		AuditoryTechniquesPermitted:   p.AuditoryImagination != profile.VividnessAbsent,
		FutureProjectionPermitted:     p.FutureSimulation != profile.VividnessAbsent,
		BigPictureFirst:               p.DetailPreference == "big_picture" || mode == profile.ModeIntuitiveHolistic,
		OfferChoices:                  p.StructurePreference != "high_structure" && p.MotivationStyle != "accountability",
		ShortParagraphs: p.AttentionStyle == "divergent" ||
			p.SensorySensitivity == "high" ||
			p.ProcessingPace == "quick",
		SomaticGrounding: p.EmotionalProcessing == "somatic" ||
			mode == profile.ModeKinestheticEmbodied ||
			slices.Contains(p.LearningStyles, "kinesthetic"),
		EncourageSocialProcessing: p.SocialOrientation == "extraverted" ||
			p.EmotionalProcessing == "external_verbal" ||
			p.StressResponse == "seek_connection",
		SuggestWindDown: p.SleepQuality == "poor" ||
			p.SleepOnset == "slow" ||
			slices.Contains(p.SleepBlockers, "racing_thoughts"),
		Tone: tone(p),
	}
}

func tone(p profile.Profile) string {
	switch p.CommunicationStyle {
	case "direct":
		return "clear and direct"
	case "socratic":
		return "curious, asking more than telling"
	case "collaborative":
		return "warm and collaborative"
	default:
		return "gentle and warm"
	}
}

// Lines renders the directives as short prompt instructions.
func (d Directives) Lines() []string {
	lines := []string{fmt.Sprintf("Tone: %s.", d.Tone)}
	if d.Pacing != "" {
		lines = append(lines, fmt.Sprintf("Pacing: %s.", d.Pacing))
	}
	if d.ValidateBeforeAdvising {
		lines = append(lines, "Acknowledge and validate their feelings before offering any suggestion.")
	}
	if d.BigPictureFirst {
		lines = append(lines, "Start with the big picture before details.")
	}
	if d.UseStepByStep {
		lines = append(lines, "Lay out suggestions as clear numbered steps.")
	}
	if d.UseMetaphors {
		lines = append(lines, "Metaphors and stories land well.")
	}
	if d.OfferChoices {
		lines = append(lines, "Offer a couple of options rather than a single prescription.")
	}
	if d.ShortParagraphs {
		lines = append(lines, "Keep paragraphs short.")
	}
	if d.SomaticGrounding {
		lines = append(lines, "Body-based grounding (breath, movement, touch) suits them.")
	}
	if d.EncourageSocialProcessing {
		lines = append(lines, "Talking things through with people they trust helps them.")
	}
	if d.SuggestWindDown {
		lines = append(lines, "When relevant, suggest a gentle evening wind-down.")
	}
	if !d.VisualizationPermitted {
		lines = append(lines, "Do not use visualization or imagery exercises.")
	}
	if !d.InnerVoiceTechniquesPermitted {
		lines = append(lines, "Do not suggest self-talk or inner-voice techniques.")
	}
	if !d.AuditoryTechniquesPermitted {
		lines = append(lines, "Do not ask them to imagine sounds.")
	}
	if !d.FutureProjectionPermitted {
		lines = append(lines, "Do not use future-self or imagined-scenario exercises.")
	}
	return lines
}
