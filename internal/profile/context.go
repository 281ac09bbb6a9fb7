package profile

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxContextChars caps the context block to stay under ~500 tokens (4 chars/token).
const maxContextChars = 2000

// ContextBlock renders the profile as a plain-text block for the language
// model prompt. Unknown or default-only facts are omitted; an empty profile
// yields a short note asking the model to stay neutral.
func ContextBlock(p Profile) string {
	var parts []string

	if p.PrimaryMode != ModeUnknown && p.PrimaryMode != "" {
		mode := humanize(string(p.PrimaryMode))
		if p.SecondaryMode != "" && p.SecondaryMode != ModeUnknown {
			mode += ", secondarily " + humanize(string(p.SecondaryMode))
		}
		parts = append(parts, fmt.Sprintf("Thinks mainly in a %s way.", mode))
	}

	parts = append(parts, neuroLines(p)...)

	if len(p.LearningStyles) > 0 {
		parts = append(parts, fmt.Sprintf("Learns best through: %s.", humanizeList(p.LearningStyles)))
	}

	var comm []string
	if p.CommunicationStyle != "" {
		comm = append(comm, humanize(p.CommunicationStyle)+" communication")
	}
	if p.DetailPreference != "" && p.DetailPreference != "balanced" {
		comm = append(comm, humanize(p.DetailPreference)+" detail")
	}
	if p.StructurePreference != "" {
		comm = append(comm, humanize(p.StructurePreference))
	}
	if p.ProcessingPace != "" {
		comm = append(comm, humanize(p.ProcessingPace)+" pacing")
	}
	if len(comm) > 0 {
		parts = append(parts, fmt.Sprintf("Prefers: %s.", strings.Join(comm, ", ")))
	}

	if p.EmotionalProcessing != "" {
		parts = append(parts, fmt.Sprintf("Processes emotions in a %s way.", humanize(p.EmotionalProcessing)))
	}
	if p.StressResponse != "" && p.StressResponse != "unknown" {
		parts = append(parts, fmt.Sprintf("Under stress tends to %s.", humanize(p.StressResponse)))
	}
	if p.SocialOrientation != "" {
		parts = append(parts, fmt.Sprintf("Socially %s.", humanize(p.SocialOrientation)))
	}
	if p.EnergyRhythm != "" {
		line := fmt.Sprintf("Energy rhythm: %s", humanize(p.EnergyRhythm))
		if p.EnergyPeak != "" && p.EnergyPeak != "variable" {
			line += ", peaks in the " + humanize(p.EnergyPeak)
		}
		parts = append(parts, line+".")
	}
	if p.SleepQuality == "poor" || len(p.SleepBlockers) > 0 {
		line := fmt.Sprintf("Sleep is %s", humanize(p.SleepQuality))
		if len(p.SleepBlockers) > 0 {
			line += "; blocked by " + humanizeList(p.SleepBlockers)
		}
		if len(p.SleepTechniques) > 0 {
			line += "; finds " + humanizeList(p.SleepTechniques) + " helpful"
		}
		parts = append(parts, line+".")
	}
	if len(p.DiscoveredStrengths) > 0 {
		parts = append(parts, fmt.Sprintf("Strengths: %s.", strings.Join(p.DiscoveredStrengths, ", ")))
	}

	if !p.OnboardingComplete && p.Confidence == 0 {
		return "Cognitive profile: not yet known. Stay neutral, ask before assuming, and avoid imagery-based techniques."
	}

	header := fmt.Sprintf("Cognitive profile (confidence %d/100):", p.Confidence)
	return truncate(header + " " + strings.Join(parts, " "))
}

func neuroLines(p Profile) []string {
	var lines []string
	switch p.MentalImagery {
	case VividnessAbsent:
		lines = append(lines, "Has no mental imagery (aphantasia): never ask them to visualize or picture things.")
	case VividnessFaint:
		lines = append(lines, "Mental imagery is faint: prefer concrete or felt-sense techniques over visualization.")
	case VividnessVivid:
		lines = append(lines, "Mental imagery is vivid.")
	}
	if p.InnerVoice == VividnessAbsent {
		lines = append(lines, "Has no inner verbal monologue: avoid self-talk and inner-voice techniques.")
	}
	if p.AuditoryImagination == VividnessAbsent {
		lines = append(lines, "Cannot imagine sounds: avoid imagined-sound exercises.")
	}
	if p.FutureSimulation == VividnessAbsent {
		lines = append(lines, "Does not simulate future scenarios: avoid future-self exercises.")
	}
	return lines
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func humanizeList(items []string) string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = humanize(it)
	}
	return strings.Join(out, ", ")
}

func truncate(s string) string {
	if len(s) <= maxContextChars {
		return s
	}
	// Ensure we don't split a multi-byte UTF-8 character.
	end := maxContextChars
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if idx := strings.LastIndex(s[:end], " "); idx > 0 {
		return s[:idx]
	}
	return s[:end]
}
