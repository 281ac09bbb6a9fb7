// Package pacing reads how the person is showing up in the current turn and
// derives a cadence for the reply. It keeps no state between turns.
package pacing

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kalambet/attune/internal/textmatch"
)

// State is the classified energy of the current turn.
type State string

const (
	StateActivated  State = "activated"
	StateLowEnergy  State = "low_energy"
	StateProcessing State = "processing"
	StateNeutral    State = "neutral"
)

// WordTier buckets message length.
type WordTier string

const (
	Terse    WordTier = "terse"
	Moderate WordTier = "moderate"
	Verbose  WordTier = "verbose"
)

// Thresholds.
const (
	terseBelow         = 10
	verboseFrom        = 50
	stressThreshold    = 4.0
	fastSpeechWPM      = 180
	slowSpeechWPM      = 100
	quietVolume        = 0.3
	frequentPausesRate = 6.0
)

// AudioMetrics are coarse measurements of a spoken turn. AverageVolume is
// normalised to 0..1; zero values mean "not measured".
type AudioMetrics struct {
	WordsPerMinute  float64 `json:"words_per_minute"`
	PausesPerMinute float64 `json:"pauses_per_minute"`
	AverageVolume   float64 `json:"average_volume"`
}

// Input is one user turn.
type Input struct {
	Text  string        `json:"text"`
	Audio *AudioMetrics `json:"audio,omitempty"`
}

// Signals are the features extracted from the turn.
type Signals struct {
	WordCount            int      `json:"word_count"`
	WordTier             WordTier `json:"word_tier"`
	PunctuationIntensity float64  `json:"punctuation_intensity"`
	StressPhrases        []string `json:"stress_phrases,omitempty"`
	StressScore          float64  `json:"stress_score"`
	HasAudio             bool     `json:"has_audio"`
	FastSpeech           bool     `json:"fast_speech"`
	SlowSpeech           bool     `json:"slow_speech"`
	QuietVolume          bool     `json:"quiet_volume"`
	FrequentPauses       bool     `json:"frequent_pauses"`
}

// Directive is how the reply should be paced.
type Directive struct {
	Pace                 string `json:"pace"`
	Length               string `json:"length"`
	Tone                 string `json:"tone"`
	AcknowledgeFirst     bool   `json:"acknowledge_first"`
	AvoidForcedStructure bool   `json:"avoid_forced_structure"`
}

// Result is the outcome of Detect.
type Result struct {
	Signals   Signals   `json:"signals"`
	State     State     `json:"state"`
	Directive Directive `json:"directive"`
}

var stressPhrases = []string{
	"i can't", "i cant", "can't breathe", "freaking out", "panicking", "panic attack",
	"overwhelmed", "too much", "stressed", "so anxious", "i'm scared",
	"falling apart", "losing it", "help me", "i need help",
}

var directives = map[State]Directive{
	StateActivated: {
		Pace:             "slower",
		Length:           "brief",
		Tone:             "grounding",
		AcknowledgeFirst: true,
	},
	StateLowEnergy: {
		Pace:                 "matched",
		Length:               "brief",
		Tone:                 "soft",
		AvoidForcedStructure: true,
	},
	StateProcessing: {
		Pace:             "matched",
		Length:           "moderate",
		Tone:             "reflective",
		AcknowledgeFirst: true,
	},
	StateNeutral: {
		Pace:   "natural",
		Length: "natural",
		Tone:   "warm",
	},
}

// Detect classifies the turn. The same input always yields the same result.
func Detect(in Input) Result {
	return DetectWith(textmatch.Literal{}, in)
}

// DetectWith is Detect with a custom phrase matcher.
func DetectWith(m textmatch.Matcher, in Input) Result {
	sig := extract(m, in)
	state := classify(sig)
	return Result{Signals: sig, State: state, Directive: directives[state]}
}

func extract(m textmatch.Matcher, in Input) Signals {
	words := strings.Fields(in.Text)
	sig := Signals{WordCount: len(words)}

	switch {
	case sig.WordCount < terseBelow:
		sig.WordTier = Terse
	case sig.WordCount < verboseFrom:
		sig.WordTier = Moderate
	default:
		sig.WordTier = Verbose
	}

	sig.PunctuationIntensity = punctuationIntensity(in.Text, words)
	sig.StressPhrases = m.All(in.Text, stressPhrases)
	sig.StressScore = sig.PunctuationIntensity + 2*float64(len(sig.StressPhrases))

	if a := in.Audio; a != nil {
		sig.HasAudio = true
		sig.FastSpeech = a.WordsPerMinute > fastSpeechWPM
		sig.SlowSpeech = a.WordsPerMinute > 0 && a.WordsPerMinute < slowSpeechWPM
		sig.QuietVolume = a.AverageVolume > 0 && a.AverageVolume < quietVolume
		sig.FrequentPauses = a.PausesPerMinute >= frequentPausesRate
	}
	return sig
}

// punctuationIntensity weighs "!" as 1, "?" and "..." as 0.5 each, and every
// all-caps word of two or more letters as 1.
func punctuationIntensity(text string, words []string) float64 {
	ellipses := strings.Count(text, "...") + strings.Count(text, "…")
	score := float64(strings.Count(text, "!"))
	score += 0.5 * float64(strings.Count(text, "?"))
	score += 0.5 * float64(ellipses)
	for _, w := range words {
		if isShouted(w) {
			score++
		}
	}
	return score
}

func isShouted(word string) bool {
	letters := 0
	for _, r := range word {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 2
}

func classify(s Signals) State {
	switch {
	case s.FastSpeech || s.StressScore >= stressThreshold:
		return StateActivated
	case s.SlowSpeech || s.QuietVolume || s.WordTier == Terse:
		return StateLowEnergy
	case s.WordTier == Verbose && (!s.HasAudio || s.FrequentPauses):
		return StateProcessing
	default:
		return StateNeutral
	}
}

// PromptHint renders the directive as one prompt line.
func (d Directive) PromptHint() string {
	hint := fmt.Sprintf("Reply at a %s pace, %s length, with a %s tone.", d.Pace, d.Length, d.Tone)
	if d.AcknowledgeFirst {
		hint += " Acknowledge what they shared before anything else."
	}
	if d.AvoidForcedStructure {
		hint += " Do not impose lists or steps."
	}
	return hint
}
