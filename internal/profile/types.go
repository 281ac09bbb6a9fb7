package profile

import "time"

// Profile is the structured model of how one person thinks, learns, feels and
// communicates. Every field has a safe default (see Default) so the rest of
// the system works before onboarding completes.
type Profile struct {
	// Cognition
	PrimaryMode   CognitiveMode `json:"primary_mode"`
	SecondaryMode CognitiveMode `json:"secondary_mode,omitempty"`

	// Neurological variants
	MentalImagery       Vividness `json:"mental_imagery"`
	InnerVoice          Vividness `json:"inner_voice"`
	AuditoryImagination Vividness `json:"auditory_imagination"`
	FutureSimulation    Vividness `json:"future_simulation"`

	LearningStyles []string `json:"learning_styles"`

	SocialOrientation   string `json:"social_orientation"`
	EmotionalProcessing string `json:"emotional_processing"`
	StressResponse      string `json:"stress_response"`

	CommunicationStyle string `json:"communication_style"`
	DetailPreference   string `json:"detail_preference"`
	MotivationStyle    string `json:"motivation_style"`

	StructurePreference string `json:"structure_preference"`
	ProcessingPace      string `json:"processing_pace"`
	AttentionStyle      string `json:"attention_style"`
	SensorySensitivity  string `json:"sensory_sensitivity"`

	EnergyRhythm string `json:"energy_rhythm"`
	EnergyPeak   string `json:"energy_peak"`

	SleepOnset       string   `json:"sleep_onset"`
	SleepMaintenance string   `json:"sleep_maintenance"`
	SleepQuality     string   `json:"sleep_quality"`
	SleepBlockers    []string `json:"sleep_blockers"`
	SleepTechniques  []string `json:"sleep_techniques"`

	DiscoveredStrengths []string `json:"discovered_strengths"`

	// Bookkeeping
	OnboardingComplete bool      `json:"onboarding_complete"`
	OnboardingDepth    Tier      `json:"onboarding_depth"`
	LastUpdated        time.Time `json:"last_updated"`
	Confidence         int       `json:"confidence"`
}

// CognitiveMode is one of the enumerated "how I think" categories.
type CognitiveMode string

const (
	ModeUnknown              CognitiveMode = "unknown"
	ModeVisualSpatial        CognitiveMode = "visual_spatial"
	ModeVerbalLinguistic     CognitiveMode = "verbal_linguistic"
	ModeLogicalAnalytical    CognitiveMode = "logical_analytical"
	ModeIntuitiveHolistic    CognitiveMode = "intuitive_holistic"
	ModeKinestheticEmbodied  CognitiveMode = "kinesthetic_embodied"
	ModeNarrativeStory       CognitiveMode = "narrative_story"
	ModeSystematicSequential CognitiveMode = "systematic_sequential"
	ModeAssociativeWeb       CognitiveMode = "associative_web"
	ModeEmotionalRelational  CognitiveMode = "emotional_relational"
	ModePatternAbstract      CognitiveMode = "pattern_abstract"
)

// CognitiveModes lists the ten known modes in display order.
var CognitiveModes = []CognitiveMode{
	ModeVisualSpatial, ModeVerbalLinguistic, ModeLogicalAnalytical,
	ModeIntuitiveHolistic, ModeKinestheticEmbodied, ModeNarrativeStory,
	ModeSystematicSequential, ModeAssociativeWeb, ModeEmotionalRelational,
	ModePatternAbstract,
}

// Vividness is an ordered category from absent to vivid.
type Vividness string

const (
	VividnessUnknown Vividness = "unknown"
	VividnessAbsent  Vividness = "absent"
	VividnessFaint   Vividness = "faint"
	VividnessTypical Vividness = "typical"
	VividnessVivid   Vividness = "vivid"
)

// Rank orders vividness levels; unknown ranks below absent.
func (v Vividness) Rank() int {
	switch v {
	case VividnessAbsent:
		return 1
	case VividnessFaint:
		return 2
	case VividnessTypical:
		return 3
	case VividnessVivid:
		return 4
	default:
		return 0
	}
}

// AtLeastTypical reports whether v is typical or vivid.
func (v Vividness) AtLeastTypical() bool {
	return v.Rank() >= VividnessTypical.Rank()
}

// Tier is an onboarding depth tier.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierDeep     Tier = "deep"
)

// Rank orders tiers basic < standard < deep. Unknown tiers rank as basic.
func (t Tier) Rank() int {
	switch t {
	case TierStandard:
		return 1
	case TierDeep:
		return 2
	default:
		return 0
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t == TierBasic || t == TierStandard || t == TierDeep
}

// MaxConfidence caps the confidence counter.
const MaxConfidence = 100

// Default returns a Profile with every field set to its safe default.
func Default() Profile {
	return Profile{
		PrimaryMode:         ModeUnknown,
		MentalImagery:       VividnessUnknown,
		InnerVoice:          VividnessUnknown,
		AuditoryImagination: VividnessUnknown,
		FutureSimulation:    VividnessUnknown,
		LearningStyles:      []string{},
		SocialOrientation:   "ambiverted",
		EmotionalProcessing: "internal_reflective",
		StressResponse:      "unknown",
		CommunicationStyle:  "gentle",
		DetailPreference:    "balanced",
		MotivationStyle:     "encouragement",
		StructurePreference: "flexible",
		ProcessingPace:      "moderate",
		AttentionStyle:      "variable",
		SensorySensitivity:  "moderate",
		EnergyRhythm:        "steady",
		EnergyPeak:          "variable",
		SleepOnset:          "moderate",
		SleepMaintenance:    "solid",
		SleepQuality:        "mixed",
		SleepBlockers:       []string{},
		SleepTechniques:     []string{},
		DiscoveredStrengths: []string{},
		OnboardingDepth:     TierBasic,
	}
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	cp := p
	cp.LearningStyles = cloneStrings(p.LearningStyles)
	cp.SleepBlockers = cloneStrings(p.SleepBlockers)
	cp.SleepTechniques = cloneStrings(p.SleepTechniques)
	cp.DiscoveredStrengths = cloneStrings(p.DiscoveredStrengths)
	return cp
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	cp := make([]string, len(s))
	copy(cp, s)
	return cp
}
