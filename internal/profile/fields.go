package profile

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Field names a mergeable profile field.
type Field string

const (
	FieldPrimaryMode         Field = "primary_mode"
	FieldSecondaryMode       Field = "secondary_mode"
	FieldMentalImagery       Field = "mental_imagery"
	FieldInnerVoice          Field = "inner_voice"
	FieldAuditoryImagination Field = "auditory_imagination"
	FieldFutureSimulation    Field = "future_simulation"
	FieldLearningStyles      Field = "learning_styles"
	FieldSocialOrientation   Field = "social_orientation"
	FieldEmotionalProcessing Field = "emotional_processing"
	FieldStressResponse      Field = "stress_response"
	FieldCommunicationStyle  Field = "communication_style"
	FieldDetailPreference    Field = "detail_preference"
	FieldMotivationStyle     Field = "motivation_style"
	FieldStructurePreference Field = "structure_preference"
	FieldProcessingPace      Field = "processing_pace"
	FieldAttentionStyle      Field = "attention_style"
	FieldSensorySensitivity  Field = "sensory_sensitivity"
	FieldEnergyRhythm        Field = "energy_rhythm"
	FieldEnergyPeak          Field = "energy_peak"
	FieldSleepOnset          Field = "sleep_onset"
	FieldSleepMaintenance    Field = "sleep_maintenance"
	FieldSleepQuality        Field = "sleep_quality"
	FieldSleepBlockers       Field = "sleep_blockers"
	FieldSleepTechniques     Field = "sleep_techniques"
	FieldDiscoveredStrengths Field = "discovered_strengths"
)

// MergeStrategy says how a patch value is folded into a field.
type MergeStrategy int

const (
	// Overwrite replaces the field; the last answer wins.
	Overwrite MergeStrategy = iota
	// Union adds values to a set field, deduplicating, never removing.
	Union
)

func (s MergeStrategy) String() string {
	if s == Union {
		return "union"
	}
	return "overwrite"
}

// FieldValue is one entry of a partial-profile patch. Overwrite fields read
// Value; union fields read Values (and Value, if set).
type FieldValue struct {
	Field  Field    `json:"field" yaml:"field"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Patch is a partial profile carried as data, e.g. by a questionnaire option.
type Patch []FieldValue

type fieldSpec struct {
	field    Field
	strategy MergeStrategy
	allowed  []string // nil means free text
	scalar   func(p *Profile) *string
	set      func(p *Profile) *[]string
}

var (
	modeValues = func() []string {
		out := make([]string, len(CognitiveModes))
		for i, m := range CognitiveModes {
			out[i] = string(m)
		}
		return out
	}()
	vividnessValues = []string{"absent", "faint", "typical", "vivid"}
)

// specs is the field table. The merge strategy of every field is declared
// here explicitly.
var specs = []fieldSpec{
	{field: FieldPrimaryMode, strategy: Overwrite, allowed: modeValues,
		scalar: func(p *Profile) *string { return (*string)(&p.PrimaryMode) }},
	{field: FieldSecondaryMode, strategy: Overwrite, allowed: modeValues,
		scalar: func(p *Profile) *string { return (*string)(&p.SecondaryMode) }},
	{field: FieldMentalImagery, strategy: Overwrite, allowed: vividnessValues,
		scalar: func(p *Profile) *string { return (*string)(&p.MentalImagery) }},
	{field: FieldInnerVoice, strategy: Overwrite, allowed: vividnessValues,
		scalar: func(p *Profile) *string { return (*string)(&p.InnerVoice) }},
	{field: FieldAuditoryImagination, strategy: Overwrite, allowed: vividnessValues,
		scalar: func(p *Profile) *string { return (*string)(&p.AuditoryImagination) }},
	{field: FieldFutureSimulation, strategy: Overwrite, allowed: vividnessValues,
		scalar: func(p *Profile) *string { return (*string)(&p.FutureSimulation) }},
	{field: FieldLearningStyles, strategy: Union,
		allowed: []string{"visual", "auditory", "reading_writing", "kinesthetic", "experiential", "social", "solitary"},
		set:     func(p *Profile) *[]string { return &p.LearningStyles }},
	{field: FieldSocialOrientation, strategy: Overwrite,
		allowed: []string{"introverted", "ambiverted", "extraverted"},
		scalar:  func(p *Profile) *string { return &p.SocialOrientation }},
	{field: FieldEmotionalProcessing, strategy: Overwrite,
		allowed: []string{"internal_reflective", "external_verbal", "somatic", "analytical", "creative_expression", "delayed"},
		scalar:  func(p *Profile) *string { return &p.EmotionalProcessing }},
	{field: FieldStressResponse, strategy: Overwrite,
		allowed: []string{"activate", "withdraw", "freeze", "seek_connection"},
		scalar:  func(p *Profile) *string { return &p.StressResponse }},
	{field: FieldCommunicationStyle, strategy: Overwrite,
		allowed: []string{"direct", "gentle", "socratic", "collaborative"},
		scalar:  func(p *Profile) *string { return &p.CommunicationStyle }},
	{field: FieldDetailPreference, strategy: Overwrite,
		allowed: []string{"big_picture", "balanced", "detailed"},
		scalar:  func(p *Profile) *string { return &p.DetailPreference }},
	{field: FieldMotivationStyle, strategy: Overwrite,
		allowed: []string{"encouragement", "challenge", "curiosity", "accountability"},
		scalar:  func(p *Profile) *string { return &p.MotivationStyle }},
	{field: FieldStructurePreference, strategy: Overwrite,
		allowed: []string{"high_structure", "flexible", "minimal_structure"},
		scalar:  func(p *Profile) *string { return &p.StructurePreference }},
	{field: FieldProcessingPace, strategy: Overwrite,
		allowed: []string{"slow", "moderate", "quick"},
		scalar:  func(p *Profile) *string { return &p.ProcessingPace }},
	{field: FieldAttentionStyle, strategy: Overwrite,
		allowed: []string{"focused", "divergent", "variable"},
		scalar:  func(p *Profile) *string { return &p.AttentionStyle }},
	{field: FieldSensorySensitivity, strategy: Overwrite,
		allowed: []string{"low", "moderate", "high"},
		scalar:  func(p *Profile) *string { return &p.SensorySensitivity }},
	{field: FieldEnergyRhythm, strategy: Overwrite,
		allowed: []string{"steady", "mild_cyclical", "pronounced_cyclical", "burst_recovery"},
		scalar:  func(p *Profile) *string { return &p.EnergyRhythm }},
	{field: FieldEnergyPeak, strategy: Overwrite,
		allowed: []string{"morning", "midday", "afternoon", "evening", "night", "variable"},
		scalar:  func(p *Profile) *string { return &p.EnergyPeak }},
	{field: FieldSleepOnset, strategy: Overwrite,
		allowed: []string{"quick", "moderate", "slow"},
		scalar:  func(p *Profile) *string { return &p.SleepOnset }},
	{field: FieldSleepMaintenance, strategy: Overwrite,
		allowed: []string{"solid", "wakes_sometimes", "wakes_often"},
		scalar:  func(p *Profile) *string { return &p.SleepMaintenance }},
	{field: FieldSleepQuality, strategy: Overwrite,
		allowed: []string{"restful", "mixed", "poor"},
		scalar:  func(p *Profile) *string { return &p.SleepQuality }},
	{field: FieldSleepBlockers, strategy: Union,
		allowed: []string{"racing_thoughts", "anxiety", "physical_discomfort", "screens", "irregular_schedule", "environment"},
		set:     func(p *Profile) *[]string { return &p.SleepBlockers }},
	{field: FieldSleepTechniques, strategy: Union,
		allowed: []string{"breathing", "body_scan", "journaling", "sounds", "visualization", "reading"},
		set:     func(p *Profile) *[]string { return &p.SleepTechniques }},
	{field: FieldDiscoveredStrengths, strategy: Union,
		set: func(p *Profile) *[]string { return &p.DiscoveredStrengths }},
}

func lookup(f Field) (fieldSpec, bool) {
	for _, s := range specs {
		if s.field == f {
			return s, true
		}
	}
	return fieldSpec{}, false
}

// StrategyOf returns the declared merge strategy of f.
func StrategyOf(f Field) (MergeStrategy, bool) {
	s, ok := lookup(f)
	return s.strategy, ok
}

// KnownField reports whether f is in the field table.
func KnownField(f Field) bool {
	_, ok := lookup(f)
	return ok
}

// ValidValue reports whether v is acceptable for f.
func ValidValue(f Field, v string) bool {
	s, ok := lookup(f)
	if !ok {
		return false
	}
	if s.allowed == nil {
		return strings.TrimSpace(v) != ""
	}
	return slices.Contains(s.allowed, v)
}

// Apply folds patch into p using each field's declared strategy. Invalid
// entries are skipped and reported together; valid entries are still applied.
// Applying the same patch twice leaves p as after the first application.
func (p *Profile) Apply(patch Patch) error {
	var errs []error
	for _, fv := range patch {
		s, ok := lookup(fv.Field)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown profile field %q", fv.Field))
			continue
		}
		switch s.strategy {
		case Overwrite:
			v := fv.Value
			if v == "" && len(fv.Values) == 1 {
				v = fv.Values[0]
			}
			if !ValidValue(fv.Field, v) {
				errs = append(errs, fmt.Errorf("invalid value %q for %s", v, fv.Field))
				continue
			}
			*s.scalar(p) = v
		case Union:
			values := fv.Values
			if fv.Value != "" {
				values = append([]string{fv.Value}, values...)
			}
			target := s.set(p)
			for _, v := range values {
				v = strings.TrimSpace(v)
				if !ValidValue(fv.Field, v) {
					errs = append(errs, fmt.Errorf("invalid value %q for %s", v, fv.Field))
					continue
				}
				*target = unionAdd(*target, v)
			}
		}
	}
	return errors.Join(errs...)
}

// unionAdd appends v unless an equal value (ignoring case) is present.
func unionAdd(set []string, v string) []string {
	for _, existing := range set {
		if strings.EqualFold(existing, v) {
			return set
		}
	}
	return append(set, v)
}

// Normalize resets every enumerated field holding an unrecognised value to
// its default, drops invalid set members and clamps bookkeeping. It is used
// on documents read from storage, which may have been written by an older
// or newer schema.
func (p *Profile) Normalize() {
	def := Default()
	for _, s := range specs {
		switch s.strategy {
		case Overwrite:
			cur := s.scalar(p)
			if *cur == "" && s.field == FieldSecondaryMode {
				continue
			}
			if !ValidValue(s.field, *cur) {
				*cur = *s.scalar(&def)
			}
		case Union:
			cur := s.set(p)
			kept := []string{}
			for _, v := range *cur {
				if ValidValue(s.field, v) {
					kept = unionAdd(kept, v)
				}
			}
			*cur = kept
		}
	}
	if !p.OnboardingDepth.Valid() {
		p.OnboardingDepth = def.OnboardingDepth
	}
	p.Confidence = min(max(p.Confidence, 0), MaxConfidence)
}
