package kernel

import (
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/textmatch"
)

// Hard constraint IDs.
const (
	NoVisualizationAphantasia = "no_visualization_aphantasia"
	NoInnerVoiceAnendophasia  = "no_inner_voice_anendophasia"
	NoAuditoryImageryAbsent   = "no_auditory_imagery_absent"
	NoFutureProjectionAbsent  = "no_future_projection_absent"
	NoDiagnosis               = "no_diagnosis"
	NoMedicationAdvice        = "no_medication_advice"
	NoShaming                 = "no_shaming"
	CrisisResourcesRequired   = "crisis_resources_required"
	SevereIsolationReferral   = "severe_isolation_referral"
	NoExclusiveReliance       = "no_exclusive_reliance"
)

var visualizationPhrases = []string{
	"visualize", "visualise", "picture this", "picture yourself", "picture a",
	"imagine a scene", "close your eyes and see", "in your mind's eye",
	"guided imagery", "see yourself", "imagine you are standing",
}

var innerVoicePhrases = []string{
	"inner voice", "self-talk", "tell yourself", "say to yourself",
	"repeat to yourself", "silently repeat", "inner dialogue", "inner monologue",
	"internal dialogue", "narrate in your head",
}

var auditoryPhrases = []string{
	"imagine the sound", "hear the sound", "imagine hearing", "hear it in your head",
	"imagine the voice", "listen inwardly", "replay the song",
}

var futureProjectionPhrases = []string{
	"imagine your future", "picture your future", "your future self",
	"imagine how you'll feel", "imagine a year from now", "envision",
	"imagine where you'll be", "imagine yourself in five years",
}

var diagnosisPhrases = []string{
	"you have depression", "you have anxiety", "you have adhd", "you have ptsd",
	"you have ocd", "you have bpd", "you are bipolar", "you're bipolar",
	"you are autistic", "you're autistic", "sounds like you have", "you suffer from",
	"you might have a disorder", "you have a disorder", "i diagnose",
	"you're clinically depressed", "you are clinically depressed",
}

var medicationPhrases = []string{
	"stop taking your medication", "stop your medication", "come off your medication",
	"increase your dose", "lower your dose", "double your dose", "skip your dose",
	"take a sleeping pill", "take an antidepressant", "take melatonin",
	"take a sedative", "take some pills", "try benzodiazepines", "try xanax",
	"mg of",
}

var shamingPhrases = []string{
	"you should be ashamed", "that's pathetic", "that is pathetic", "you're lazy",
	"you are lazy", "what's wrong with you", "you're being dramatic",
	"stop being so sensitive", "you're overreacting", "you are overreacting",
	"just get over it", "you only have yourself to blame", "that's your own fault",
}

// crisisPhrases are matched against the user's message.
var crisisPhrases = []string{
	"kill myself", "killing myself", "end my life", "ending my life", "suicide",
	"suicidal", "want to die", "wanna die", "hurt myself", "hurting myself",
	"self-harm", "self harm", "cut myself", "cutting myself",
	"don't want to be alive", "no reason to live", "better off dead",
	"better off without me", "end it all", "overdose",
}

// CrisisResourcePhrases satisfy the crisis inclusion rule when present in a
// response.
var CrisisResourcePhrases = []string{
	"988", "crisis", "therapist", "hotline", "helpline", "lifeline",
	"emergency services", "911", "samaritans", "741741",
}

var exclusiveReliancePhrases = []string{
	"you don't need anyone else", "you dont need anyone else", "you only need me",
	"i'm all you need", "i am all you need", "i'm the only one who",
	"rely on me instead", "better than talking to people", "you don't need other people",
	"i understand you better than", "just talk to me instead", "you don't need them",
}

// neuroConstraint builds a lenient constraint that prohibits phrases when the
// selected profile trait is absent.
func neuroConstraint(id, desc string, scope RequestKind, absent func(profile.Profile) bool, phrases []string, alternative string) Rule {
	return Rule{
		ID:          id,
		Description: desc,
		Category:    CategoryNeuro,
		Tier:        TierHard,
		Scope:       scope,
		Check: func(m textmatch.Matcher, in Input) Outcome {
			if !absent(in.Profile) {
				return Pass
			}
			if p, ok := m.First(in.Response, phrases); ok {
				return fail("uses "+quote(p)+" with someone who cannot do this", alternative)
			}
			return Pass
		},
	}
}

// prohibition builds a constraint that fails when any phrase appears in the response.
func prohibition(id, desc string, cat Category, phrases []string, violation, alternative string) Rule {
	return Rule{
		ID:          id,
		Description: desc,
		Category:    cat,
		Tier:        TierHard,
		Check: func(m textmatch.Matcher, in Input) Outcome {
			if p, ok := m.First(in.Response, phrases); ok {
				return fail(violation+": "+quote(p), alternative)
			}
			return Pass
		},
	}
}

func hardConstraints() []Rule {
	return []Rule{
		neuroConstraint(NoVisualizationAphantasia,
			"Never suggest visualization to someone with absent mental imagery.",
			RequestVisualization,
			func(p profile.Profile) bool { return p.MentalImagery == profile.VividnessAbsent },
			visualizationPhrases,
			"Offer a body-based or verbal alternative, such as noticing physical sensations or describing it in words."),
		neuroConstraint(NoInnerVoiceAnendophasia,
			"Never suggest self-talk to someone without an inner voice.",
			RequestInnerVoice,
			func(p profile.Profile) bool { return p.InnerVoice == profile.VividnessAbsent },
			innerVoicePhrases,
			"Suggest writing it down, saying it out loud or using a physical cue instead of self-talk."),
		neuroConstraint(NoAuditoryImageryAbsent,
			"Never rely on imagined sounds for someone without auditory imagination.",
			RequestAuditory,
			func(p profile.Profile) bool { return p.AuditoryImagination == profile.VividnessAbsent },
			auditoryPhrases,
			"Use real sounds they can play, or a tactile anchor, instead of imagined ones."),
		neuroConstraint(NoFutureProjectionAbsent,
			"Never ask someone who cannot simulate the future to imagine it.",
			RequestFutureProjection,
			func(p profile.Profile) bool { return p.FutureSimulation == profile.VividnessAbsent },
			futureProjectionPhrases,
			"Work with concrete next steps or past experiences rather than imagined futures."),
		prohibition(NoDiagnosis,
			"Never diagnose a mental or physical condition.",
			CategorySafety, diagnosisPhrases,
			"states a diagnosis",
			"Describe what they shared in their own words and suggest a professional if they want an assessment."),
		prohibition(NoMedicationAdvice,
			"Never give medication or dosage advice.",
			CategorySafety, medicationPhrases,
			"gives medication advice",
			"Encourage them to talk about medication with their doctor or pharmacist."),
		prohibition(NoShaming,
			"Never shame, blame or belittle.",
			CategoryEthics, shamingPhrases,
			"shames the person",
			"Reflect what they are going through without judgment."),
		{
			ID:          CrisisResourcesRequired,
			Description: "When someone mentions self-harm or suicide, always point to crisis resources.",
			Category:    CategorySafety,
			Tier:        TierHard,
			Locked:      true,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				trigger, ok := m.First(in.UserMessage, crisisPhrases)
				if !ok || textmatch.Contains(m, in.Response, CrisisResourcePhrases...) {
					return Pass
				}
				return fail("crisis language "+quote(trigger)+" without crisis resources",
					"Include a crisis resource, for example: call or text 988 (Suicide & Crisis Lifeline) or contact local emergency services.")
			},
		},
		{
			ID:          SevereIsolationReferral,
			Description: "When isolation is severe, point toward professional or community support.",
			Category:    CategoryConnection,
			Tier:        TierHard,
			Check: func(m textmatch.Matcher, in Input) Outcome {
				if in.Connection.Isolation != connection.LevelSevere {
					return Pass
				}
				if textmatch.Contains(m, in.Response, connection.ReferralPhrases...) {
					return Pass
				}
				return fail("severe isolation without a referral",
					"Gently mention a therapist, counselor, support group or community group they could reach.")
			},
		},
		prohibition(NoExclusiveReliance,
			"Never present the companion as a replacement for people.",
			CategoryConnection, exclusiveReliancePhrases,
			"encourages exclusive reliance on the companion",
			"Affirm that you are glad to help and that people in their life matter too."),
	}
}

func quote(s string) string {
	return `"` + s + `"`
}

// DetectCrisis reports whether message contains self-harm or suicide language.
func DetectCrisis(m textmatch.Matcher, message string) bool {
	return textmatch.Contains(m, message, crisisPhrases...)
}
