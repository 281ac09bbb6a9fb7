package kernel

import (
	"slices"

	"github.com/kalambet/attune/internal/textmatch"
)

// RequestKind is a technique the person explicitly asked for in the current
// message. A request lets the matching neuro-scoped constraint step aside for
// that one response.
type RequestKind string

const (
	RequestVisualization    RequestKind = "visualization"
	RequestInnerVoice       RequestKind = "inner_voice"
	RequestAuditory         RequestKind = "auditory"
	RequestFutureProjection RequestKind = "future_projection"
)

var requestPatterns = []struct {
	kind    RequestKind
	phrases []string
}{
	{RequestVisualization, []string{
		"visualize", "visualise", "visualization", "visualisation", "picture",
		"imagine a scene", "guided imagery", "mind's eye",
	}},
	{RequestInnerVoice, []string{
		"inner voice", "self-talk", "self talk", "affirmation", "mantra",
		"what to tell myself", "what to say to myself", "inner monologue",
	}},
	{RequestAuditory, []string{
		"imagine the sound", "imagine hearing", "sound imagery",
		"hear it in my head", "auditory",
	}},
	{RequestFutureProjection, []string{
		"future self", "imagine my future", "picture my future", "envision",
		"imagine where i'll be", "imagine the future",
	}},
}

// DetectRequests returns the request kinds found in message, in a fixed order.
func DetectRequests(m textmatch.Matcher, message string) []RequestKind {
	var kinds []RequestKind
	for _, p := range requestPatterns {
		if textmatch.Contains(m, message, p.phrases...) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}

func requested(in Input, kind RequestKind) bool {
	return kind != "" && slices.Contains(in.Requests, kind)
}
