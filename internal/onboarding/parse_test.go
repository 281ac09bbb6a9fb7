package onboarding

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAnswer(t *testing.T) {
	c := mustDefaultCatalog(t)

	tests := []struct {
		name     string
		question string
		text     string
		want     Answer
	}{
		{"single by value", "sleep_quality", "tired", Answer{Selected: []string{"tired"}}},
		{"single by label", "sleep_quality", "Tired most mornings.", Answer{Selected: []string{"tired"}}},
		{"single by position", "sleep_quality", "1", Answer{Selected: []string{"rested"}}},
		{"single by label in sentence", "welcome_comfort", "honestly? a bit unsure, keep it light please", Answer{Selected: []string{"unsure"}}},
		{"single underscored value", "energy_rhythm", "big swings", Answer{Selected: []string{"big_swings"}}},
		{"multi by values and positions", "learning_style", "seeing, 3, doing, seeing", Answer{Selected: []string{"seeing", "reading", "doing"}}},
		{"scalar digit in text", "processing_pace", "probably a 4", Answer{Scalar: intPtr(4)}},
		{"scalar by label", "processing_pace", "sleep on it", Answer{Scalar: intPtr(5)}},
		{"open passthrough", "strengths", "  patience, humor ", Answer{Text: "patience, humor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnswer(question(t, c, tt.question), tt.text)
			if err != nil {
				t.Fatalf("ParseAnswer: %v", err)
			}
			tt.want.QuestionID = tt.question
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("answer mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseAnswer_Unrecognized(t *testing.T) {
	c := mustDefaultCatalog(t)

	tests := []struct {
		question string
		text     string
	}{
		{"sleep_quality", "banana"},
		{"sleep_quality", "7"},
		{"learning_style", "telepathy, osmosis"},
		{"processing_pace", "whenever"},
		{"processing_pace", "9"},
	}
	for _, tt := range tests {
		_, err := ParseAnswer(question(t, c, tt.question), tt.text)
		if !errors.Is(err, ErrInvalidAnswer) {
			t.Errorf("ParseAnswer(%s, %q) = %v, want ErrInvalidAnswer", tt.question, tt.text, err)
		}
	}
}
