package connection

import (
	"testing"
	"time"

	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

func TestNudgeLog_RingBuffer(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	clock := &stepClock{t: now}
	log := NewNudgeLogWithClock(store, clock)

	for i := 0; i < NudgeHistorySize+10; i++ {
		clock.advance(time.Minute)
		log.Record(NudgeKind, "maybe reach out to a friend")
	}

	got := log.Recent(0)
	if len(got) != NudgeHistorySize {
		t.Fatalf("kept %d nudges, want %d", len(got), NudgeHistorySize)
	}
	if !got[0].CreatedAt.Equal(clock.Now()) {
		t.Errorf("newest nudge at %v, want %v", got[0].CreatedAt, clock.Now())
	}

	times := log.Times()
	if len(times) != NudgeHistorySize || !times[0].After(times[1]) {
		t.Errorf("Times should be newest first, got %d entries", len(times))
	}

	if err := log.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(log.Recent(10)) != 0 {
		t.Error("history not cleared")
	}
}

func TestIsNudge(t *testing.T) {
	m := textmatch.Literal{}
	tests := []struct {
		text string
		want bool
	}{
		{"Could you reach out to someone today?", true},
		{"It might help to talk with a loved one.", true},
		{"Let's try a breathing exercise.", false},
	}
	for _, tt := range tests {
		if got := IsNudge(m, tt.text); got != tt.want {
			t.Errorf("IsNudge(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
