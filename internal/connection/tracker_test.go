package connection

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

type memRecords struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	fail bool
}

func newMemRecords() *memRecords {
	return &memRecords{data: make(map[string][]byte)}
}

func (m *memRecords) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (m *memRecords) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.fail {
		return errors.New("disk unavailable")
	}
	m.data[key] = value
	return nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestTracker(records *memRecords, clock *stepClock) *Tracker {
	return NewTrackerWithClock(records, records, textmatch.Literal{}, clock)
}

func TestObserve_EscalatesAndDecays(t *testing.T) {
	records := newMemRecords()
	clock := &stepClock{t: now}
	tr := newTestTracker(records, clock)

	h := tr.Observe("I feel so lonely tonight")
	if h.Isolation != LevelModerate {
		t.Fatalf("after one isolation signal without contact: %s, want moderate", h.Isolation)
	}

	clock.advance(time.Hour)
	tr.Observe("Nobody cares what happens to me")
	clock.advance(time.Hour)
	h = tr.Observe("I haven't talked to anyone in days")
	if h.Isolation != LevelSevere {
		t.Fatalf("after three isolation signals: %s, want severe", h.Isolation)
	}

	clock.advance(time.Hour)
	h = tr.Observe("I called my sister today")
	if h.LastFamilyMention == nil {
		t.Fatal("family mention not recorded")
	}
	if h.Isolation != LevelModerate {
		t.Errorf("contact mention should soften severe to moderate, got %s", h.Isolation)
	}

	clock.advance(15 * 24 * time.Hour)
	if got := tr.Current().Isolation; got != LevelNone {
		t.Errorf("level after window passed = %s, want none", got)
	}
}

func TestObserve_DependencySignals(t *testing.T) {
	tr := newTestTracker(newMemRecords(), &stepClock{t: now})

	h := tr.Observe("Honestly you're the only one I can talk to, you're my best friend")
	if len(h.DependencySignals) != 2 {
		t.Fatalf("expected 2 tagged signals, got %+v", h.DependencySignals)
	}
	tags := map[string]bool{}
	for _, s := range h.DependencySignals {
		tags[s.Tag] = true
	}
	if !tags["sole_confidant"] || !tags["attachment"] {
		t.Errorf("unexpected tags: %v", tags)
	}
	if h.Isolation != LevelMild {
		t.Errorf("level = %s, want mild", h.Isolation)
	}
}

func TestObserve_ClaimedPhrasesAreNotContact(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{"dependency", "you're my best friend, you're the only one i can talk to"},
		{"isolation", "I'm so lonely, I don't have a friend in the world"},
		{"no friends", "I have no friends and nobody cares"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &stepClock{t: now}
			tr := newTestTracker(newMemRecords(), clock)

			var h Health
			for i := 0; i < 3; i++ {
				clock.advance(time.Hour)
				h = tr.Observe(tt.message)
			}
			if h.LastFriendMention != nil {
				t.Errorf("%q recorded as a friend mention", tt.message)
			}
			if h.Isolation != LevelSevere {
				t.Errorf("level after three messages = %s, want severe", h.Isolation)
			}
		})
	}
}

func TestObserve_ContactAlongsideClaimedPhrase(t *testing.T) {
	tr := newTestTracker(newMemRecords(), &stepClock{t: now})

	h := tr.Observe("I'm lonely but I had coffee with my friend Sam")
	if h.LastFriendMention == nil {
		t.Error("friend mention outside the isolation phrase was dropped")
	}
	if len(h.IsolationSignals) != 1 {
		t.Errorf("isolation signals = %d, want 1", len(h.IsolationSignals))
	}
}

func TestObserve_SmartQuotesMatch(t *testing.T) {
	tr := newTestTracker(newMemRecords(), &stepClock{t: now})

	h := tr.Observe("I’m lonely")
	if len(h.IsolationSignals) != 1 {
		t.Errorf("typographic apostrophe should still match, got %d signals", len(h.IsolationSignals))
	}
}

func TestObserve_SignalsBounded(t *testing.T) {
	clock := &stepClock{t: now}
	tr := newTestTracker(newMemRecords(), clock)

	for i := 0; i < MaxSignals+5; i++ {
		clock.advance(time.Minute)
		tr.Observe("I'm lonely")
	}
	h := tr.Current()
	if len(h.IsolationSignals) != MaxSignals {
		t.Fatalf("kept %d isolation signals, want %d", len(h.IsolationSignals), MaxSignals)
	}
	if !h.IsolationSignals[len(h.IsolationSignals)-1].Equal(clock.Now()) {
		t.Error("newest signal should be kept")
	}
}

func TestTracker_PersistsAndReloads(t *testing.T) {
	records := newMemRecords()
	clock := &stepClock{t: now}
	tr := newTestTracker(records, clock)

	tr.Observe("I'm lonely")
	tr.SetExternalSupport(true)

	raw, err := records.Get(RecordKey)
	if err != nil {
		t.Fatalf("record not written: %v", err)
	}
	var stored Health
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("stored record is not JSON: %v", err)
	}
	if !stored.HasExternalSupport || len(stored.IsolationSignals) != 1 {
		t.Errorf("stored record incomplete: %+v", stored)
	}

	reloaded := newTestTracker(records, clock).Current()
	if !reloaded.HasExternalSupport || len(reloaded.IsolationSignals) != 1 {
		t.Errorf("reloaded record incomplete: %+v", reloaded)
	}
}

func TestTracker_WriteFailureKeepsMemoryState(t *testing.T) {
	records := newMemRecords()
	records.fail = true
	tr := newTestTracker(records, &stepClock{t: now})

	tr.Observe("I'm lonely")
	if got := len(tr.Current().IsolationSignals); got != 1 {
		t.Errorf("in-memory signal lost after failed write, have %d", got)
	}
}

func TestTracker_ThroughDebouncer(t *testing.T) {
	records := newMemRecords()
	deb := storage.NewDebouncer(records, time.Hour)
	tr := NewTrackerWithClock(records, deb, textmatch.Literal{}, &stepClock{t: now})

	for i := 0; i < 5; i++ {
		tr.Observe("I'm lonely")
	}
	if records.sets != 0 {
		t.Fatalf("expected writes to be deferred, got %d", records.sets)
	}
	if err := deb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if records.sets != 1 {
		t.Errorf("expected one coalesced write, got %d", records.sets)
	}
}

func TestReset(t *testing.T) {
	tr := newTestTracker(newMemRecords(), &stepClock{t: now})
	tr.Observe("I'm lonely")
	tr.Reset()

	h := tr.Current()
	if h.Isolation != LevelNone || len(h.IsolationSignals) != 0 {
		t.Errorf("Reset left state behind: %+v", h)
	}
}
