package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

// RecordKey is the storage key of the connection-health record.
const RecordKey = "connection:health"

// Reader loads stored records.
type Reader interface {
	Get(key string) ([]byte, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tracker owns the connection-health record. Every user message is scanned
// once through Observe. Writes go through w, normally a storage.Debouncer.
type Tracker struct {
	r       Reader
	w       storage.RecordWriter
	matcher textmatch.Matcher
	clock   Clock
	logger  *slog.Logger

	mu     sync.Mutex
	health *Health
}

// NewTracker creates a Tracker reading from r and writing through w.
func NewTracker(r Reader, w storage.RecordWriter, m textmatch.Matcher) *Tracker {
	return NewTrackerWithClock(r, w, m, realClock{})
}

// NewTrackerWithClock creates a Tracker with a custom clock (for testing).
func NewTrackerWithClock(r Reader, w storage.RecordWriter, m textmatch.Matcher, clock Clock) *Tracker {
	if m == nil {
		m = textmatch.Literal{}
	}
	return &Tracker{
		r:       r,
		w:       w,
		matcher: m,
		clock:   clock,
		logger:  slog.Default(),
	}
}

// Current returns the record with its level re-assessed at the current time.
func (t *Tracker) Current() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.loadLocked().Clone()
	h.Isolation = Assess(h, t.clock.Now())
	return h
}

// Observe scans one user message for contact mentions, isolation phrases
// and dependency phrases, then re-assesses and persists the record.
func (t *Tracker) Observe(message string) Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC()
	h := t.loadLocked().Clone()

	contact := t.contactText(message)
	if textmatch.Contains(t.matcher, contact, friendPhrases...) {
		h.LastFriendMention = &now
	}
	if textmatch.Contains(t.matcher, contact, familyPhrases...) {
		h.LastFamilyMention = &now
	}
	if textmatch.Contains(t.matcher, contact, professionalPhrases...) {
		h.LastProfessionalMention = &now
	}
	if textmatch.Contains(t.matcher, message, isolationPhrases...) {
		h.IsolationSignals = appendBounded(h.IsolationSignals, now)
	}
	seen := map[string]bool{}
	for _, dp := range dependencyPhrases {
		if seen[dp.tag] || !textmatch.Contains(t.matcher, message, dp.phrase) {
			continue
		}
		seen[dp.tag] = true
		h.DependencySignals = appendBounded(h.DependencySignals, Signal{Tag: dp.tag, At: now})
	}

	previous := h.Isolation
	h.Isolation = Assess(h, now)
	h.UpdatedAt = now
	if h.Isolation != previous {
		t.logger.Info("isolation level changed", "from", previous, "to", h.Isolation)
	}

	t.health = &h
	t.persistLocked()
	return h.Clone()
}

// contactText returns message with every isolation and dependency phrase it
// contains blanked out. "You're my best friend" or "I don't have a friend"
// must not count as a mention of a friend.
func (t *Tracker) contactText(message string) string {
	claimed := t.matcher.All(message, isolationPhrases)
	for _, dp := range dependencyPhrases {
		if textmatch.Contains(t.matcher, message, dp.phrase) {
			claimed = append(claimed, dp.phrase)
		}
	}
	if len(claimed) == 0 {
		return message
	}
	text := textmatch.Normalize(message)
	for _, p := range claimed {
		text = strings.ReplaceAll(text, textmatch.Normalize(p), " | ")
	}
	return text
}

// SetExternalSupport records whether the person has declared human support.
func (t *Tracker) SetExternalSupport(has bool) Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now().UTC()
	h := t.loadLocked().Clone()
	h.HasExternalSupport = has
	h.Isolation = Assess(h, now)
	h.UpdatedAt = now
	t.health = &h
	t.persistLocked()
	return h.Clone()
}

// Reset clears the record back to an empty one.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := NewHealth()
	h.UpdatedAt = t.clock.Now().UTC()
	t.health = &h
	t.persistLocked()
}

func appendBounded[T any](list []T, v T) []T {
	list = append(list, v)
	if len(list) > MaxSignals {
		list = append([]T{}, list[len(list)-MaxSignals:]...)
	}
	return list
}

func (t *Tracker) loadLocked() *Health {
	if t.health != nil {
		return t.health
	}
	h, err := t.read()
	if err != nil {
		t.logger.Warn("reading connection health failed, starting empty", "error", err)
		empty := NewHealth()
		return &empty
	}
	t.health = &h
	return t.health
}

func (t *Tracker) read() (Health, error) {
	raw, err := t.r.Get(RecordKey)
	if errors.Is(err, storage.ErrNotFound) {
		return NewHealth(), nil
	}
	if err != nil {
		return Health{}, fmt.Errorf("loading connection health: %w", err)
	}
	h := NewHealth()
	if err := json.Unmarshal(raw, &h); err != nil {
		return Health{}, fmt.Errorf("decoding connection health: %w", err)
	}
	if h.IsolationSignals == nil {
		h.IsolationSignals = []time.Time{}
	}
	if h.DependencySignals == nil {
		h.DependencySignals = []Signal{}
	}
	if h.Isolation.Rank() == 0 {
		h.Isolation = LevelNone
	}
	return h, nil
}

func (t *Tracker) persistLocked() {
	b, err := json.Marshal(t.health)
	if err != nil {
		t.logger.Warn("marshalling connection health failed", "error", err)
		return
	}
	// The debounced writer retries failed writes on its next flush.
	if err := t.w.Set(RecordKey, b); err != nil {
		t.logger.Warn("persisting connection health failed", "error", err)
	}
}
