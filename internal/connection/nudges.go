package connection

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

// NudgeHistorySize is how many delivered nudges are kept.
const NudgeHistorySize = 50

// NudgeKind labels a connection nudge.
const NudgeKind = "connection"

// NudgeStore persists the nudge ring buffer. Implemented by storage.Store.
type NudgeStore interface {
	AppendNudge(n storage.Nudge, keep int) error
	RecentNudges(limit int) ([]storage.Nudge, error)
	ClearNudges() error
}

// IsNudge reports whether text nudges the person toward other people.
func IsNudge(m textmatch.Matcher, text string) bool {
	return textmatch.Contains(m, text, NudgePhrases...)
}

// NudgeLog records connection nudges the companion actually delivered.
type NudgeLog struct {
	store  NudgeStore
	clock  Clock
	logger *slog.Logger
}

// NewNudgeLog creates a NudgeLog over store.
func NewNudgeLog(store NudgeStore) *NudgeLog {
	return NewNudgeLogWithClock(store, realClock{})
}

// NewNudgeLogWithClock creates a NudgeLog with a custom clock (for testing).
func NewNudgeLogWithClock(store NudgeStore, clock Clock) *NudgeLog {
	return &NudgeLog{store: store, clock: clock, logger: slog.Default()}
}

// Record appends a delivered nudge, keeping the newest NudgeHistorySize.
// Failures are logged.
func (l *NudgeLog) Record(kind, text string) storage.Nudge {
	n := storage.Nudge{
		ID:        uuid.New().String(),
		Kind:      kind,
		Text:      text,
		CreatedAt: l.clock.Now().UTC(),
	}
	if err := l.store.AppendNudge(n, NudgeHistorySize); err != nil {
		l.logger.Warn("recording nudge failed", "error", err)
	}
	return n
}

// Recent returns up to limit nudges, newest first.
func (l *NudgeLog) Recent(limit int) []storage.Nudge {
	if limit <= 0 || limit > NudgeHistorySize {
		limit = NudgeHistorySize
	}
	ns, err := l.store.RecentNudges(limit)
	if err != nil {
		l.logger.Warn("reading nudge history failed", "error", err)
		return []storage.Nudge{}
	}
	if ns == nil {
		ns = []storage.Nudge{}
	}
	return ns
}

// Times returns the delivery times of the retained nudges, newest first.
func (l *NudgeLog) Times() []time.Time {
	ns := l.Recent(NudgeHistorySize)
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = n.CreatedAt
	}
	return out
}

// Clear empties the history.
func (l *NudgeLog) Clear() error {
	return l.store.ClearNudges()
}
