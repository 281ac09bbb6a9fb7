// Package connection tracks how connected the person is to other people,
// derived from literal phrases in what they write.
package connection

import "time"

// Level is the assessed isolation level.
type Level string

const (
	LevelNone     Level = "none"
	LevelMild     Level = "mild"
	LevelModerate Level = "moderate"
	LevelSevere   Level = "severe"
)

// Rank orders levels none < mild < moderate < severe.
func (l Level) Rank() int {
	switch l {
	case LevelMild:
		return 1
	case LevelModerate:
		return 2
	case LevelSevere:
		return 3
	default:
		return 0
	}
}

const (
	// Window is how far back signals and contact mentions count.
	Window = 14 * 24 * time.Hour
	// MaxSignals bounds each rolling signal list.
	MaxSignals = 20
)

// Signal is one tagged app-dependency observation.
type Signal struct {
	Tag string    `json:"tag"`
	At  time.Time `json:"at"`
}

// Health is the derived connection-health record.
type Health struct {
	Isolation               Level       `json:"isolation"`
	LastFriendMention       *time.Time  `json:"last_friend_mention,omitempty"`
	LastFamilyMention       *time.Time  `json:"last_family_mention,omitempty"`
	LastProfessionalMention *time.Time  `json:"last_professional_mention,omitempty"`
	IsolationSignals        []time.Time `json:"isolation_signals"`
	DependencySignals       []Signal    `json:"dependency_signals"`
	HasExternalSupport      bool        `json:"has_external_support"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// NewHealth returns an empty record at level none.
func NewHealth() Health {
	return Health{
		Isolation:         LevelNone,
		IsolationSignals:  []time.Time{},
		DependencySignals: []Signal{},
	}
}

// Clone returns a deep copy of h.
func (h Health) Clone() Health {
	cp := h
	cp.LastFriendMention = cloneTime(h.LastFriendMention)
	cp.LastFamilyMention = cloneTime(h.LastFamilyMention)
	cp.LastProfessionalMention = cloneTime(h.LastProfessionalMention)
	cp.IsolationSignals = append([]time.Time{}, h.IsolationSignals...)
	cp.DependencySignals = append([]Signal{}, h.DependencySignals...)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RecentContact reports whether any human contact was mentioned within the
// window ending at now.
func (h Health) RecentContact(now time.Time) bool {
	cutoff := now.Add(-Window)
	for _, t := range []*time.Time{h.LastFriendMention, h.LastFamilyMention, h.LastProfessionalMention} {
		if t != nil && t.After(cutoff) {
			return true
		}
	}
	return false
}

// RecentIsolation counts isolation signals within the window.
func (h Health) RecentIsolation(now time.Time) int {
	cutoff := now.Add(-Window)
	n := 0
	for _, t := range h.IsolationSignals {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// RecentDependency counts dependency signals within the window.
func (h Health) RecentDependency(now time.Time) int {
	cutoff := now.Add(-Window)
	n := 0
	for _, s := range h.DependencySignals {
		if s.At.After(cutoff) {
			n++
		}
	}
	return n
}

// Assess computes the isolation level at now. Signals older than Window no
// longer count, so the level decays without new input.
func Assess(h Health, now time.Time) Level {
	iso := h.RecentIsolation(now)
	dep := h.RecentDependency(now)
	contact := h.RecentContact(now)

	switch {
	case (iso >= 3 || dep >= 3) && !contact:
		return LevelSevere
	case iso >= 2 || (iso >= 1 && !contact):
		return LevelModerate
	case iso >= 1 || dep >= 1:
		return LevelMild
	default:
		return LevelNone
	}
}
