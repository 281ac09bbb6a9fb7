package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/attune/internal/storage"
)

// RecordStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type RecordStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RecordKey is the storage key of the profile document.
const RecordKey = "profile:cognitive"

const schemaVersion = 1

type document struct {
	SchemaVersion int     `json:"schema_version"`
	Profile       Profile `json:"profile"`
}

// Manager owns the single local profile. It keeps the in-memory copy as the
// source of truth and serializes every read-modify-write, so two concurrent
// updates can never overwrite each other's patch. Persist failures are
// logged and retried on the next mutation.
type Manager struct {
	store  RecordStore
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	current *Profile
	dirty   bool
}

// NewManager creates a Manager backed by store.
func NewManager(store RecordStore) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store RecordStore, clock Clock) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		logger: slog.Default(),
	}
}

// GetProfile returns a copy of the current profile, loading it from storage
// on first use. A missing or unreadable document yields Default().
func (m *Manager) GetProfile() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked().Clone()
}

// Update applies fn to a copy of the profile and, if fn succeeds, makes the
// copy current and persists it. last_updated is stamped after fn runs.
func (m *Manager) Update(fn func(p *Profile) error) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.loadLocked()
	next := base.Clone()
	if err := fn(&next); err != nil {
		return base.Clone(), err
	}
	next.LastUpdated = m.clock.Now().UTC()
	m.current = &next
	m.persistLocked()
	return next.Clone(), nil
}

// Reset replaces the profile with defaults and removes the stored document.
// This is the only way a profile is deleted.
func (m *Manager) Reset() Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := Default()
	m.current = &p
	if err := m.store.Remove(RecordKey); err != nil {
		m.logger.Warn("removing stored profile failed, defaults will be written on next update", "error", err)
		m.dirty = true
		return p.Clone()
	}
	m.dirty = false
	return p.Clone()
}

// Flush persists the profile if an earlier write failed.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty || m.current == nil {
		return nil
	}
	if err := m.write(*m.current); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// loadLocked returns the current profile, reading storage the first time.
// A read failure is not cached, so the next call retries.
func (m *Manager) loadLocked() *Profile {
	if m.current != nil {
		return m.current
	}
	p, err := m.read()
	if err != nil {
		m.logger.Warn("reading profile failed, using defaults", "error", err)
		def := Default()
		return &def
	}
	m.current = &p
	return m.current
}

func (m *Manager) read() (Profile, error) {
	raw, err := m.store.Get(RecordKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	return Decode(raw)
}

// Decode parses a stored profile document, filling missing fields with
// defaults and normalising unknown values.
func Decode(raw []byte) (Profile, error) {
	doc := document{Profile: Default()}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	doc.Profile.Normalize()
	return doc.Profile.Clone(), nil
}

func (m *Manager) persistLocked() {
	if err := m.write(*m.current); err != nil {
		m.logger.Warn("persisting profile failed, will retry on next update", "error", err)
		m.dirty = true
		return
	}
	m.dirty = false
}

func (m *Manager) write(p Profile) error {
	b, err := json.Marshal(document{SchemaVersion: schemaVersion, Profile: p})
	if err != nil {
		return fmt.Errorf("marshalling profile: %w", err)
	}
	if err := m.store.Set(RecordKey, b); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return nil
}
