package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/storage"
)

// ProgressKey is the storage key of the progress record.
const ProgressKey = "onboarding:progress"

// ProfileManager is the part of profile.Manager the engine mutates.
type ProfileManager interface {
	GetProfile() profile.Profile
	Update(fn func(p *profile.Profile) error) (profile.Profile, error)
	Reset() profile.Profile
}

// AnswerLog keeps raw answers for later re-analysis. Implemented by
// storage.Store.
type AnswerLog interface {
	AppendAnswer(e storage.AnswerEntry) error
	ClearAnswers() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Result is the state after an answer was recorded. Ignored is set when the
// answer named an unknown question.
type Result struct {
	Profile  profile.Profile `json:"profile"`
	Progress Progress        `json:"progress"`
	Next     *Question       `json:"next,omitempty"`
	Ignored  bool            `json:"ignored,omitempty"`
}

// Status summarizes where the interview stands.
type Status struct {
	Progress  Progress  `json:"progress"`
	Answered  int       `json:"answered"`
	Remaining int       `json:"remaining"`
	Complete  bool      `json:"complete"`
	Next      *Question `json:"next,omitempty"`
}

// Engine runs the onboarding interview for the single local profile. Every
// mutation goes through one mutex, so an answer is fully folded into the
// profile and progress before the next one is read. Storage failures are
// logged; the in-memory progress stays authoritative and is re-persisted
// on the next mutation.
type Engine struct {
	catalog  *Catalog
	profiles ProfileManager
	store    profile.RecordStore
	answers  AnswerLog
	clock    Clock
	logger   *slog.Logger

	mu       sync.Mutex
	progress *Progress
	dirty    bool
}

// NewEngine creates an Engine. answers may be nil to skip the answer log.
func NewEngine(catalog *Catalog, profiles ProfileManager, store profile.RecordStore, answers AnswerLog) *Engine {
	return NewEngineWithClock(catalog, profiles, store, answers, realClock{})
}

// NewEngineWithClock creates an Engine with a custom clock (for testing).
func NewEngineWithClock(catalog *Catalog, profiles ProfileManager, store profile.RecordStore, answers AnswerLog, clock Clock) *Engine {
	return &Engine{
		catalog:  catalog,
		profiles: profiles,
		store:    store,
		answers:  answers,
		clock:    clock,
		logger:   slog.Default(),
	}
}

// Catalog returns the engine's question bank.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Next returns the next eligible question, if any.
func (e *Engine) Next() (Question, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SelectNext(e.catalog, *e.loadLocked())
}

// Progress returns a copy of the progress record.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked().Clone()
}

// Active reports whether the interview is still running: onboarding is not
// complete and a question remains.
func (e *Engine) Active() bool {
	if e.profiles.GetProfile().OnboardingComplete {
		return false
	}
	_, ok := e.Next()
	return ok
}

// Status reports progress, counts and the next question.
func (e *Engine) Status() Status {
	p := e.profiles.GetProfile()

	e.mu.Lock()
	defer e.mu.Unlock()
	prog := e.loadLocked().Clone()
	st := Status{
		Progress:  prog,
		Answered:  len(prog.Answered),
		Remaining: Remaining(e.catalog, prog),
		Complete:  p.OnboardingComplete,
	}
	if q, ok := SelectNext(e.catalog, prog); ok {
		st.Next = &q
	}
	return st
}

// Record folds one answer into the profile and progress. An answer to an
// unknown question is logged and ignored.
func (e *Engine) Record(answer Answer) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prog := e.loadLocked()
	q, ok := e.catalog.Get(answer.QuestionID)
	if !ok {
		e.logger.Warn("ignoring answer to unknown question", "question_id", answer.QuestionID)
		return Result{Profile: e.profiles.GetProfile(), Progress: prog.Clone(), Ignored: true}, nil
	}

	now := e.clock.Now().UTC()
	var nextProg Progress
	p, err := e.profiles.Update(func(p *profile.Profile) error {
		np, nprog, err := RecordAnswer(q, answer, *p, *prog, now)
		if err != nil {
			return err
		}
		*p = np
		nextProg = nprog
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.progress = &nextProg
	e.persistLocked()
	e.logAnswer(answer, now)

	res := Result{Profile: p, Progress: nextProg.Clone()}
	if q, ok := SelectNext(e.catalog, nextProg); ok {
		res.Next = &q
	}
	return res, nil
}

// Complete marks onboarding finished and freezes the depth reached.
func (e *Engine) Complete() (profile.Profile, Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prog := e.loadLocked()
	now := e.clock.Now().UTC()
	var nextProg Progress
	p, err := e.profiles.Update(func(p *profile.Profile) error {
		np, nprog := Complete(*p, *prog, now)
		*p = np
		nextProg = nprog
		return nil
	})
	if err != nil {
		return profile.Profile{}, Progress{}, err
	}
	e.progress = &nextProg
	e.persistLocked()
	return p, nextProg.Clone(), nil
}

// Reset clears the profile, the progress record and the answer log.
func (e *Engine) Reset() profile.Profile {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.profiles.Reset()
	fresh := NewProgress()
	e.progress = &fresh
	e.dirty = false
	if err := e.store.Remove(ProgressKey); err != nil {
		e.logger.Warn("removing onboarding progress failed", "error", err)
		e.dirty = true
	}
	if e.answers != nil {
		if err := e.answers.ClearAnswers(); err != nil {
			e.logger.Warn("clearing answer log failed", "error", err)
		}
	}
	return p
}

// Flush re-persists progress if an earlier write failed.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty || e.progress == nil {
		return nil
	}
	if err := e.write(*e.progress); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

func (e *Engine) loadLocked() *Progress {
	if e.progress != nil {
		return e.progress
	}
	prog, err := e.read()
	if err != nil {
		e.logger.Warn("reading onboarding progress failed, starting fresh", "error", err)
		fresh := NewProgress()
		return &fresh
	}
	e.progress = &prog
	return e.progress
}

func (e *Engine) read() (Progress, error) {
	raw, err := e.store.Get(ProgressKey)
	if errors.Is(err, storage.ErrNotFound) {
		return NewProgress(), nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("loading progress: %w", err)
	}
	prog := NewProgress()
	if err := json.Unmarshal(raw, &prog); err != nil {
		return Progress{}, fmt.Errorf("decoding progress: %w", err)
	}
	if !prog.Depth.Valid() {
		prog.Depth = profile.TierStandard
	}
	if prog.Answered == nil {
		prog.Answered = []string{}
	}
	return prog, nil
}

func (e *Engine) persistLocked() {
	if err := e.write(*e.progress); err != nil {
		e.logger.Warn("persisting onboarding progress failed, will retry on next answer", "error", err)
		e.dirty = true
		return
	}
	e.dirty = false
}

func (e *Engine) write(prog Progress) error {
	b, err := json.Marshal(prog)
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}
	if err := e.store.Set(ProgressKey, b); err != nil {
		return fmt.Errorf("writing progress: %w", err)
	}
	return nil
}

func (e *Engine) logAnswer(answer Answer, now time.Time) {
	if e.answers == nil {
		return
	}
	b, err := json.Marshal(answer)
	if err != nil {
		e.logger.Warn("marshalling answer for log failed", "error", err)
		return
	}
	entry := storage.AnswerEntry{
		ID:         uuid.New().String(),
		QuestionID: answer.QuestionID,
		AnswerJSON: string(b),
		CreatedAt:  now,
	}
	if err := e.answers.AppendAnswer(entry); err != nil {
		e.logger.Warn("appending to answer log failed", "question_id", answer.QuestionID, "error", err)
	}
}
