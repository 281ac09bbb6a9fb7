package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/kalambet/attune/internal/storage"
)

// CacheKey is the record key of the locally cached document.
const CacheKey = "overrides:document"

const (
	defaultTimeout     = 10 * time.Second
	defaultMinInterval = time.Minute
	maxBodyBytes       = 1 << 20
)

var (
	// ErrNoEndpoint is returned by Sync when no remote URL is configured.
	ErrNoEndpoint = errors.New("no override endpoint configured")
	// ErrRateLimited is returned by Sync when called again too soon.
	ErrRateLimited = errors.New("override sync rate limited")
)

// SyncResult labels the outcome of a Sync call for metrics and logs.
func SyncResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoEndpoint):
		return "no_endpoint"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// Store persists the cached document.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures a Syncer.
type Options struct {
	URL         string
	Timeout     time.Duration
	MinInterval time.Duration
	Store       Store
	// OnChange is called with every document that becomes current.
	OnChange   func(Document)
	HTTPClient *http.Client
	Clock      Clock
}

// Syncer fetches the remote override document and keeps the last good copy
// in local storage.
type Syncer struct {
	url      string
	client   *http.Client
	store    Store
	onChange func(Document)
	clock    Clock
	limiter  *rate.Limiter
	group    singleflight.Group

	mu      sync.Mutex
	current Document
}

// NewSyncer creates a Syncer. Nothing is loaded until LoadCached or Sync.
func NewSyncer(opts Options) *Syncer {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	return &Syncer{
		url:      opts.URL,
		client:   client,
		store:    opts.Store,
		onChange: opts.OnChange,
		clock:    clock,
		limiter:  rate.NewLimiter(rate.Every(opts.MinInterval), 1),
	}
}

// Current returns the document in effect.
func (s *Syncer) Current() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// LoadCached loads the locally cached document, if any, and makes it current.
func (s *Syncer) LoadCached() (Document, bool) {
	raw, err := s.store.Get(CacheKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("failed to read cached overrides", "error", err)
		}
		return s.Current(), false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.Warn("cached overrides are corrupt, ignoring", "error", err)
		return s.Current(), false
	}
	s.mu.Lock()
	s.current = doc
	s.mu.Unlock()
	s.notify(doc)
	return doc.Clone(), true
}

// Sync fetches the remote document. A document whose Version is not older
// than the current one replaces it. On any failure the current document
// stays in effect and is returned together with the error.
func (s *Syncer) Sync(ctx context.Context) (Document, error) {
	if s.url == "" {
		return s.Current(), ErrNoEndpoint
	}
	if !s.limiter.Allow() {
		return s.Current(), ErrRateLimited
	}

	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		slog.Warn("override sync failed, keeping cached document", "error", err)
		return s.Current(), fmt.Errorf("syncing overrides: %w", err)
	}
	doc := v.(Document)

	s.mu.Lock()
	if doc.Version < s.current.Version {
		cur := s.current.Clone()
		s.mu.Unlock()
		slog.Info("remote overrides are older than cache, ignoring",
			"remote_version", doc.Version, "cached_version", cur.Version)
		return cur, nil
	}
	s.current = doc
	s.mu.Unlock()

	s.persist(doc)
	s.notify(doc)
	slog.Info("overrides synced", "version", doc.Version)
	return doc.Clone(), nil
}

func (s *Syncer) fetch(ctx context.Context) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Document{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decoding document: %w", err)
	}
	if doc.Version < 0 {
		return Document{}, fmt.Errorf("invalid version %d", doc.Version)
	}
	return doc, nil
}

// Disable adds ids to the disabled list as a local edit.
func (s *Syncer) Disable(ids ...string) Document {
	return s.edit(func(d *Document) {
		for _, id := range ids {
			if id != "" && !slices.Contains(d.DisabledConstraintIDs, id) {
				d.DisabledConstraintIDs = append(d.DisabledConstraintIDs, id)
			}
		}
	})
}

// Enable removes ids from the disabled list as a local edit.
func (s *Syncer) Enable(ids ...string) Document {
	return s.edit(func(d *Document) {
		d.DisabledConstraintIDs = slices.DeleteFunc(d.DisabledConstraintIDs, func(id string) bool {
			return slices.Contains(ids, id)
		})
	})
}

// edit applies fn to the current document, bumps its version and persists it.
func (s *Syncer) edit(fn func(*Document)) Document {
	s.mu.Lock()
	doc := s.current.Clone()
	fn(&doc)
	doc.Version++
	doc.LastUpdated = s.clock.Now().UTC()
	s.current = doc
	s.mu.Unlock()

	s.persist(doc)
	s.notify(doc)
	return doc.Clone()
}

func (s *Syncer) persist(doc Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		slog.Error("failed to encode overrides", "error", err)
		return
	}
	if err := s.store.Set(CacheKey, data); err != nil {
		slog.Warn("failed to cache overrides", "error", err)
	}
}

func (s *Syncer) notify(doc Document) {
	if s.onChange != nil {
		s.onChange(doc.Clone())
	}
}

// Schema returns the JSON schema of Document.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := r.Reflect(&Document{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	return data, nil
}
