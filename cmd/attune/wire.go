package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/attune/internal/api"
	"github.com/kalambet/attune/internal/coach"
	"github.com/kalambet/attune/internal/config"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/llm"
	"github.com/kalambet/attune/internal/metrics"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/overrides"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

// services is the fully wired component graph behind the server.
type services struct {
	cfg   config.Config
	token string

	store      *storage.Store
	writes     *storage.Debouncer
	profiles   *profile.Manager
	onboarding *onboarding.Engine
	policy     *kernel.Engine
	connection *connection.Tracker
	nudges     *connection.NudgeLog
	overrides  *overrides.Syncer
	metrics    *metrics.Metrics
	coach      *coach.Coach
}

// newServices opens storage under cfg.Storage.DataDir and builds every
// component. The cached override document is applied before returning;
// the remote sync is left to the caller.
func newServices(cfg config.Config) (*services, error) {
	token, err := config.APIToken(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("initializing API token: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	catalog, err := onboarding.DefaultCatalog()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading question catalog: %w", err)
	}
	matcher := textmatch.Literal{}
	policy, err := kernel.New(kernel.Options{Matcher: matcher})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building policy engine: %w", err)
	}

	s := &services{
		cfg:     cfg,
		token:   token,
		store:   store,
		writes:  storage.NewDebouncer(store, cfg.Storage.Debounce),
		policy:  policy,
		metrics: metrics.New(),
	}
	s.profiles = profile.NewManager(store)
	s.onboarding = onboarding.NewEngine(catalog, s.profiles, store, store)
	s.connection = connection.NewTracker(store, s.writes, matcher)
	s.nudges = connection.NewNudgeLog(store)
	s.overrides = overrides.NewSyncer(overrides.Options{
		URL:         cfg.Overrides.URL,
		Timeout:     cfg.Overrides.Timeout,
		MinInterval: cfg.Overrides.MinInterval,
		Store:       store,
		OnChange:    policy.ApplyOverrides,
	})
	if doc, ok := s.overrides.LoadCached(); ok {
		slog.Info("applied cached overrides", "version", doc.Version)
	}

	deps := coach.Deps{
		Onboarding: s.onboarding,
		Profiles:   s.profiles,
		Connection: s.connection,
		Nudges:     s.nudges,
		Policy:     policy,
		Metrics:    s.metrics,
		Matcher:    matcher,
	}
	if cfg.LLM.APIKey != "" {
		deps.Completer = llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithModel(cfg.LLM.Model)
	} else {
		slog.Warn("no LLM API key configured; conversation turns will use fallback replies")
	}
	s.coach = coach.New(deps)

	return s, nil
}

// syncOverrides pulls the remote override document once and records the
// outcome. Failures keep the cached document in effect.
func (s *services) syncOverrides(ctx context.Context) {
	_, err := s.overrides.Sync(ctx)
	s.metrics.ObserveSync(overrides.SyncResult(err))
	if errors.Is(err, overrides.ErrNoEndpoint) {
		slog.Debug("no override endpoint configured")
	}
}

// handler composes the OpenAI-compatible routes and the management API.
func (s *services) handler() http.Handler {
	openaiHandler := api.NewOpenAIHandler(s.coach, s.cfg.LLM.Model, s.token)
	appHandler := api.NewAppHandler(api.AppDeps{
		Profiles:   s.profiles,
		Onboarding: s.onboarding,
		Policy:     s.policy,
		Connection: s.connection,
		Nudges:     s.nudges,
		Overrides:  s.overrides,
		Metrics:    s.metrics,
		Token:      s.token,
	})

	r := chi.NewRouter()
	r.Handle("/v1/*", openaiHandler)
	r.Handle("/*", appHandler)
	return r
}

func (s *services) mcpServer() *server.MCPServer {
	return api.NewMCPServer(api.MCPDeps{
		Profiles:   s.profiles,
		Onboarding: s.onboarding,
		Policy:     s.policy,
		Connection: s.connection,
		Nudges:     s.nudges,
		Metrics:    s.metrics,
	})
}

// close flushes pending writes and closes storage.
func (s *services) close() error {
	var errs []error
	if err := s.writes.Close(); err != nil {
		errs = append(errs, fmt.Errorf("flushing connection record: %w", err))
	}
	if err := s.profiles.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing profile: %w", err))
	}
	if err := s.onboarding.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing onboarding: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}
