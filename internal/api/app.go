package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/attune/internal/adapt"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/metrics"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/overrides"
	"github.com/kalambet/attune/internal/pacing"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/textmatch"
)

// AppDeps holds the components behind the management API.
type AppDeps struct {
	Profiles   *profile.Manager
	Onboarding *onboarding.Engine
	Policy     *kernel.Engine
	Connection *connection.Tracker
	Nudges     *connection.NudgeLog
	Overrides  *overrides.Syncer
	Metrics    *metrics.Metrics  // optional
	Matcher    textmatch.Matcher // optional; literal matching if nil
	Token      string
}

// NewAppHandler returns the management API. /health and /metrics are open;
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Matcher == nil {
		deps.Matcher = textmatch.Literal{}
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/profile", handleGetProfile(deps))
		r.Delete("/profile", handleResetProfile(deps))
		r.Get("/profile/context", handleProfileContext(deps))

		r.Get("/onboarding/next", handleOnboardingNext(deps))
		r.Get("/onboarding/progress", handleOnboardingProgress(deps))
		r.Post("/onboarding/answers", handleRecordAnswer(deps))
		r.Post("/onboarding/complete", handleCompleteOnboarding(deps))

		r.Post("/validate", handleValidate(deps))
		r.Post("/pacing", handlePacing(deps))
		r.Get("/principles", handlePrinciples(deps))

		r.Get("/connection-health", handleConnectionHealth(deps))
		r.Put("/connection-health/support", handleExternalSupport(deps))
		r.Get("/nudges", handleNudges(deps))

		r.Get("/overrides", handleGetOverrides(deps))
		r.Post("/overrides/sync", handleSyncOverrides(deps))
		r.Post("/overrides/disable", handleEditOverrides(deps, deps.Overrides.Disable))
		r.Post("/overrides/enable", handleEditOverrides(deps, deps.Overrides.Enable))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Profiles.GetProfile())
	}
}

// handleResetProfile forgets everything learned about the person: profile,
// onboarding progress and answers, connection record and nudge history.
func handleResetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := deps.Onboarding.Reset()
		deps.Connection.Reset()
		if err := deps.Nudges.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear nudges: %v", err)
			return
		}
		writeJSON(w, map[string]any{"status": "reset", "profile": p})
	}
}

func handleProfileContext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := deps.Profiles.GetProfile()
		d := adapt.Project(p)
		writeJSON(w, map[string]any{
			"context":    profile.ContextBlock(p),
			"directives": d,
			"adaptation": d.Lines(),
		})
	}
}

func handleOnboardingNext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := deps.Onboarding.Next()
		resp := map[string]any{"done": !ok}
		if ok {
			resp["question"] = q
		}
		writeJSON(w, resp)
	}
}

func handleOnboardingProgress(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Onboarding.Status())
	}
}

// AnswerRequest is a structured answer, or a free-text Reply that is parsed
// against the question's options.
type AnswerRequest struct {
	onboarding.Answer
	Reply string `json:"reply,omitempty"`
}

func handleRecordAnswer(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnswerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.QuestionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question_id is required")
			return
		}

		answer := req.Answer
		if req.Reply != "" {
			q, ok := deps.Onboarding.Catalog().Get(req.QuestionID)
			if !ok {
				httpError(w, http.StatusNotFound, "not_found", "unknown question %q", req.QuestionID)
				return
			}
			parsed, err := onboarding.ParseAnswer(q, req.Reply)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			answer = parsed
		}

		res, err := deps.Onboarding.Record(answer)
		if errors.Is(err, onboarding.ErrInvalidAnswer) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record answer: %v", err)
			return
		}
		if !res.Ignored && deps.Metrics != nil {
			deps.Metrics.AnswersRecorded.Inc()
		}
		writeJSON(w, res)
	}
}

func handleCompleteOnboarding(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, prog, err := deps.Onboarding.Complete()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to complete onboarding: %v", err)
			return
		}
		writeJSON(w, map[string]any{"profile": p, "progress": prog})
	}
}

// ValidateRequest is a candidate response and the message it answers.
type ValidateRequest struct {
	Response    string `json:"response"`
	UserMessage string `json:"user_message"`
}

func handleValidate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Response == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "response is required")
			return
		}

		v := deps.Policy.ValidateCoachResponse(kernel.Input{
			Response:     req.Response,
			UserMessage:  req.UserMessage,
			Profile:      deps.Profiles.GetProfile(),
			Connection:   deps.Connection.Current(),
			RecentNudges: deps.Nudges.Times(),
			Now:          time.Now().UTC(),
		})
		deps.Metrics.ObserveVerdict(v.CanSend, v.Verdict.Score,
			kernel.IDs(v.Verdict.Violations), kernel.IDs(v.Verdict.Suggestions), kernel.IDs(v.Verdict.TenetViolations))
		writeJSON(w, v)
	}
}

func handlePacing(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in pacing.Input
		if !decodeBody(w, r, &in) {
			return
		}
		res := pacing.DetectWith(deps.Matcher, in)
		writeJSON(w, map[string]any{
			"signals":   res.Signals,
			"state":     res.State,
			"directive": res.Directive,
			"hint":      res.Directive.PromptHint(),
		})
	}
}

func handlePrinciples(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		beliefs, custom := deps.Policy.Beliefs()
		writeJSON(w, map[string]any{
			"version":        deps.Policy.Version(),
			"beliefs":        beliefs,
			"custom_beliefs": custom,
			"rules":          deps.Policy.Rules(),
			"tenets":         kernel.Tenets(),
			"context":        deps.Policy.PrincipleContext(),
		})
	}
}

func handleConnectionHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Connection.Current())
	}
}

func handleExternalSupport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			HasExternalSupport *bool `json:"has_external_support"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.HasExternalSupport == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "has_external_support is required")
			return
		}
		writeJSON(w, deps.Connection.SetExternalSupport(*req.HasExternalSupport))
	}
}

func handleNudges(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, connection.NudgeHistorySize)
		writeJSON(w, deps.Nudges.Recent(limit))
	}
}

func handleGetOverrides(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Overrides.Current())
	}
}

func handleSyncOverrides(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Overrides.Sync(r.Context())
		deps.Metrics.ObserveSync(overrides.SyncResult(err))
		switch {
		case errors.Is(err, overrides.ErrNoEndpoint):
			httpError(w, http.StatusConflict, "invalid_request_error", "no override endpoint configured")
			return
		case errors.Is(err, overrides.ErrRateLimited):
			httpError(w, http.StatusTooManyRequests, "rate_limit_error", "override sync is rate limited")
			return
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "override sync failed, keeping version %d: %v", doc.Version, err)
			return
		}
		writeJSON(w, doc)
	}
}

// RuleIDsRequest names rules to disable or enable.
type RuleIDsRequest struct {
	IDs []string `json:"ids"`
}

// handleEditOverrides applies a local disable or enable. Unknown rule IDs are
// reported back and not stored.
func handleEditOverrides(deps AppDeps, edit func(ids ...string) overrides.Document) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RuleIDsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		known, unknown := splitKnown(deps.Policy, req.IDs)
		if len(known) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no known rule ids in %v", req.IDs)
			return
		}
		doc := edit(known...)
		writeJSON(w, map[string]any{"document": doc, "ignored": unknown})
	}
}

func splitKnown(policy *kernel.Engine, ids []string) (known, unknown []string) {
	for _, id := range ids {
		if policy.KnownRule(id) {
			known = append(known, id)
		} else {
			unknown = append(unknown, id)
		}
	}
	return known, unknown
}
