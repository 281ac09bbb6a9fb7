package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/metrics"
	"github.com/kalambet/attune/internal/onboarding"
	"github.com/kalambet/attune/internal/overrides"
	"github.com/kalambet/attune/internal/profile"
	"github.com/kalambet/attune/internal/storage"
	"github.com/kalambet/attune/internal/textmatch"
)

const testToken = "test-token-12345"

type testApp struct {
	handler http.Handler
	deps    AppDeps
	store   *storage.Store
}

// setupApp wires real components over an in-memory store. overridesURL may
// be empty.
func setupApp(t *testing.T, overridesURL string) testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalog, err := onboarding.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	policy, err := kernel.New(kernel.Options{})
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	profiles := profile.NewManager(store)

	deps := AppDeps{
		Profiles:   profiles,
		Onboarding: onboarding.NewEngine(catalog, profiles, store, store),
		Policy:     policy,
		Connection: connection.NewTracker(store, store, textmatch.Literal{}),
		Nudges:     connection.NewNudgeLog(store),
		Overrides: overrides.NewSyncer(overrides.Options{
			URL:         overridesURL,
			Store:       store,
			MinInterval: time.Millisecond,
			OnChange:    policy.ApplyOverrides,
		}),
		Metrics: metrics.New(),
		Token:   testToken,
	}
	return testApp{handler: NewAppHandler(deps), deps: deps, store: store}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (a testApp) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestAuth(t *testing.T) {
	app := setupApp(t, "")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", testToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			app.handler.ServeHTTP(rr, authReq(http.MethodGet, "/profile", "", tt.token))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestHealthAndMetrics_NoAuth(t *testing.T) {
	app := setupApp(t, "")
	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}
}

func TestProfile_GetAndContext(t *testing.T) {
	app := setupApp(t, "")

	rr := app.do(t, http.MethodGet, "/profile", "")
	p := decode[profile.Profile](t, rr)
	if p.CommunicationStyle != "gentle" || p.OnboardingComplete {
		t.Errorf("unexpected default profile: %+v", p)
	}

	rr = app.do(t, http.MethodGet, "/profile/context", "")
	body := decode[map[string]json.RawMessage](t, rr)
	for _, key := range []string{"context", "directives", "adaptation"} {
		if _, ok := body[key]; !ok {
			t.Errorf("profile context missing %q", key)
		}
	}
}

func TestOnboarding_Flow(t *testing.T) {
	app := setupApp(t, "")

	rr := app.do(t, http.MethodGet, "/onboarding/next", "")
	next := decode[struct {
		Done     bool                `json:"done"`
		Question onboarding.Question `json:"question"`
	}](t, rr)
	if next.Done || next.Question.ID != onboarding.WelcomeQuestionID {
		t.Fatalf("first question = %+v", next)
	}

	rr = app.do(t, http.MethodPost, "/onboarding/answers", `{"question_id":"welcome_comfort","reply":"banana"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unparseable reply status = %d, want 400", rr.Code)
	}

	rr = app.do(t, http.MethodPost, "/onboarding/answers", `{"question_id":"welcome_comfort","reply":"1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("answer status = %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[onboarding.Result](t, rr)
	if res.Progress.Depth != profile.TierDeep || res.Next == nil {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Profile.Confidence != onboarding.ConfidenceStep {
		t.Errorf("confidence = %d, want %d", res.Profile.Confidence, onboarding.ConfidenceStep)
	}

	// Structured answers skip parsing.
	rr = app.do(t, http.MethodPost, "/onboarding/answers",
		fmt.Sprintf(`{"question_id":%q,"selected":[%q]}`, res.Next.ID, res.Next.Options[0].Value))
	if rr.Code != http.StatusOK {
		t.Fatalf("structured answer status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = app.do(t, http.MethodGet, "/onboarding/progress", "")
	st := decode[onboarding.Status](t, rr)
	if st.Answered != 2 || st.Complete {
		t.Errorf("status = %+v", st)
	}

	rr = app.do(t, http.MethodPost, "/onboarding/complete", "")
	done := decode[struct {
		Profile profile.Profile `json:"profile"`
	}](t, rr)
	if !done.Profile.OnboardingComplete {
		t.Error("onboarding not marked complete")
	}
}

func TestOnboarding_MissingQuestionID(t *testing.T) {
	app := setupApp(t, "")
	rr := app.do(t, http.MethodPost, "/onboarding/answers", `{"reply":"1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestValidate(t *testing.T) {
	app := setupApp(t, "")

	rr := app.do(t, http.MethodPost, "/validate", `{"response":"It sounds like you have depression.","user_message":"I feel flat"}`)
	v := decode[kernel.CoachValidation](t, rr)
	if v.CanSend || len(v.Modifications) == 0 {
		t.Errorf("diagnosis should be blocked: %+v", v)
	}

	rr = app.do(t, http.MethodPost, "/validate", `{"response":"That sounds heavy. I'm here with you.","user_message":"I feel flat"}`)
	v = decode[kernel.CoachValidation](t, rr)
	if !v.CanSend || v.Verdict.Score != 100 {
		t.Errorf("clean reply should pass: %+v", v)
	}

	rr = app.do(t, http.MethodPost, "/validate", `{"user_message":"hi"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty response status = %d, want 400", rr.Code)
	}
}

func TestPacing(t *testing.T) {
	app := setupApp(t, "")
	rr := app.do(t, http.MethodPost, "/pacing", `{"text":"HELP ME NOW!!"}`)
	body := decode[map[string]any](t, rr)
	if body["state"] != "activated" {
		t.Errorf("state = %v, want activated", body["state"])
	}
	if hint, _ := body["hint"].(string); !strings.Contains(hint, "slower") {
		t.Errorf("hint = %q", hint)
	}
}

func TestConnectionHealth_Support(t *testing.T) {
	app := setupApp(t, "")

	rr := app.do(t, http.MethodPut, "/connection-health/support", `{"has_external_support":true}`)
	h := decode[connection.Health](t, rr)
	if !h.HasExternalSupport {
		t.Error("support not recorded")
	}

	rr = app.do(t, http.MethodGet, "/connection-health", "")
	h = decode[connection.Health](t, rr)
	if !h.HasExternalSupport || h.Isolation != connection.LevelNone {
		t.Errorf("health = %+v", h)
	}

	rr = app.do(t, http.MethodPut, "/connection-health/support", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing flag status = %d, want 400", rr.Code)
	}
}

func TestNudges(t *testing.T) {
	app := setupApp(t, "")
	app.deps.Nudges.Record(connection.NudgeKind, "Could you reach out to a friend?")

	rr := app.do(t, http.MethodGet, "/nudges?limit=5", "")
	nudges := decode[[]storage.Nudge](t, rr)
	if len(nudges) != 1 || nudges[0].Kind != connection.NudgeKind {
		t.Errorf("nudges = %+v", nudges)
	}
}

func TestOverrides_DisableEnable(t *testing.T) {
	app := setupApp(t, "")

	rr := app.do(t, http.MethodPost, "/overrides/disable", `{"ids":["plain_language","no_such_rule"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	res := decode[struct {
		Document overrides.Document `json:"document"`
		Ignored  []string           `json:"ignored"`
	}](t, rr)
	if !res.Document.IsDisabled(kernel.PlainLanguage) || res.Document.Version != 1 {
		t.Errorf("document = %+v", res.Document)
	}
	if !slices.Equal(res.Ignored, []string{"no_such_rule"}) {
		t.Errorf("ignored = %v", res.Ignored)
	}
	if enabled(app.deps.Policy, kernel.PlainLanguage) {
		t.Error("policy engine did not apply the disable")
	}

	rr = app.do(t, http.MethodPost, "/overrides/enable", `{"ids":["plain_language"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("enable status = %d", rr.Code)
	}
	if !enabled(app.deps.Policy, kernel.PlainLanguage) {
		t.Error("rule still disabled after enable")
	}

	rr = app.do(t, http.MethodPost, "/overrides/disable", `{"ids":["bogus"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("all-unknown status = %d, want 400", rr.Code)
	}
}

func TestOverrides_LockedRuleStaysEnabled(t *testing.T) {
	app := setupApp(t, "")
	app.do(t, http.MethodPost, "/overrides/disable", `{"ids":["crisis_resources_required"]}`)
	if !enabled(app.deps.Policy, kernel.CrisisResourcesRequired) {
		t.Error("locked rule was disabled")
	}
}

func TestOverrides_Sync(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"version":5,"customBeliefs":["Rest is productive."],"disabledConstraintIds":["nudge_frequency"]}`)
	}))
	t.Cleanup(remote.Close)
	app := setupApp(t, remote.URL)

	rr := app.do(t, http.MethodPost, "/overrides/sync", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if v := app.deps.Policy.Version(); v != 5 {
		t.Errorf("policy version = %d, want 5", v)
	}
	if !strings.Contains(app.deps.Policy.PrincipleContext(), "Rest is productive.") {
		t.Error("custom belief not applied")
	}

	rr = app.do(t, http.MethodGet, "/overrides", "")
	doc := decode[overrides.Document](t, rr)
	if doc.Version != 5 {
		t.Errorf("current version = %d, want 5", doc.Version)
	}
}

func TestOverrides_SyncWithoutEndpoint(t *testing.T) {
	app := setupApp(t, "")
	rr := app.do(t, http.MethodPost, "/overrides/sync", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestOverrides_SyncFailureKeepsCurrent(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(remote.Close)
	app := setupApp(t, remote.URL)
	app.deps.Overrides.Disable(kernel.PlainLanguage)

	rr := app.do(t, http.MethodPost, "/overrides/sync", "")
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
	if enabled(app.deps.Policy, kernel.PlainLanguage) {
		t.Error("failed sync dropped the local override")
	}
}

func TestPrinciples(t *testing.T) {
	app := setupApp(t, "")
	rr := app.do(t, http.MethodGet, "/principles", "")
	body := decode[struct {
		Rules   []kernel.RuleStatus `json:"rules"`
		Tenets  []kernel.Tenet      `json:"tenets"`
		Context string              `json:"context"`
	}](t, rr)
	if len(body.Rules) == 0 || len(body.Tenets) != len(kernel.Tenets()) {
		t.Errorf("rules = %d, tenets = %d", len(body.Rules), len(body.Tenets))
	}
	if !strings.Contains(body.Context, "Hard rules:") {
		t.Errorf("context = %q", body.Context)
	}
}

func TestResetProfile(t *testing.T) {
	app := setupApp(t, "")
	app.do(t, http.MethodPost, "/onboarding/answers", `{"question_id":"welcome_comfort","reply":"excited"}`)
	app.deps.Connection.SetExternalSupport(true)
	app.deps.Nudges.Record(connection.NudgeKind, "Call a friend today?")

	rr := app.do(t, http.MethodDelete, "/profile", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if st := app.deps.Onboarding.Status(); st.Answered != 0 {
		t.Errorf("answered = %d after reset", st.Answered)
	}
	if app.deps.Connection.Current().HasExternalSupport {
		t.Error("connection record not reset")
	}
	if n := app.deps.Nudges.Recent(10); len(n) != 0 {
		t.Errorf("nudges = %v after reset", n)
	}
}

func enabled(policy *kernel.Engine, id string) bool {
	for _, r := range policy.Rules() {
		if r.ID == id {
			return r.Enabled
		}
	}
	return false
}
