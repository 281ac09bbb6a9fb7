package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kalambet/attune/internal/coach"
	"github.com/kalambet/attune/internal/config"
	"github.com/kalambet/attune/internal/kernel"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server:  config.ServerConfig{Port: 0},
		Storage: config.StorageConfig{DataDir: t.TempDir(), Debounce: 10 * time.Millisecond},
		Log:     config.LogConfig{Level: "info"},
		LLM:     config.LLMConfig{Model: "attune-test"},
		Overrides: config.OverridesConfig{
			Timeout:     time.Second,
			MinInterval: time.Millisecond,
		},
	}
}

func startServices(t *testing.T, cfg config.Config) *services {
	t.Helper()
	svc, err := newServices(cfg)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	t.Cleanup(func() { svc.close() })
	return svc
}

func serve(t *testing.T, svc *services, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+svc.token)
	}
	rr := httptest.NewRecorder()
	svc.handler().ServeHTTP(rr, req)
	return rr
}

func TestServices_Routing(t *testing.T) {
	svc := startServices(t, testConfig(t))

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		want   int
	}{
		{"health is open", http.MethodGet, "/health", false, http.StatusOK},
		{"metrics is open", http.MethodGet, "/metrics", false, http.StatusOK},
		{"profile needs token", http.MethodGet, "/profile", false, http.StatusUnauthorized},
		{"profile with token", http.MethodGet, "/profile", true, http.StatusOK},
		{"models needs token", http.MethodGet, "/v1/models", false, http.StatusUnauthorized},
		{"models with token", http.MethodGet, "/v1/models", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, svc, tt.method, tt.path, "", tt.auth)
			if rr.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rr.Code, tt.want)
			}
		})
	}
}

func TestServices_TokenIsStable(t *testing.T) {
	cfg := testConfig(t)
	first := startServices(t, cfg).token
	token, err := config.APIToken(cfg.Storage.DataDir)
	if err != nil {
		t.Fatalf("APIToken: %v", err)
	}
	if token != first {
		t.Errorf("client token %q differs from server token %q", token, first)
	}
}

func TestServices_ChatStartsWithOnboarding(t *testing.T) {
	svc := startServices(t, testConfig(t))

	rr := serve(t, svc, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Attune-Mode"); got != coach.ModeOnboarding {
		t.Errorf("X-Attune-Mode = %q, want %q", got, coach.ModeOnboarding)
	}
}

func TestServices_ChatWithoutLLMFallsBack(t *testing.T) {
	svc := startServices(t, testConfig(t))
	if rr := serve(t, svc, http.MethodPost, "/onboarding/complete", `{}`, true); rr.Code != http.StatusOK {
		t.Fatalf("complete onboarding: %d", rr.Code)
	}

	rr := serve(t, svc, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"long week"}]}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Attune-Fallback"); got != coach.ReasonUnavailable {
		t.Errorf("X-Attune-Fallback = %q, want %q", got, coach.ReasonUnavailable)
	}
}

func TestServices_ChatUsesConfiguredLLM(t *testing.T) {
	var calls atomic.Int32
	var auth atomic.Value
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"gen-1","object":"chat.completion","model":"attune-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"That sounds like a lot to carry."},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(llmSrv.Close)

	cfg := testConfig(t)
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = llmSrv.URL
	svc := startServices(t, cfg)
	serve(t, svc, http.MethodPost, "/onboarding/complete", `{}`, true)

	rr := serve(t, svc, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"long week"}]}`, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if calls.Load() == 0 {
		t.Fatal("configured LLM was never called")
	}
	if got, _ := auth.Load().(string); got != "Bearer test-key" {
		t.Errorf("LLM auth = %q, want Bearer test-key", got)
	}
	if got := rr.Header().Get("X-Attune-Mode"); got != coach.ModeConversation {
		t.Errorf("X-Attune-Mode = %q, want %q", got, coach.ModeConversation)
	}
}

func TestServices_OverridesSurviveRestart(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"version":               5,
			"disabledConstraintIds": []string{kernel.PlainLanguage},
			"lastUpdated":           "2026-05-01T00:00:00Z",
		})
	}))
	t.Cleanup(remote.Close)

	cfg := testConfig(t)
	cfg.Overrides.URL = remote.URL
	svc, err := newServices(cfg)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	svc.syncOverrides(context.Background())
	if got := svc.policy.Version(); got != 5 {
		t.Fatalf("policy version after sync = %d, want 5", got)
	}
	if got := testutil.ToFloat64(svc.metrics.OverrideSyncs.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok syncs = %v, want 1", got)
	}
	if err := svc.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Restart offline: the cached document applies before any sync.
	cfg.Overrides.URL = ""
	restarted := startServices(t, cfg)
	if got := restarted.policy.Version(); got != 5 {
		t.Errorf("policy version after restart = %d, want 5", got)
	}
	for _, r := range restarted.policy.Rules() {
		if r.ID == kernel.PlainLanguage && r.Enabled {
			t.Error("plain_language should stay disabled after restart")
		}
	}

	restarted.syncOverrides(context.Background())
	if got := testutil.ToFloat64(restarted.metrics.OverrideSyncs.WithLabelValues("no_endpoint")); got != 1 {
		t.Errorf("no_endpoint syncs = %v, want 1", got)
	}
}

func TestServices_CloseFlushesConnection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Debounce = time.Hour
	svc, err := newServices(cfg)
	if err != nil {
		t.Fatalf("newServices: %v", err)
	}
	svc.connection.SetExternalSupport(true)
	if err := svc.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restarted := startServices(t, cfg)
	if !restarted.connection.Current().HasExternalSupport {
		t.Error("connection record written through the debouncer was lost on close")
	}
}
