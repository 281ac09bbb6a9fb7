package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// body decodes the JSON body of the i-th recorded request.
func (ts *testServer) body(t *testing.T, i int) map[string]any {
	t.Helper()
	if len(ts.requests) <= i {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(ts.requests))
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ts.requests[i].Body), &m); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	return m
}

// runCLI executes the root command against ts and returns what it wrote to stdout.
func runCLI(t *testing.T, ts *testServer, args ...string) (string, error) {
	t.Helper()
	oldClient, oldColor := newAPIClient, noColor
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	t.Cleanup(func() {
		newAPIClient, noColor = oldClient, oldColor
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

var ctx = context.Background()

const chatReply = `{"id":"chatcmpl-1","object":"chat.completion","model":"attune",
	"choices":[{"index":0,"message":{"role":"assistant","content":"I'm here with you."},"finish_reason":"stop"}]}`

func TestChatCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /v1/chat/completions": chatReply})

	out, err := runCLI(t, ts, "chat", "rough", "day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "I'm here with you." {
		t.Errorf("output = %q", out)
	}

	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	body := ts.body(t, 0)
	want := []any{map[string]any{"role": "user", "content": "rough day"}}
	if diff := cmp.Diff(want, body["messages"]); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if _, ok := body["audio_metrics"]; ok {
		t.Error("audio_metrics sent without audio flags")
	}
}

func TestChatCommand_AudioFlags(t *testing.T) {
	ts := newTestServer(t, map[string]string{"POST /v1/chat/completions": chatReply})
	t.Cleanup(func() { chatCmd.Flags().Set("wpm", "0") })

	if _, err := runCLI(t, ts, "chat", "--wpm", "185", "too", "much"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	audio, ok := ts.body(t, 0)["audio_metrics"].(map[string]any)
	if !ok {
		t.Fatal("audio_metrics missing from request")
	}
	if audio["words_per_minute"] != 185.0 {
		t.Errorf("words_per_minute = %v, want 185", audio["words_per_minute"])
	}
}

func TestChatCommand_MissingArgs(t *testing.T) {
	ts := newTestServer(t, nil)
	if _, err := runCLI(t, ts, "chat"); err == nil {
		t.Fatal("expected error for missing message")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestOnboardingAnswerCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /onboarding/answers": `{"profile":{"confidence":8},"progress":{"answered":["welcome_comfort"]},
			"next":{"id":"mental_imagery","prompt":"When you picture a beach, what do you see?","type":"single",
			"options":[{"value":"none","label":"Nothing at all"},{"value":"vivid","label":"A vivid scene"}]}}`,
	})

	out, err := runCLI(t, ts, "onboarding", "answer", "welcome_comfort", "quite", "comfortable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := ts.body(t, 0)
	if body["question_id"] != "welcome_comfort" || body["reply"] != "quite comfortable" {
		t.Errorf("body = %v", body)
	}
	for _, want := range []string{"[mental_imagery]", "what do you see?", "1. Nothing at all", "2. A vivid scene"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestOnboardingNextCommand_Done(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /onboarding/next": `{"done":true}`})

	out, err := runCLI(t, ts, "onboarding", "next")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "" {
		t.Errorf("expected no question output, got %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /validate": `{"can_send":false,"is_valid":false,"modifications":["Include the 988 lifeline"],
			"verdict":{"can_proceed":false,"can_send":false,"score":40,
			"violations":[{"rule_id":"crisis_resources_required","category":"safety","violation":"no crisis resources offered"}]}}`,
	})
	t.Cleanup(func() { validateCmd.Flags().Set("message", "") })

	out, err := runCLI(t, ts, "validate", "--message", "I want to end my life", "Let's", "talk.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := ts.body(t, 0)
	if body["response"] != "Let's talk." || body["user_message"] != "I want to end my life" {
		t.Errorf("body = %v", body)
	}
	for _, want := range []string{"blocked (score 40)", "crisis_resources_required", "Include the 988 lifeline"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintValidation_CanSend(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	printValidation(&buf, kernel.CoachValidation{
		CanSend: true,
		IsValid: true,
		Verdict: kernel.Verdict{
			CanSend: true,
			Score:   90,
			Suggestions: []kernel.Finding{
				{RuleID: kernel.PlainLanguage, Violation: "jargon"},
			},
		},
	})
	want := "can send (score 90)\n  soft plain_language: jargon\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintHealth(t *testing.T) {
	oldOut, oldColor := stderr, noColor
	defer func() { stderr, noColor = oldOut, oldColor }()
	var buf bytes.Buffer
	stderr, noColor = &buf, true

	friend := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	printHealth(connection.Health{
		Isolation:         connection.LevelMild,
		LastFriendMention: &friend,
		IsolationSignals:  []time.Time{friend},
	})

	out := buf.String()
	for _, want := range []string{"Isolation: mild", "Isolation signals: 1", "Last friend mention: 2026-03-01 09:30"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "family") {
		t.Errorf("unset mentions should be omitted:\n%s", out)
	}
}

func TestOverridesDisableCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /overrides/disable": `{"document":{"version":3,"disabledConstraintIds":["plain_language"],"lastUpdated":"2026-01-01T00:00:00Z"},"ignored":["nope"]}`,
	})

	if _, err := runCLI(t, ts, "overrides", "disable", "plain_language", "nope"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{"plain_language", "nope"}, ts.body(t, 0)["ids"]); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestOverridesSchemaCommand(t *testing.T) {
	ts := newTestServer(t, nil)
	out, err := runCLI(t, ts, "overrides", "schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "disabledConstraintIds") {
		t.Errorf("schema output missing disabledConstraintIds:\n%s", out)
	}
	if len(ts.requests) != 0 {
		t.Error("schema should not call the server")
	}
}

func TestConnectionSupportCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /connection-health/support": `{"isolation":"none","has_external_support":true,"isolation_signals":[],"dependency_signals":[]}`,
	})

	if _, err := runCLI(t, ts, "connection", "support", "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ts.body(t, 0)["has_external_support"]; got != true {
		t.Errorf("has_external_support = %v, want true", got)
	}

	_, err := runCLI(t, ts, "connection", "support", "maybe")
	if err == nil || !strings.Contains(err.Error(), "true or false") {
		t.Errorf("error = %v, want it to mention 'true or false'", err)
	}
	if len(ts.requests) != 1 {
		t.Errorf("invalid argument reached the server")
	}
}

func TestNudgesCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /nudges": `[{"id":"n1","kind":"connection","text":"Is there someone you could call this week?","created_at":"2026-03-01T10:00:00Z"}]`,
	})

	out, err := runCLI(t, ts, "nudges", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Path != "/nudges?limit=5" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	if !strings.Contains(out, "someone you could call") {
		t.Errorf("output = %q", out)
	}
}

func TestProfileReset_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]string{"DELETE /profile": `{"status":"reset"}`})

	if _, err := runCLI(t, ts, "profile", "reset"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Fatalf("reset without --confirm sent %d requests", len(ts.requests))
	}
}

func TestDecodeJSON_APIError(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.client().get(ctx, "/nowhere")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if err.Error() != "server returned 404: not found" {
		t.Errorf("error = %q", err)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
