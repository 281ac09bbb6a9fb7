package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// clearEnv blanks every ATTUNE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if !cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = false, want true")
	}
	if cfg.Storage.Debounce != 500*time.Millisecond {
		t.Errorf("Storage.Debounce = %v, want 500ms", cfg.Storage.Debounce)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.LLM.Model != "anthropic/claude-sonnet-4" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
	if cfg.Overrides.URL != "" || cfg.Overrides.MinInterval != time.Minute || cfg.Overrides.Timeout != 10*time.Second {
		t.Errorf("Overrides = %+v", cfg.Overrides)
	}
}

// TestFileParsing verifies that fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
		"server.port": 5000,
		"server.mcp_enabled": false,
		"storage.data_dir": "/tmp/attune-test",
		"storage.debounce": "2s",
		"log.level": "debug",
		"llm.model": "openai/gpt-4o",
		"overrides.url": "https://example.com/overrides.json",
		"overrides.min_interval": "5m"
	}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.MCPEnabled {
		t.Error("Server.MCPEnabled = true, want false")
	}
	if cfg.Storage.DataDir != "/tmp/attune-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.Debounce != 2*time.Second {
		t.Errorf("Storage.Debounce = %v", cfg.Storage.Debounce)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.LLM.Model != "openai/gpt-4o" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Overrides.URL != "https://example.com/overrides.json" || cfg.Overrides.MinInterval != 5*time.Minute {
		t.Errorf("Overrides = %+v", cfg.Overrides)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "llm.model": "file-model"}`)

	t.Setenv("ATTUNE_SERVER_PORT", "6000")
	t.Setenv("ATTUNE_LLM_MODEL", "env-model")
	t.Setenv("ATTUNE_LLM_API_KEY", "env-key")
	t.Setenv("ATTUNE_OVERRIDES_TIMEOUT", "3s")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %q, want env-model", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
	if cfg.Overrides.Timeout != 3*time.Second {
		t.Errorf("Overrides.Timeout = %v, want 3s", cfg.Overrides.Timeout)
	}
}

// TestSecretNotReadFromFile verifies the API key only comes from the environment.
func TestSecretNotReadFromFile(t *testing.T) {
	clearEnv(t)
	cfg, err := loadWith(writeTempConfig(t, `{"llm.api_key": "file-key"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

// TestUnparseableValuesKeepDefaults verifies bad values fall back to defaults.
func TestUnparseableValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTUNE_STORAGE_DEBOUNCE", "soon")
	cfg, err := loadWith(writeTempConfig(t, `{"server.mcp_enabled": "maybe"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Server.MCPEnabled || cfg.Storage.Debounce != 500*time.Millisecond {
		t.Errorf("defaults not kept: %+v %+v", cfg.Server, cfg.Storage)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"port", `{"server.port": 70000}`, "server.port"},
		{"interval", `{"overrides.min_interval": "0s"}`, "overrides.min_interval"},
		{"log level", `{"log.level": "loud"}`, "log.level"},
		{"non-integer port", `{"server.port": 40.5}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := loadWith(writeTempConfig(t, tt.file))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "server.port", "4100"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "overrides.min_interval", "90s"); err != nil {
		t.Fatalf("setKey interval: %v", err)
	}
	if err := setKey(b, "server.mcp_enabled", "false"); err != nil {
		t.Fatalf("setKey mcp: %v", err)
	}

	// Reload from disk to check persistence.
	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 4100 || cfg.Overrides.MinInterval != 90*time.Second || cfg.Server.MCPEnabled {
		t.Errorf("persisted config = %+v %+v", cfg.Server, cfg.Overrides)
	}

	for _, tc := range []struct{ key, value string }{
		{"llm.api_key", "secret"},
		{"server.port", "high"},
		{"storage.debounce", "later"},
		{"no.such.key", "x"},
	} {
		if err := setKey(b, tc.key, tc.value); err == nil {
			t.Errorf("setKey(%s, %s) succeeded, want error", tc.key, tc.value)
		}
	}
}

func TestUnsetKey(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 4100}`)

	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	cfg, err := loadWith(newFileBackend(b.path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want default 4000", cfg.Server.Port)
	}

	if err := unsetKey(b, "llm.api_key"); err == nil {
		t.Error("unsetKey accepted a secret key")
	}
	if err := unsetKey(b, "no.such.key"); err == nil {
		t.Error("unsetKey accepted an unknown key")
	}
}

func TestShowAll_HidesSecrets(t *testing.T) {
	for _, k := range ShowAll(defaults()) {
		if k.Key == "llm.api_key" {
			t.Error("ShowAll exposed the API key")
		}
	}
	if slices.Contains(ValidKeys(), "llm.api_key") {
		t.Error("ValidKeys lists the API key")
	}
	if !slices.Contains(ValidKeys(), "overrides.url") {
		t.Error("ValidKeys missing overrides.url")
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := ParseLevel("warn"); err != nil {
		t.Errorf("ParseLevel(warn): %v", err)
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("ParseLevel(chatty) succeeded")
	}
}
