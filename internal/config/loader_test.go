package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
realtime:
  api_key: "rt-key"
  model: gpt-4o-mini-realtime-preview
  voice: alloy
llm:
  provider: openai
  model: hrz-chat-small
  api_key: "llm-key"
  base_url: "https://chat-ai.example.org/v1"
summary:
  provider: mistral
  model: mistral-large-instruct
  api_key: "llm-key"
index:
  postgres_dsn: "postgres://localhost/lahn"
  embedding_api_key: "emb-key"
  docs_dir: "data/docs"
sensors:
  channel_id: "2974588"
prompt:
  doc_url: "https://docs.example.org/export?format=txt"
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Realtime.Model != "gpt-4o-mini-realtime-preview" {
		t.Errorf("realtime.model = %q", cfg.Realtime.Model)
	}
	if cfg.Summary.Provider != "mistral" {
		t.Errorf("summary.provider = %q", cfg.Summary.Provider)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.InputSampleRate != 16000 {
		t.Errorf("audio.input_sample_rate default = %d; want 16000", cfg.Audio.InputSampleRate)
	}
	if cfg.Audio.OutputSampleRate != 24000 {
		t.Errorf("audio.output_sample_rate default = %d; want 24000", cfg.Audio.OutputSampleRate)
	}
	if cfg.Audio.MilestoneTimeout != 15*time.Second {
		t.Errorf("audio.milestone_timeout default = %v; want 15s", cfg.Audio.MilestoneTimeout)
	}
	if cfg.Audio.ResponseTimeout != 60*time.Second {
		t.Errorf("audio.response_timeout default = %v; want 60s", cfg.Audio.ResponseTimeout)
	}
	if cfg.Index.TopK != 4 {
		t.Errorf("index.top_k default = %d; want 4", cfg.Index.TopK)
	}
	if cfg.Storage.UploadDir != "data/uploaded_experiences" {
		t.Errorf("storage.upload_dir default = %q", cfg.Storage.UploadDir)
	}
}

func TestValidate_MissingRealtimeKey(t *testing.T) {
	t.Parallel()

	yaml := `
llm:
  model: hrz-chat-small
prompt:
  cache_path: data/system_prompt.txt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing realtime.api_key, got nil")
	}
	if !strings.Contains(err.Error(), "realtime.api_key") {
		t.Errorf("error should mention realtime.api_key, got: %v", err)
	}
}

func TestValidate_AzureModeRequiresBaseURL(t *testing.T) {
	t.Parallel()

	yaml := `
realtime:
  api_key: key
  api_version: "2024-10-01-preview"
llm:
  model: hrz-chat-small
prompt:
  cache_path: data/system_prompt.txt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for api_version without base_url, got nil")
	}
	if !strings.Contains(err.Error(), "base_url") {
		t.Errorf("error should mention base_url, got: %v", err)
	}
}

func TestValidate_IndexRequiresDocsDirAndKey(t *testing.T) {
	t.Parallel()

	yaml := `
realtime:
  api_key: key
llm:
  model: hrz-chat-small
index:
  postgres_dsn: "postgres://localhost/lahn"
prompt:
  cache_path: data/system_prompt.txt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for index without docs_dir and embedding_api_key, got nil")
	}
	for _, want := range []string{"index.docs_dir", "index.embedding_api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_SummaryFallsBackToLLM(t *testing.T) {
	t.Parallel()

	yaml := `
realtime:
  api_key: key
llm:
  provider: openai
  model: hrz-chat-small
  api_key: shared
prompt:
  cache_path: data/system_prompt.txt
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Summary.Model != "hrz-chat-small" || cfg.Summary.APIKey != "shared" {
		t.Errorf("summary fallback = %+v; want a copy of llm", cfg.Summary)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
llm:
  model: ""
prompt: {}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"server.log_level", "realtime.api_key", "llm.model", "prompt"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := validYAML + `
extra_section:
  foo: bar
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_NegativeTimeoutRejected(t *testing.T) {
	t.Parallel()

	yaml := `
realtime:
  api_key: key
llm:
  model: hrz-chat-small
audio:
  milestone_timeout: -5s
prompt:
  cache_path: data/system_prompt.txt
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative timeout, got nil")
	}
	if !strings.Contains(err.Error(), "milestone_timeout") {
		t.Errorf("error should mention milestone_timeout, got: %v", err)
	}
}
