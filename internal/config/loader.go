package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists known completion provider names. Used by [Validate]
// to warn about likely typos.
var ValidLLMProviders = []string{"openai", "mistral", "ollama", "groq"}

// Defaults applied by [Validate] when fields are unset.
const (
	DefaultListenAddr       = ":8080"
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultMilestoneTimeout = 15 * time.Second
	DefaultResponseTimeout  = 60 * time.Second
	DefaultTopK             = 4
	DefaultDataDir          = "data"
	DefaultUploadDir        = "data/uploaded_experiences"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults. It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Realtime
	if cfg.Realtime.APIKey == "" {
		errs = append(errs, errors.New("realtime.api_key is required"))
	}
	if cfg.Realtime.APIVersion != "" && cfg.Realtime.BaseURL == "" {
		errs = append(errs, errors.New("realtime.api_version (Azure mode) requires realtime.base_url"))
	}

	// Completion models
	validateProviderName("llm", cfg.LLM.Provider)
	validateProviderName("summary", cfg.Summary.Provider)
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.Summary.Model == "" {
		slog.Warn("summary.model is empty; debate summaries will use the main llm model")
		cfg.Summary = cfg.LLM
	}

	// Audio
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d is invalid", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d is invalid", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.MilestoneTimeout == 0 {
		cfg.Audio.MilestoneTimeout = DefaultMilestoneTimeout
	}
	if cfg.Audio.MilestoneTimeout < 0 {
		errs = append(errs, errors.New("audio.milestone_timeout must be positive"))
	}
	if cfg.Audio.ResponseTimeout == 0 {
		cfg.Audio.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Audio.ResponseTimeout < 0 {
		errs = append(errs, errors.New("audio.response_timeout must be positive"))
	}

	// Index
	if cfg.Index.PostgresDSN == "" {
		slog.Warn("index.postgres_dsn is empty; replies will not be grounded in the document collection")
	} else {
		if cfg.Index.DocsDir == "" {
			errs = append(errs, errors.New("index.docs_dir is required when index.postgres_dsn is set"))
		}
		if cfg.Index.EmbeddingAPIKey == "" {
			errs = append(errs, errors.New("index.embedding_api_key is required when index.postgres_dsn is set"))
		}
	}
	if cfg.Index.TopK == 0 {
		cfg.Index.TopK = DefaultTopK
	}
	if cfg.Index.TopK < 0 {
		errs = append(errs, fmt.Errorf("index.top_k %d is invalid", cfg.Index.TopK))
	}

	// Sensors
	if cfg.Sensors.ChannelID == "" {
		slog.Warn("sensors.channel_id is empty; the live sensor capability is disabled")
	}
	if cfg.Sensors.Results < 0 {
		errs = append(errs, fmt.Errorf("sensors.results %d is invalid", cfg.Sensors.Results))
	}

	// Prompt
	if cfg.Prompt.DocURL == "" && cfg.Prompt.CachePath == "" {
		errs = append(errs, errors.New("prompt requires doc_url or cache_path"))
	}
	if cfg.Prompt.CachePath == "" {
		cfg.Prompt.CachePath = "data/system_prompt.txt"
	}

	// Storage
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = DefaultUploadDir
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidLLMProviders].
func validateProviderName(section, name string) {
	if name == "" || slices.Contains(ValidLLMProviders, name) {
		return
	}
	slog.Warn("unknown completion provider name — may be a typo",
		"section", section,
		"name", name,
		"known", ValidLLMProviders,
	)
}
