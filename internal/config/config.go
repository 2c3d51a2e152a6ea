// Package config provides the configuration schema and loader for the Lahn
// avatar backend.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	LLM      ModelConfig    `yaml:"llm"`
	Summary  ModelConfig    `yaml:"summary"`
	STT      STTConfig      `yaml:"stt"`
	Audio    AudioConfig    `yaml:"audio"`
	Index    IndexConfig    `yaml:"index"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Prompt   PromptConfig   `yaml:"prompt"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigin is the allowed origin for browser requests. The frontend
	// sends credentialed requests, so "*" is echoed back as the concrete
	// request origin.
	CORSOrigin string `yaml:"cors_origin"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RealtimeConfig selects the speech-to-speech realtime endpoint used by the
// voice pipeline.
type RealtimeConfig struct {
	// APIKey authenticates against the realtime endpoint.
	APIKey string `yaml:"api_key"`

	// Model is the realtime model name. For Azure endpoints this is the
	// deployment name.
	Model string `yaml:"model"`

	// BaseURL overrides the default wss:// endpoint.
	BaseURL string `yaml:"base_url"`

	// APIVersion switches the dialer into Azure mode when non-empty
	// (e.g., "2024-10-01-preview").
	APIVersion string `yaml:"api_version"`

	// Voice selects the spoken voice (e.g., "alloy").
	Voice string `yaml:"voice"`
}

// ModelConfig describes one chat-completion model endpoint. Used for both the
// main conversation model and the debate-summary model.
type ModelConfig struct {
	// Provider selects the completion backend ("openai", "mistral",
	// "ollama", "groq"). Empty means "openai".
	Provider string `yaml:"provider"`

	// Model is the model name passed to the provider.
	Model string `yaml:"model"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint, e.g. for an
	// OpenAI-compatible hosted gateway.
	BaseURL string `yaml:"base_url"`
}

// STTConfig configures local whisper.cpp transcription of uploads.
type STTConfig struct {
	// ModelPath is the path to the whisper.cpp model file. Empty disables
	// transcription of uploaded experiences.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 code passed to whisper (e.g., "de").
	Language string `yaml:"language"`
}

// AudioConfig configures normalization and the voice pipeline timing.
type AudioConfig struct {
	// FFmpegPath is the ffmpeg binary used for normalization. Empty means
	// "ffmpeg" from PATH.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// ScratchDir holds transient normalization output. Empty means the OS
	// temp dir.
	ScratchDir string `yaml:"scratch_dir"`

	// InputSampleRate is the PCM rate sent to the realtime model. Defaults
	// to 16000.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the PCM rate of model audio, used for the reply
	// WAV header. Defaults to 24000.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// MilestoneTimeout bounds each wait for a session acknowledgement.
	MilestoneTimeout time.Duration `yaml:"milestone_timeout"`

	// ResponseTimeout bounds the wait for a complete model response.
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// IndexConfig configures the pgvector document index.
type IndexConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// store. Empty disables retrieval grounding.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingModel is the embeddings model name.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimensions is the vector width of the embeddings column.
	// Must match the model. Zero means the model's known width.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// EmbeddingBaseURL overrides the embeddings endpoint.
	EmbeddingBaseURL string `yaml:"embedding_base_url"`

	// EmbeddingAPIKey authenticates against the embeddings endpoint.
	EmbeddingAPIKey string `yaml:"embedding_api_key"`

	// DocsDir is the directory of documents to index.
	DocsDir string `yaml:"docs_dir"`

	// TopK is how many snippets ground each reply. Defaults to 4.
	TopK int `yaml:"top_k"`
}

// SensorsConfig configures the ThingSpeak channel fetch.
type SensorsConfig struct {
	// ChannelID is the numeric ThingSpeak channel. Empty disables the
	// sensor capability.
	ChannelID string `yaml:"channel_id"`

	// Results is how many recent readings to fetch. Defaults to 100.
	Results int `yaml:"results"`

	// BaseURL overrides the ThingSpeak API endpoint.
	BaseURL string `yaml:"base_url"`
}

// PromptConfig configures the system instructions store.
type PromptConfig struct {
	// DocURL is the plain-text export URL of the persona document.
	DocURL string `yaml:"doc_url"`

	// CachePath is the on-disk cache of the fetched persona.
	CachePath string `yaml:"cache_path"`
}

// StorageConfig holds the writable data directories.
type StorageConfig struct {
	// DataDir holds the reply audio and other server-produced files.
	DataDir string `yaml:"data_dir"`

	// UploadDir holds uploaded experience recordings and transcripts.
	UploadDir string `yaml:"upload_dir"`
}
