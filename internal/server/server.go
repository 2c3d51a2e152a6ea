// Package server exposes the avatar's HTTP API: text chat, debate summaries,
// the voice turn endpoint, experience uploads and the operational endpoints
// (health, readiness, metrics, refresh hooks).
package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dnllvrvz/Lahn-Avatar/internal/chat"
	"github.com/dnllvrvz/Lahn-Avatar/internal/health"
	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
	"github.com/dnllvrvz/Lahn-Avatar/internal/voice"
)

// ChatEngine produces a reply for a user prompt with conversation history.
type ChatEngine interface {
	Reply(ctx context.Context, prompt string, history []chat.HistoryEntry) (string, error)
}

// DebateSummarizer maintains the running debate outline.
type DebateSummarizer interface {
	Summarize(ctx context.Context, topic string, history []chat.HistoryEntry, previous string) (string, error)
}

// VoiceTurner runs one voice turn over an uploaded recording.
type VoiceTurner interface {
	RunTurn(ctx context.Context, inputPath string) (*voice.Turn, error)
}

// Transcriber turns normalized PCM16 audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Normalizer converts an uploaded media file to raw PCM16 mono.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) ([]byte, error)
}

// PromptRefresher re-fetches the system instructions document.
type PromptRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// IndexRebuilder rebuilds the document index from the docs directory.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
}

// Config carries the collaborators and settings for a [Server]. Optional
// collaborators may be nil; the matching endpoints then report the feature as
// unavailable.
type Config struct {
	Chat       ChatEngine
	Debate     DebateSummarizer
	Voice      VoiceTurner
	Transcribe Transcriber
	Normalize  Normalizer
	Prompt     PromptRefresher
	Index      IndexRebuilder
	Health     *health.Handler

	// DataDir holds the reply audio file.
	DataDir string

	// UploadDir holds uploaded experience recordings and transcripts.
	UploadDir string

	// CORSOrigin is the allowed browser origin. Empty or "*" echoes the
	// request origin (required for credentialed requests).
	CORSOrigin string

	Metrics *observe.Metrics
}

// Server is the avatar's HTTP API. Construct with [New] and serve the
// [Server.Handler].
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	mux     *http.ServeMux
}

// New wires the API routes. Collaborators left nil in cfg disable their
// endpoints gracefully.
func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg, metrics: m, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/debate-summary", s.handleDebateSummary)
	s.mux.HandleFunc("POST /api/voice-chat", s.handleVoiceChat)
	s.mux.HandleFunc("GET /api/reply-audio", s.handleReplyAudio)
	s.mux.HandleFunc("POST /api/experience-upload", s.handleExperienceUpload)
	s.mux.HandleFunc("POST /api/refresh-prompt", s.handleRefreshPrompt)
	s.mux.HandleFunc("POST /api/refresh-embeddings", s.handleRefreshEmbeddings)

	if cfg.Health != nil {
		cfg.Health.Register(s.mux)
	}
	s.mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the fully wrapped handler: CORS, then tracing/metrics
// middleware, then the route mux.
func (s *Server) Handler() http.Handler {
	return s.cors(observe.Middleware(s.metrics)(s.mux))
}

// cors handles preflight requests and attaches the response headers the
// credentialed frontend needs on every request.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := s.cfg.CORSOrigin
			if allowed == "" || allowed == "*" || strings.EqualFold(allowed, origin) {
				// Credentialed requests forbid a literal "*"; echo the
				// concrete origin instead.
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
