// Command lahn-avatar is the backend server for the Lahn river avatar: a
// conversational persona of the river with text chat, realtime voice turns,
// debate summaries, sensor-data grounding and experience uploads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/dnllvrvz/Lahn-Avatar/internal/chat"
	"github.com/dnllvrvz/Lahn-Avatar/internal/config"
	"github.com/dnllvrvz/Lahn-Avatar/internal/health"
	"github.com/dnllvrvz/Lahn-Avatar/internal/index"
	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
	"github.com/dnllvrvz/Lahn-Avatar/internal/prompt"
	"github.com/dnllvrvz/Lahn-Avatar/internal/sensors"
	"github.com/dnllvrvz/Lahn-Avatar/internal/server"
	"github.com/dnllvrvz/Lahn-Avatar/internal/transcribe"
	"github.com/dnllvrvz/Lahn-Avatar/internal/voice"
	"github.com/dnllvrvz/Lahn-Avatar/pkg/audio"
	rtopenai "github.com/dnllvrvz/Lahn-Avatar/pkg/realtime/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lahn-avatar: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lahn-avatar: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lahn-avatar starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "lahn-avatar",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// closers are torn down in reverse order after the HTTP server stops.
	var closers []func() error
	closers = append(closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otelShutdown(shutdownCtx)
	})

	// ── Persona prompt ────────────────────────────────────────────────────────
	promptStore := prompt.New(cfg.Prompt.DocURL, cfg.Prompt.CachePath)
	if _, err := promptStore.Instructions(ctx); err != nil {
		slog.Warn("persona instructions unavailable at startup", "err", err)
	}

	// ── Voice pipeline ────────────────────────────────────────────────────────
	var rtOpts []rtopenai.Option
	if cfg.Realtime.Model != "" {
		rtOpts = append(rtOpts, rtopenai.WithModel(cfg.Realtime.Model))
	}
	if cfg.Realtime.BaseURL != "" {
		rtOpts = append(rtOpts, rtopenai.WithBaseURL(cfg.Realtime.BaseURL))
	}
	if cfg.Realtime.APIVersion != "" {
		rtOpts = append(rtOpts, rtopenai.WithAPIVersion(cfg.Realtime.APIVersion))
	}
	dialer := rtopenai.New(cfg.Realtime.APIKey, rtOpts...)

	normalizer := &audio.Normalizer{
		FFmpegPath: cfg.Audio.FFmpegPath,
		ScratchDir: cfg.Audio.ScratchDir,
		SampleRate: cfg.Audio.InputSampleRate,
	}

	pipeline := voice.New(normalizer, dialer, promptStore, voice.Config{
		Voice:            cfg.Realtime.Voice,
		OutputSampleRate: cfg.Audio.OutputSampleRate,
		MilestoneTimeout: cfg.Audio.MilestoneTimeout,
		ResponseTimeout:  cfg.Audio.ResponseTimeout,
	}, metrics)

	// ── Document index (optional) ─────────────────────────────────────────────
	var (
		engineOpts []chat.Option
		rebuilder  server.IndexRebuilder
		checkers   []health.Checker
	)
	engineOpts = append(engineOpts, chat.WithMetrics(metrics))

	if cfg.Index.PostgresDSN != "" {
		embedder := index.NewEmbedder(cfg.Index.EmbeddingAPIKey,
			index.WithEmbeddingModel(cfg.Index.EmbeddingModel),
			index.WithEmbeddingBaseURL(cfg.Index.EmbeddingBaseURL),
			index.WithEmbedderMetrics(metrics),
		)
		dims := cfg.Index.EmbeddingDimensions
		if dims == 0 {
			dims = embedder.Dimensions()
		}
		if dims == 0 {
			slog.Error("unknown embedding model width; set index.embedding_dimensions",
				"model", cfg.Index.EmbeddingModel)
			return 1
		}

		store, err := index.NewStore(ctx, cfg.Index.PostgresDSN, dims)
		if err != nil {
			slog.Error("failed to open document index", "err", err)
			return 1
		}
		closers = append(closers, func() error { store.Close(); return nil })
		checkers = append(checkers, health.Checker{Name: "postgres", Check: store.Ping})

		idx := index.New(store, embedder, index.Chunker{}, cfg.Index.DocsDir, metrics)
		engineOpts = append(engineOpts, chat.WithRetriever(idx, cfg.Index.TopK))
		rebuilder = idx
		slog.Info("document index enabled", "docs_dir", cfg.Index.DocsDir, "top_k", cfg.Index.TopK)
	}

	// ── Sensor capability (optional) ──────────────────────────────────────────
	if cfg.Sensors.ChannelID != "" {
		client := &sensors.Client{
			ChannelID: cfg.Sensors.ChannelID,
			Results:   cfg.Sensors.Results,
			BaseURL:   cfg.Sensors.BaseURL,
		}
		engineOpts = append(engineOpts, chat.WithCapability(sensors.NewTool(client, metrics)))
		slog.Info("sensor capability enabled", "channel_id", cfg.Sensors.ChannelID)
	}

	// ── Chat engine and debate summarizer ─────────────────────────────────────
	completer, err := chat.NewAnyLLM(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if err != nil {
		slog.Error("failed to create completion backend", "err", err)
		return 1
	}
	engine := chat.New(completer, promptStore.Instructions, engineOpts...)

	summaryCompleter, err := chat.NewAnyLLM(cfg.Summary.Provider, cfg.Summary.Model, cfg.Summary.APIKey, cfg.Summary.BaseURL)
	if err != nil {
		slog.Error("failed to create summary backend", "err", err)
		return 1
	}
	summarizer := chat.NewSummarizer(summaryCompleter, metrics)

	// ── Upload transcription (optional) ───────────────────────────────────────
	var transcriber server.Transcriber
	if cfg.STT.ModelPath != "" {
		var sttOpts []transcribe.Option
		if cfg.STT.Language != "" {
			sttOpts = append(sttOpts, transcribe.WithLanguage(cfg.STT.Language))
		}
		sttOpts = append(sttOpts, transcribe.WithMetrics(metrics))

		whisper, err := transcribe.New(cfg.STT.ModelPath, sttOpts...)
		if err != nil {
			slog.Error("failed to load whisper model", "model_path", cfg.STT.ModelPath, "err", err)
			return 1
		}
		closers = append(closers, whisper.Close)
		transcriber = whisper
		slog.Info("upload transcription enabled", "model_path", cfg.STT.ModelPath)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	api := server.New(server.Config{
		Chat:       engine,
		Debate:     summarizer,
		Voice:      pipeline,
		Transcribe: transcriber,
		Normalize:  normalizer,
		Prompt:     promptStore,
		Index:      rebuilder,
		Health:     health.New(checkers...),
		DataDir:    cfg.Storage.DataDir,
		UploadDir:  cfg.Storage.UploadDir,
		CORSOrigin: cfg.Server.CORSOrigin,
		Metrics:    metrics,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS != nil {
			serveErr <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			serveErr <- httpSrv.ListenAndServe()
		}
	}()

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	exit := 0
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Warn("close error", "err", err)
			exit = 1
		}
	}
	slog.Info("goodbye")
	return exit
}

// newLogger builds the process logger for the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
