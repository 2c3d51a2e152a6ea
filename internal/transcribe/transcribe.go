// Package transcribe turns uploaded experience recordings into text using the
// whisper.cpp Go bindings. The model is loaded once at startup and shared;
// each transcription runs in its own whisper context.
//
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// SampleRate is the PCM sample rate whisper.cpp expects. Uploads must be
// normalized to 16 kHz mono before transcription.
const SampleRate = 16000

const defaultLanguage = "de"

// Option is a functional option for configuring a Whisper transcriber.
type Option func(*Whisper)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "de",
// "en"). Defaults to "de".
func WithLanguage(lang string) Option {
	return func(w *Whisper) {
		if lang != "" {
			w.language = lang
		}
	}
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Whisper) {
		if m != nil {
			w.metrics = m
		}
	}
}

// Whisper transcribes 16 kHz mono PCM16 audio with a locally loaded
// whisper.cpp model. Safe for concurrent use; the shared model hands each
// call its own context.
type Whisper struct {
	model    whisperlib.Model
	language string
	metrics  *observe.Metrics
}

// New loads the whisper.cpp model from modelPath. The caller must call Close
// when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("transcribe: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: load model %q: %w", modelPath, err)
	}

	w := &Whisper{
		model:    model,
		language: defaultLanguage,
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Close releases the whisper model.
func (w *Whisper) Close() error {
	if w.model != nil {
		return w.model.Close()
	}
	return nil
}

// Transcribe runs inference over a complete recording and returns the joined
// segment text. pcm must be 16-bit signed little-endian mono at [SampleRate].
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte) (text string, err error) {
	start := time.Now()
	defer func() {
		w.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if len(pcm) == 0 {
		return "", errors.New("transcribe: empty audio")
	}

	samples := pcmToFloat32(pcm)

	// Contexts are not thread-safe; the shared model hands out a fresh one
	// per inference.
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("transcribe: create context: %w", err)
	}
	if err := wctx.SetLanguage(w.language); err != nil {
		observe.Logger(ctx).Warn("failed to set transcription language, using model default",
			"language", w.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("transcribe: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transcribe: read segment: %w", err)
		}
		if s := strings.TrimSpace(segment.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
