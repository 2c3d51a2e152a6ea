// Package voice orchestrates a complete voice turn: an uploaded audio clip in,
// a spoken reply with its transcript out.
//
// A turn is a strict sequence over fresh resources — normalize the upload to
// canonical PCM, open a realtime session, walk the protocol milestones, and
// reassemble the streamed reply into a WAV container. Every turn gets its own
// session; failures and cancellation release the session and the scratch file
// on all paths.
package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
	"github.com/dnllvrvz/Lahn-Avatar/pkg/audio"
	"github.com/dnllvrvz/Lahn-Avatar/pkg/realtime"
)

const (
	// DefaultMilestoneTimeout bounds the wait for session.updated and
	// conversation.item.created acknowledgements.
	DefaultMilestoneTimeout = 15 * time.Second

	// DefaultResponseTimeout bounds the wait for the full response delta
	// stream, which includes model generation time.
	DefaultResponseTimeout = 60 * time.Second

	// defaultOutputSampleRate is the rate at which the realtime model emits
	// reply audio.
	defaultOutputSampleRate = 24000
)

// Normalizer converts an uploaded audio file into raw mono PCM16.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) ([]byte, error)
}

// InstructionsSource supplies the system prompt for a turn. The prompt store
// implements this; tests use a literal.
type InstructionsSource interface {
	Instructions(ctx context.Context) (string, error)
}

// InstructionsFunc adapts a function to the InstructionsSource interface.
type InstructionsFunc func(ctx context.Context) (string, error)

func (f InstructionsFunc) Instructions(ctx context.Context) (string, error) { return f(ctx) }

// Config holds the per-pipeline settings. Zero values fall back to the
// documented defaults.
type Config struct {
	// Voice is the synthesised voice identity requested from the model.
	Voice string

	// Modalities are the response modalities. Default: text and audio.
	Modalities []string

	// OutputSampleRate is the rate of the model's reply audio, used when
	// wrapping it into the WAV container. Default 24000 Hz.
	OutputSampleRate int

	// MilestoneTimeout bounds each acknowledgement wait.
	MilestoneTimeout time.Duration

	// ResponseTimeout bounds the response delta stream.
	ResponseTimeout time.Duration
}

// Turn is the result of one completed voice turn.
type Turn struct {
	// Text is the transcript of the spoken reply.
	Text string

	// WAV is the reply audio as a complete RIFF/WAV container.
	WAV []byte
}

// Pipeline runs voice turns. It is safe for concurrent use: every RunTurn
// call operates on its own session and scratch state.
type Pipeline struct {
	normalizer   Normalizer
	dialer       realtime.Dialer
	instructions InstructionsSource
	cfg          Config
	metrics      *observe.Metrics
}

// New creates a Pipeline. instructions may be nil, in which case turns run
// without a system prompt.
func New(n Normalizer, d realtime.Dialer, instructions InstructionsSource, cfg Config, m *observe.Metrics) *Pipeline {
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = defaultOutputSampleRate
	}
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"text", "audio"}
	}
	if cfg.MilestoneTimeout <= 0 {
		cfg.MilestoneTimeout = DefaultMilestoneTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = DefaultResponseTimeout
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Pipeline{
		normalizer:   n,
		dialer:       d,
		instructions: instructions,
		cfg:          cfg,
		metrics:      m,
	}
}

// RunTurn executes a full voice turn for the audio file at inputPath.
//
// The sequence is: normalize → connect → configure → await session.updated →
// send utterance → await conversation.item.created → request response →
// accumulate deltas → encode WAV. The session is closed on every path.
func (p *Pipeline) RunTurn(ctx context.Context, inputPath string) (turn *Turn, err error) {
	log := observe.Logger(ctx)
	turnStart := time.Now()

	p.metrics.ActiveVoiceTurns.Add(ctx, 1)
	defer func() {
		p.metrics.ActiveVoiceTurns.Add(ctx, -1)
		p.metrics.VoiceTurnDuration.Record(ctx, time.Since(turnStart).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordVoiceTurn(ctx, status)
	}()

	// Stage 1: normalize the upload to mono PCM16.
	normStart := time.Now()
	pcm, err := p.normalizer.Normalize(ctx, inputPath)
	p.metrics.NormalizeDuration.Record(ctx, time.Since(normStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("voice: normalize: %w", err)
	}
	log.Debug("audio normalized", "input", inputPath, "samples", audio.SampleCount(pcm))

	instructions := ""
	if p.instructions != nil {
		if instructions, err = p.instructions.Instructions(ctx); err != nil {
			return nil, fmt.Errorf("voice: instructions: %w", err)
		}
	}

	// Stage 2: run the realtime protocol over a fresh session.
	modelStart := time.Now()
	result, err := p.modelTurn(ctx, pcm, instructions)
	p.metrics.ModelTurnDuration.Record(ctx, time.Since(modelStart).Seconds())
	if err != nil {
		return nil, err
	}

	// Stage 3: wrap the reply audio for playback.
	wav, err := audio.EncodeWAV(result.PCM, p.cfg.OutputSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("voice: encode reply: %w", err)
	}

	log.Info("voice turn completed",
		"reply_chars", len(result.Text),
		"reply_pcm_bytes", len(result.PCM),
		"duration", time.Since(turnStart),
	)
	return &Turn{Text: result.Text, WAV: wav}, nil
}

// modelTurn walks the milestone-gated realtime protocol on a fresh session.
func (p *Pipeline) modelTurn(ctx context.Context, pcm []byte, instructions string) (*realtime.TurnResult, error) {
	sess, err := p.dialer.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("voice: connect: %w", err)
	}
	defer sess.Close()

	cfg := realtime.SessionConfig{
		Modalities:   p.cfg.Modalities,
		Voice:        p.cfg.Voice,
		Instructions: instructions,
	}
	if err := sess.Configure(ctx, cfg); err != nil {
		return nil, fmt.Errorf("voice: configure: %w", err)
	}
	if _, err := realtime.AwaitEvent(ctx, sess, realtime.EventSessionUpdated, p.cfg.MilestoneTimeout); err != nil {
		return nil, fmt.Errorf("voice: session setup: %w", err)
	}

	if err := sess.SendUserAudio(ctx, pcm); err != nil {
		return nil, fmt.Errorf("voice: send audio: %w", err)
	}
	if _, err := realtime.AwaitEvent(ctx, sess, realtime.EventItemCreated, p.cfg.MilestoneTimeout); err != nil {
		return nil, fmt.Errorf("voice: utterance ack: %w", err)
	}

	if err := sess.RequestResponse(ctx, p.cfg.Modalities); err != nil {
		return nil, fmt.Errorf("voice: request response: %w", err)
	}
	result, err := realtime.Accumulate(ctx, sess, p.cfg.ResponseTimeout)
	if err != nil {
		return nil, fmt.Errorf("voice: response: %w", err)
	}
	return result, nil
}
