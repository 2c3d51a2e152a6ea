// Package openai implements the realtime.Session interface over the OpenAI
// Realtime API WebSocket protocol.
//
// It speaks the JSON event protocol directly: session.update to configure,
// conversation.item.create with base64-encoded PCM16 to deliver the user
// utterance, response.create to trigger generation, and the response.*.delta
// stream back. Both the native OpenAI endpoint and Azure OpenAI deployments
// are supported; Azure mode is selected by setting an API version.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/dnllvrvz/Lahn-Avatar/pkg/realtime"
)

// Compile-time assertions that Dialer and session satisfy the realtime interfaces.
var _ realtime.Dialer = (*Dialer)(nil)
var _ realtime.Session = (*session)(nil)

const (
	defaultModel   = "gpt-4o-mini-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithModel sets the model (or, in Azure mode, the deployment name) used for
// sessions.
func WithModel(model string) Option {
	return func(d *Dialer) { d.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Used for Azure endpoints and
// to point tests at a local mock server.
func WithBaseURL(url string) Option {
	return func(d *Dialer) { d.baseURL = url }
}

// WithAPIVersion switches the dialer into Azure mode: the version is sent as
// the api-version query parameter, the model as the deployment parameter, and
// the key in the api-key header instead of a bearer token.
func WithAPIVersion(version string) Option {
	return func(d *Dialer) { d.apiVersion = version }
}

// ── Dialer ─────────────────────────────────────────────────────────────────────

// Dialer opens realtime sessions against an OpenAI or Azure OpenAI endpoint.
// It is safe for concurrent use; each Connect call yields an independent
// session.
type Dialer struct {
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
}

// New creates a Dialer with the given API key and options.
func New(apiKey string, opts ...Option) *Dialer {
	d := &Dialer{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Connect dials the realtime endpoint and returns a session ready to be
// configured. The caller owns the session and must Close it.
func (d *Dialer) Connect(ctx context.Context) (realtime.Session, error) {
	wsURL, header := d.endpoint()

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	// Audio deltas for a full spoken reply exceed the library default.
	conn.SetReadLimit(1 << 24)

	return &session{conn: conn}, nil
}

// endpoint builds the WebSocket URL and auth headers for the configured mode.
func (d *Dialer) endpoint() (string, http.Header) {
	q := url.Values{}
	header := http.Header{}
	if d.apiVersion != "" {
		q.Set("api-version", d.apiVersion)
		q.Set("deployment", d.model)
		header.Set("api-key", d.apiKey)
	} else {
		q.Set("model", d.model)
		header.Set("Authorization", "Bearer "+d.apiKey)
		header.Set("OpenAI-Beta", "realtime=v1")
	}
	return d.baseURL + "?" + q.Encode(), header
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities        []string `json:"modalities,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"` // base64-encoded PCM16
}

type createResponseMessage struct {
	Type     string         `json:"type"`
	Response responseParams `json:"response"`
}

type responseParams struct {
	Modalities []string `json:"modalities,omitempty"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.text.delta / response.audio.delta
	Delta string `json:"delta,omitempty"`

	// error event: {"type":"error","error":{...}}
	Error *realtime.ServerError `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Configure sends a session.update event. Audio formats default to pcm16.
func (s *session) Configure(ctx context.Context, cfg realtime.SessionConfig) error {
	params := sessionParams{
		Modalities:        cfg.Modalities,
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  cfg.InputAudioFormat,
		OutputAudioFormat: cfg.OutputAudioFormat,
	}
	if params.InputAudioFormat == "" {
		params.InputAudioFormat = "pcm16"
	}
	if params.OutputAudioFormat == "" {
		params.OutputAudioFormat = "pcm16"
	}
	return s.writeJSON(ctx, sessionUpdateMessage{Type: "session.update", Session: params})
}

// SendUserAudio delivers one complete utterance as a user conversation item
// carrying base64-encoded PCM16.
func (s *session) SendUserAudio(ctx context.Context, pcm []byte) error {
	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_audio", Audio: base64.StdEncoding.EncodeToString(pcm)},
			},
		},
	}
	return s.writeJSON(ctx, msg)
}

// RequestResponse sends a response.create event for the given modalities.
func (s *session) RequestResponse(ctx context.Context, modalities []string) error {
	return s.writeJSON(ctx, createResponseMessage{
		Type:     "response.create",
		Response: responseParams{Modalities: modalities},
	})
}

// Next reads the next server event off the socket. Audio deltas are base64
// decoded before being returned; frames that fail to parse are skipped.
func (s *session) Next(ctx context.Context) (realtime.Event, error) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return realtime.Event{}, ctx.Err()
			}
			return realtime.Event{}, fmt.Errorf("openai: read: %w", err)
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		switch realtime.EventType(evt.Type) {
		case realtime.EventTextDelta:
			return realtime.Event{Type: realtime.EventTextDelta, Text: evt.Delta}, nil
		case realtime.EventAudioDelta:
			audio, err := base64.StdEncoding.DecodeString(evt.Delta)
			if err != nil {
				continue
			}
			return realtime.Event{Type: realtime.EventAudioDelta, Audio: audio}, nil
		case realtime.EventError:
			detail := evt.Error
			if detail == nil {
				detail = &realtime.ServerError{Type: "error", Message: "unknown error"}
			}
			return realtime.Event{Type: realtime.EventError, Err: detail}, nil
		default:
			return realtime.Event{Type: realtime.EventType(evt.Type)}, nil
		}
	}
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("openai: write: %w", err)
	}
	return nil
}

// Close terminates the session and releases the connection. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Closing the connection interrupts any Next blocked in conn.Read.
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
