// Package realtime defines the session abstraction for bidirectional
// streaming conversations with a multimodal realtime model.
//
// A [Session] is a stateful connection that is configured once, receives one
// user utterance as base64 PCM16 audio, and streams back an ordered sequence
// of [Event] values until the response completes. Events are pulled with
// [Session.Next]; exactly one goroutine may consume a session's event stream.
// A session serves a single turn — a new turn requires a new session.
//
// The protocol per turn is a strict milestone progression:
//
//	Configure        → session.updated
//	SendUserAudio    → conversation.item.created
//	RequestResponse  → (response.text.delta | response.audio.delta)* response.done
//
// [AwaitEvent] drives each gating transition with a bounded wait, skipping
// benign interleaved control events, and [Accumulate] reassembles the delta
// stream into a [TurnResult].
package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventType tags a server event received over a realtime session.
type EventType string

// Event types relevant to a voice turn. The transport may deliver other
// control events; consumers skip tags they do not handle.
const (
	EventSessionUpdated EventType = "session.updated"
	EventItemCreated    EventType = "conversation.item.created"
	EventTextDelta      EventType = "response.text.delta"
	EventAudioDelta     EventType = "response.audio.delta"
	EventResponseDone   EventType = "response.done"
	EventError          EventType = "error"
)

// Event is one server event from a realtime session, already decoded: audio
// deltas carry raw PCM bytes, not base64 text. Payload fields are populated
// according to Type; unrelated fields are zero.
type Event struct {
	Type EventType

	// Text is the incremental text payload of a response.text.delta event.
	Text string

	// Audio is the decoded PCM payload of a response.audio.delta event.
	// Deltas are concatenable byte chunks, not independently valid containers.
	Audio []byte

	// Err is the detail of an error event.
	Err *ServerError
}

// ServerError is the error detail reported by the remote service inside an
// error event.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// SessionError is a fatal session failure: the remote service emitted an
// error event, or an expected milestone event did not arrive within the
// bounded wait. Either way the session is unusable and must be closed.
type SessionError struct {
	// Remote is the remote-reported detail, nil for timeouts.
	Remote *ServerError

	// Waiting names the milestone that was being awaited, if any.
	Waiting EventType

	// Timeout reports that the bounded wait expired before the milestone.
	Timeout bool
}

func (e *SessionError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("realtime: timed out waiting for %s", e.Waiting)
	case e.Remote != nil:
		return fmt.Sprintf("realtime: remote error: %s", e.Remote.Error())
	default:
		return "realtime: session failed"
	}
}

func (e *SessionError) Unwrap() error {
	if e.Remote != nil {
		return e.Remote
	}
	return nil
}

// SessionConfig is the immutable configuration for a realtime session,
// active from Configure until the session closes.
type SessionConfig struct {
	// Modalities lists the response modalities to request, e.g.
	// ["text", "audio"].
	Modalities []string

	// Voice is the identity used for synthesised speech output.
	Voice string

	// Instructions is the system-level prompt, treated as an opaque string.
	Instructions string

	// InputAudioFormat and OutputAudioFormat are protocol format tags.
	// Empty means "pcm16".
	InputAudioFormat  string
	OutputAudioFormat string
}

// Session is one open realtime conversation serving a single voice turn.
//
// Sessions are single-consumer: events must be read by one goroutine, in
// arrival order, each exactly once. Callers must call Close when done,
// including on every error path, so the remote connection is released.
type Session interface {
	// Configure sends the session configuration. The session.updated
	// milestone must be awaited before sending audio.
	Configure(ctx context.Context, cfg SessionConfig) error

	// SendUserAudio delivers one complete user utterance as raw 16-bit
	// little-endian PCM. The implementation base64-encodes it for transport.
	SendUserAudio(ctx context.Context, pcm []byte) error

	// RequestResponse asks the model to generate a response in the given
	// modalities.
	RequestResponse(ctx context.Context, modalities []string) error

	// Next blocks until the next server event arrives, the context is done,
	// or the transport fails. Events are returned in arrival order.
	Next(ctx context.Context) (Event, error)

	// Close terminates the session and releases the connection. Idempotent.
	Close() error
}

// Dialer opens new realtime sessions. Each voice turn opens its own session;
// implementations must be safe for concurrent use.
type Dialer interface {
	Connect(ctx context.Context) (Session, error)
}

// AwaitEvent reads events from s until one tagged want arrives, skipping
// unrelated control events. An error event terminates the wait with a
// *SessionError carrying the remote detail. The wait is bounded by timeout
// (no bound when timeout <= 0); expiry yields a timeout-kind *SessionError.
func AwaitEvent(ctx context.Context, s Session, want EventType, timeout time.Duration) (Event, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		ev, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return Event{}, &SessionError{Waiting: want, Timeout: true}
			}
			return Event{}, err
		}
		switch ev.Type {
		case want:
			return ev, nil
		case EventError:
			return Event{}, &SessionError{Remote: ev.Err, Waiting: want}
		}
	}
}
