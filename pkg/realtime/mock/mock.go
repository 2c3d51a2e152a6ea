// Package mock provides a scripted in-memory realtime session for tests.
package mock

import (
	"context"
	"sync"

	"github.com/dnllvrvz/Lahn-Avatar/pkg/realtime"
)

// Session replays a fixed script of events. When the script is exhausted,
// Next blocks until the context is cancelled, which makes timeout behaviour
// testable without a transport.
type Session struct {
	// Script is the sequence of events Next returns, in order.
	Script []realtime.Event

	// ConfigureErr, SendErr and RequestErr are returned verbatim by the
	// corresponding methods when non-nil.
	ConfigureErr error
	SendErr      error
	RequestErr   error

	mu        sync.Mutex
	pos       int
	closed    bool
	Config    realtime.SessionConfig
	SentAudio [][]byte
	Requested [][]string
}

var _ realtime.Session = (*Session)(nil)

func (s *Session) Configure(_ context.Context, cfg realtime.SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Config = cfg
	return s.ConfigureErr
}

func (s *Session) SendUserAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SentAudio = append(s.SentAudio, pcm)
	return s.SendErr
}

func (s *Session) RequestResponse(_ context.Context, modalities []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requested = append(s.Requested, modalities)
	return s.RequestErr
}

func (s *Session) Next(ctx context.Context) (realtime.Event, error) {
	s.mu.Lock()
	if s.pos < len(s.Script) {
		ev := s.Script[s.pos]
		s.pos++
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()
	<-ctx.Done()
	return realtime.Event{}, ctx.Err()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dialer hands out a fixed session, or an error.
type Dialer struct {
	Session *Session
	Err     error
}

var _ realtime.Dialer = (*Dialer)(nil)

func (d *Dialer) Connect(context.Context) (realtime.Session, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}
