package realtime

import (
	"context"
	"time"
)

// TurnResult is a fully reassembled model response: every text delta and
// every audio delta of the turn concatenated in arrival order.
type TurnResult struct {
	// Text is the transcript of the response.
	Text string

	// PCM is the raw 16-bit little-endian audio of the response.
	PCM []byte
}

// Accumulate drains the event stream of an in-flight response, concatenating
// response.text.delta and response.audio.delta payloads in arrival order until
// response.done arrives. Unrelated control events are skipped. An error event
// or an expired timeout aborts the turn with a *SessionError; partial deltas
// are discarded. The wait is unbounded when timeout <= 0.
func Accumulate(ctx context.Context, s Session, timeout time.Duration) (*TurnResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		text []byte
		pcm  []byte
	)
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, &SessionError{Waiting: EventResponseDone, Timeout: true}
			}
			return nil, err
		}
		switch ev.Type {
		case EventTextDelta:
			text = append(text, ev.Text...)
		case EventAudioDelta:
			pcm = append(pcm, ev.Audio...)
		case EventResponseDone:
			return &TurnResult{Text: string(text), PCM: pcm}, nil
		case EventError:
			return nil, &SessionError{Remote: ev.Err, Waiting: EventResponseDone}
		}
	}
}
