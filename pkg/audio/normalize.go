// Package audio provides the audio-format plumbing for the Lahn Avatar voice
// pipeline: normalising arbitrary uploaded clips to canonical mono PCM16 via
// an external ffmpeg process, and wrapping raw PCM back into a RIFF/WAV
// container for playback.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultSampleRate is the canonical input sample rate expected by the
	// realtime model for user audio.
	DefaultSampleRate = 16000

	// stderrTailBytes limits how much ffmpeg stderr output is retained in a
	// TranscodeError.
	stderrTailBytes = 2048
)

// TranscodeError reports a failed ffmpeg invocation: the process exited
// non-zero or its output file could not be read back.
type TranscodeError struct {
	// Path is the input file that was being transcoded.
	Path string

	// Stderr holds the tail of the ffmpeg stderr output, when available.
	Stderr string

	// Err is the underlying process or filesystem error.
	Err error
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("audio: transcode %q: %v: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("audio: transcode %q: %v", e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Normalizer converts an arbitrary audio container/codec into mono,
// little-endian signed 16-bit PCM at a fixed sample rate by shelling out to
// ffmpeg. The intermediate file lives in ScratchDir under a per-invocation
// unique name and is removed on every exit path.
//
// A zero-value Normalizer is usable: it runs "ffmpeg" from PATH, writes
// scratch files to the OS temp dir, and targets [DefaultSampleRate].
type Normalizer struct {
	// FFmpegPath is the ffmpeg executable. Empty means "ffmpeg".
	FFmpegPath string

	// ScratchDir is where intermediate PCM files are written. Empty means
	// the OS temp dir. Scratch filenames are unique per invocation so
	// concurrent turns cannot collide.
	ScratchDir string

	// SampleRate is the target output rate in Hz. Zero means [DefaultSampleRate].
	SampleRate int
}

// Normalize transcodes the file at inputPath to mono s16le PCM at the
// configured sample rate and returns the raw samples. The input file is never
// modified. A non-zero ffmpeg exit or an unreadable output file is reported
// as a *TranscodeError.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) ([]byte, error) {
	ffmpeg := n.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	dir := n.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	rate := n.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	scratch := filepath.Join(dir, "normalize-"+uuid.NewString()+".pcm")
	defer os.Remove(scratch)

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-y", "-i", inputPath,
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-f", "s16le",
		scratch,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TranscodeError{Path: inputPath, Stderr: stderrTail(stderr.Bytes()), Err: err}
	}

	pcm, err := os.ReadFile(scratch)
	if err != nil {
		return nil, &TranscodeError{Path: inputPath, Err: err}
	}
	if len(pcm) == 0 {
		return nil, &TranscodeError{Path: inputPath, Err: errors.New("empty transcoder output")}
	}
	return pcm, nil
}

// stderrTail returns the last [stderrTailBytes] of b as a trimmed string.
func stderrTail(b []byte) string {
	if len(b) > stderrTailBytes {
		b = b[len(b)-stderrTailBytes:]
	}
	return strings.TrimSpace(string(b))
}
