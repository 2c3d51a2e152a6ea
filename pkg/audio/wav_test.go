package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/dnllvrvz/Lahn-Avatar/pkg/audio"
)

func TestEncodeWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 2400)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	wav, err := audio.EncodeWAV(pcm, 24000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("container size = %d; want %d", len(wav), 44+len(pcm))
	}

	got, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 24000 {
		t.Errorf("sample rate = %d; want 24000", rate)
	}
	if channels != 1 {
		t.Errorf("channels = %d; want 1", channels)
	}
	if string(got) != string(pcm) {
		t.Error("decoded samples differ from input")
	}
}

func TestEncodeWAV_HeaderFields(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := audio.EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("riff size = %d; want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(wav[20:22]); got != 1 {
		t.Errorf("audio format = %d; want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d; want 16000", got)
	}
	// byte rate = rate * channels * 16/8
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate = %d; want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d; want %d", got, len(pcm))
	}
}

func TestEncodeWAV_OddLength_ReturnsErrMalformedPCM(t *testing.T) {
	t.Parallel()

	_, err := audio.EncodeWAV([]byte{0x01, 0x02, 0x03}, 24000, 1)
	if !errors.Is(err, audio.ErrMalformedPCM) {
		t.Fatalf("err = %v; want ErrMalformedPCM", err)
	}
}

func TestEncodeWAV_EmptyPCM_ValidContainer(t *testing.T) {
	t.Parallel()

	wav, err := audio.EncodeWAV(nil, 24000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	got, _, _, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d bytes from empty container", len(got))
	}
}

func TestEncodeWAV_InvalidSampleRate(t *testing.T) {
	t.Parallel()

	if _, err := audio.EncodeWAV([]byte{0x01, 0x02}, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := map[string][]byte{
		"empty":     nil,
		"short":     []byte("RIFF"),
		"not riff":  []byte("OGGS this is definitely not a wav file at all"),
		"truncated": append([]byte("RIFF\x00\x00\x00\x00WAVEdata\xff\xff\xff\xff"), 0x01),
	}
	for name, data := range cases {
		if _, _, _, err := audio.DecodeWAV(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSampleCount(t *testing.T) {
	t.Parallel()

	if got := audio.SampleCount(make([]byte, 480)); got != 240 {
		t.Errorf("SampleCount = %d; want 240", got)
	}
}
