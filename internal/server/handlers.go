package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dnllvrvz/Lahn-Avatar/internal/chat"
	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// replyAudioName is the single reply file in the data dir. Each voice turn
// overwrites it; the frontend always fetches the latest reply.
const replyAudioName = "reply.wav"

// maxUploadSize bounds multipart request bodies (voice turns and experience
// uploads).
const maxUploadSize = 64 << 20

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Prompt  string              `json:"prompt"`
	History []chat.HistoryEntry `json:"history"`
}

// debateRequest is the body of POST /api/debate-summary.
type debateRequest struct {
	Topic   string              `json:"topic"`
	History []chat.HistoryEntry `json:"history"`
	Summary string              `json:"summary"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat is not configured"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	reply, err := s.cfg.Chat.Reply(r.Context(), req.Prompt, req.History)
	if err != nil {
		observe.Logger(r.Context()).Error("chat reply failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "chat failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleDebateSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Debate == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "debate summary is not configured"})
		return
	}

	var req debateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	summary, err := s.cfg.Debate.Summarize(r.Context(), req.Topic, req.History, req.Summary)
	if err != nil {
		observe.Logger(r.Context()).Error("debate summary failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Voice == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "voice chat is not configured"})
		return
	}

	inputPath, cleanup, err := s.saveMultipartAudio(r, s.cfg.DataDir)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio uploaded"})
		return
	}
	defer cleanup()

	turn, err := s.cfg.Voice.RunTurn(r.Context(), inputPath)
	if err != nil {
		// Internal detail stays in the log; clients get a generic failure.
		observe.Logger(r.Context()).Error("voice chat failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Voice chat failed"})
		return
	}

	if err := s.writeReplyAudio(turn.WAV); err != nil {
		observe.Logger(r.Context()).Error("persist reply audio failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Voice chat failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"reply_text":      turn.Text,
		"reply_audio_url": "/api/reply-audio",
	})
}

func (s *Server) handleReplyAudio(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.cfg.DataDir, replyAudioName)
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	// The audio element fetches without credentials; permissive CORS here.
	// The credentials header set by the site-wide wrapper must go, since
	// browsers reject a wildcard origin combined with credentials.
	w.Header().Del("Access-Control-Allow-Credentials")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

func (s *Server) handleExperienceUpload(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	now := time.Now().UTC()
	stamp := fmt.Sprintf("%s_%06d", now.Format("20060102_150405"), now.Nanosecond()/1000)
	textDir := filepath.Join(s.cfg.UploadDir, "text")
	if err := os.MkdirAll(textDir, 0o755); err != nil {
		log.Error("create upload dir failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Upload failed."})
		return
	}

	if text := strings.TrimSpace(r.FormValue("text")); text != "" {
		name := filepath.Join(textDir, stamp+"_message.txt")
		if err := os.WriteFile(name, []byte(text), 0o644); err != nil {
			log.Error("save experience text failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Upload failed."})
			return
		}
	}

	file, header, err := r.FormFile("audio")
	if err == nil {
		defer file.Close()

		ext := filepath.Ext(filepath.Base(header.Filename))
		if ext == "" {
			ext = ".webm"
		}
		audioPath := filepath.Join(s.cfg.UploadDir, stamp+"_audio"+ext)
		out, err := os.Create(audioPath)
		if err != nil {
			log.Error("save experience audio failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Upload failed."})
			return
		}
		if _, err := out.ReadFrom(file); err != nil {
			out.Close()
			log.Error("save experience audio failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Upload failed."})
			return
		}
		out.Close()

		if s.cfg.Transcribe != nil && s.cfg.Normalize != nil {
			if err := s.transcribeUpload(r, audioPath, filepath.Join(textDir, stamp+"_transcript.txt")); err != nil {
				log.Error("transcribe upload failed", "err", err)
				writeJSON(w, http.StatusInternalServerError,
					map[string]string{"status": "error", "message": "Audio saved, but transcription failed."})
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Experience saved."})
}

// transcribeUpload normalizes the stored recording, transcribes it and writes
// the transcript next to the text messages.
func (s *Server) transcribeUpload(r *http.Request, audioPath, transcriptPath string) error {
	pcm, err := s.cfg.Normalize.Normalize(r.Context(), audioPath)
	if err != nil {
		return err
	}
	text, err := s.cfg.Transcribe.Transcribe(r.Context(), pcm)
	if err != nil {
		return err
	}
	return os.WriteFile(transcriptPath, []byte(strings.TrimSpace(text)), 0o644)
}

func (s *Server) handleRefreshPrompt(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prompt == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prompt store is not configured"})
		return
	}
	if _, err := s.cfg.Prompt.Refresh(r.Context()); err != nil {
		observe.Logger(r.Context()).Error("prompt refresh failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRefreshEmbeddings(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "document index is not configured"})
		return
	}
	if err := s.cfg.Index.Rebuild(r.Context()); err != nil {
		observe.Logger(r.Context()).Error("index rebuild failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rebuild failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveMultipartAudio stores the "audio" part of a multipart request as a
// transient file. The returned cleanup removes it.
func (s *Server) saveMultipartAudio(r *http.Request, dir string) (string, func(), error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return "", nil, fmt.Errorf("server: parse multipart: %w", err)
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", nil, fmt.Errorf("server: missing audio part: %w", err)
	}
	defer file.Close()

	ext := filepath.Ext(filepath.Base(header.Filename))
	if ext == "" {
		ext = ".webm"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("server: create data dir: %w", err)
	}
	path := filepath.Join(dir, "input-"+uuid.NewString()+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("server: create input file: %w", err)
	}
	if _, err := out.ReadFrom(file); err != nil {
		out.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("server: store input file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("server: store input file: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}

// writeReplyAudio replaces the reply file atomically: concurrent turns race,
// the last rename wins, and readers never see a partial file.
func (s *Server) writeReplyAudio(wav []byte) error {
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("server: create data dir: %w", err)
	}
	tmp := filepath.Join(s.cfg.DataDir, ".reply-"+uuid.NewString()+".wav")
	if err := os.WriteFile(tmp, wav, 0o644); err != nil {
		return fmt.Errorf("server: write reply audio: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.cfg.DataDir, replyAudioName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("server: replace reply audio: %w", err)
	}
	return nil
}

// writeJSON writes v as a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
