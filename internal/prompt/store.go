// Package prompt manages the avatar's system instructions: the persona text
// lives in a remotely edited document, gets fetched on demand, and is cached
// on disk so the backend starts even when the document host is unreachable.
package prompt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// maxPromptSize bounds the fetched document to keep a misconfigured URL from
// caching megabytes of HTML as the persona.
const maxPromptSize = 256 << 10

// Store serves the system instructions used by both the chat engine and the
// voice pipeline. Safe for concurrent use.
type Store struct {
	docURL    string
	cachePath string
	client    *http.Client

	mu     sync.RWMutex
	cached string
}

// New creates a Store. docURL is the plain-text export URL of the persona
// document and may be empty when only the disk cache should be used.
func New(docURL, cachePath string) *Store {
	return &Store{
		docURL:    docURL,
		cachePath: cachePath,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Instructions returns the current system instructions. Resolution order:
// in-memory cache, disk cache, then a fresh fetch when a document URL is
// configured.
func (s *Store) Instructions(ctx context.Context) (string, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	if data, err := os.ReadFile(s.cachePath); err == nil {
		text := strings.TrimSpace(string(data))
		if text != "" {
			s.mu.Lock()
			s.cached = text
			s.mu.Unlock()
			return text, nil
		}
	}

	if s.docURL == "" {
		return "", fmt.Errorf("prompt: no cached instructions at %s and no document URL configured", s.cachePath)
	}
	return s.Refresh(ctx)
}

// Refresh fetches the persona document, rewrites the disk cache and returns
// the new instructions. The previous cache survives a failed fetch.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	if s.docURL == "" {
		return "", fmt.Errorf("prompt: no document URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.docURL, nil)
	if err != nil {
		return "", fmt.Errorf("prompt: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("prompt: fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt: fetch document: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPromptSize))
	if err != nil {
		return "", fmt.Errorf("prompt: read document: %w", err)
	}
	text := strings.TrimSpace(strings.TrimPrefix(string(data), "\ufeff"))
	if text == "" {
		return "", fmt.Errorf("prompt: document at %s is empty", s.docURL)
	}

	if err := s.writeCache(text); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cached = text
	s.mu.Unlock()

	observe.Logger(ctx).Info("system instructions refreshed",
		"chars", len(text),
		"cache_path", s.cachePath,
	)
	return text, nil
}

// writeCache replaces the cache file atomically so a crash mid-write never
// leaves a truncated persona behind.
func (s *Store) writeCache(text string) error {
	dir := filepath.Dir(s.cachePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prompt: create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prompt-*")
	if err != nil {
		return fmt.Errorf("prompt: create temp cache: %w", err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("prompt: write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prompt: close cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.cachePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prompt: replace cache: %w", err)
	}
	return nil
}
