package index

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// embedBatchSize bounds how many chunks go into one embeddings request.
const embedBatchSize = 64

// embedConcurrency bounds parallel embeddings requests during a rebuild.
const embedConcurrency = 4

// textExtensions are the document types picked up from the docs directory.
var textExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// Index ties the chunker, the embedder and the pgvector store together into
// the retrieval surface the chat engine grounds its replies on.
type Index struct {
	store    *Store
	embedder *Embedder
	chunker  Chunker
	docsDir  string
	metrics  *observe.Metrics

	// rebuildMu serializes rebuilds; concurrent refresh requests queue up
	// rather than interleave their corpus swaps.
	rebuildMu sync.Mutex
}

// New creates an Index over docsDir. metrics may be nil.
func New(store *Store, embedder *Embedder, chunker Chunker, docsDir string, m *observe.Metrics) *Index {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Index{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		docsDir:  docsDir,
		metrics:  m,
	}
}

// Rebuild re-reads every document under the docs directory, chunks and embeds
// the lot, and atomically replaces the stored corpus. The previous corpus
// stays searchable until the swap commits.
func (ix *Index) Rebuild(ctx context.Context) (err error) {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	start := time.Now()
	log := observe.Logger(ctx)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		ix.metrics.RecordIndexRebuild(ctx, status)
		log.Info("index rebuild finished",
			"status", status,
			"duration", time.Since(start),
		)
	}()

	chunks, err := ix.collectChunks()
	if err != nil {
		return err
	}
	log.Info("index rebuild started", "docs_dir", ix.docsDir, "chunks", len(chunks))

	if err := ix.embedChunks(ctx, chunks); err != nil {
		return err
	}
	if err := ix.store.ReplaceAll(ctx, chunks); err != nil {
		return err
	}
	return nil
}

// collectChunks walks the docs dir and splits every text document.
func (ix *Index) collectChunks() ([]Chunk, error) {
	var chunks []Chunk
	err := filepath.WalkDir(ix.docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !textExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(ix.docsDir, path)
		if err != nil {
			rel = path
		}
		for i, text := range ix.chunker.Split(string(data)) {
			chunks = append(chunks, Chunk{Source: rel, Ordinal: i, Content: text})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index: walk docs: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("index: no documents found under %s", ix.docsDir)
	}
	return chunks, nil
}

// embedChunks fills in the Embedding field of every chunk, batching requests
// and running batches in parallel.
func (ix *Index) embedChunks(ctx context.Context, chunks []Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for lo := 0; lo < len(chunks); lo += embedBatchSize {
		hi := min(lo+embedBatchSize, len(chunks))
		batch := chunks[lo:hi]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := ix.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// Retrieve embeds the query and returns the topK most similar chunk texts.
// It satisfies the chat engine's retriever contract.
func (ix *Index) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := ix.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Content
	}
	return out, nil
}
