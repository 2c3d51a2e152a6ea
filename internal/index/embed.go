package index

import (
	"context"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.opentelemetry.io/otel/metric"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "text-embedding-3-small"

// modelDimensions maps known embedding models to their output width.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Embedder turns text into vectors via an OpenAI-compatible embeddings
// endpoint.
type Embedder struct {
	client  oai.Client
	model   string
	baseURL string
	metrics *observe.Metrics
}

// EmbedderOption configures an [Embedder].
type EmbedderOption func(*Embedder)

// WithEmbeddingModel overrides [DefaultEmbeddingModel].
func WithEmbeddingModel(model string) EmbedderOption {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithEmbeddingBaseURL points the client at a non-default endpoint, such as
// an Azure OpenAI deployment or a local server.
func WithEmbeddingBaseURL(baseURL string) EmbedderOption {
	return func(e *Embedder) {
		e.baseURL = baseURL
	}
}

// WithEmbedderMetrics overrides the default metrics instance.
func WithEmbedderMetrics(m *observe.Metrics) EmbedderOption {
	return func(e *Embedder) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEmbedder creates an embedding client authenticated with apiKey.
func NewEmbedder(apiKey string, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		model:   DefaultEmbeddingModel,
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = oai.NewClient(clientOpts...)
	return e
}

// Dimensions returns the vector width of the configured model, or 0 when the
// model is unknown and the width must come from configuration.
func (e *Embedder) Dimensions() int {
	return modelDimensions[e.model]
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, oai.EmbeddingNewParamsInputUnion{
		OfString: param.NewOpt(text),
	}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, oai.EmbeddingNewParamsInputUnion{
		OfArrayOfStrings: texts,
	}, len(texts))
}

func (e *Embedder) embed(ctx context.Context, input oai.EmbeddingNewParamsInputUnion, n int) (vecs [][]float32, err error) {
	start := time.Now()
	defer func() {
		e.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("model", e.model)))
	}()

	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Input: input,
		Model: oai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("index: embed: %w", err)
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("index: embed: got %d embeddings for %d inputs", len(resp.Data), n)
	}

	// The API may return embeddings out of order; Index places each one.
	result := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= n {
			return nil, fmt.Errorf("index: embed: embedding index %d out of range", d.Index)
		}
		result[d.Index] = float64ToFloat32(d.Embedding)
	}
	return result, nil
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
