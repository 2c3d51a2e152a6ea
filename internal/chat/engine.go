package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// InitPrompt is the sentinel the frontend sends to open a conversation. It is
// replaced by a plain greeting before the model sees it.
const InitPrompt = "__INIT__"

// defaultGreeting stands in for the InitPrompt sentinel.
const defaultGreeting = "Hallo"

// Retriever returns document snippets relevant to a query, most similar
// first. A nil Retriever disables retrieval grounding.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// Capability is a live data source the engine can consult while answering.
// Relevant gates invocation so unrelated questions skip the fetch.
type Capability interface {
	Name() string
	Description() string
	Relevant(question string) bool
	Invoke(ctx context.Context, question string) (string, error)
}

// Engine answers user prompts as the river avatar, grounding replies with
// retrieved documents and live capability data where available.
type Engine struct {
	completer    Completer
	instructions func(ctx context.Context) (string, error)
	retriever    Retriever
	capabilities []Capability
	topK         int
	metrics      *observe.Metrics
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithRetriever enables retrieval grounding with the given snippet count.
func WithRetriever(r Retriever, topK int) Option {
	return func(e *Engine) {
		e.retriever = r
		e.topK = topK
	}
}

// WithCapability registers a live data capability.
func WithCapability(c Capability) Option {
	return func(e *Engine) { e.capabilities = append(e.capabilities, c) }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine. instructions supplies the system prompt per request
// and may be nil.
func New(completer Completer, instructions func(ctx context.Context) (string, error), opts ...Option) *Engine {
	e := &Engine{
		completer:    completer,
		instructions: instructions,
		topK:         3,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Reply answers prompt in the context of the given conversation history.
// The InitPrompt sentinel becomes a greeting; a non-empty history is
// flattened into the transcript form the avatar prompt expects.
func (e *Engine) Reply(ctx context.Context, prompt string, history []HistoryEntry) (reply string, err error) {
	log := observe.Logger(ctx)
	start := time.Now()
	defer func() {
		e.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordCompletion(ctx, "chat", status)
	}()

	if prompt == InitPrompt {
		prompt = defaultGreeting
	} else if len(history) > 0 {
		prompt = FormatHistory(history)
	}

	system, err := e.systemPrompt(ctx, prompt)
	if err != nil {
		return "", err
	}

	messages := []Message{}
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	reply, err = e.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat: reply: %w", err)
	}
	log.Debug("chat reply generated", "prompt_chars", len(prompt), "reply_chars", len(reply))
	return reply, nil
}

// systemPrompt assembles the system message: base instructions, retrieved
// document snippets, and outputs of every relevant capability.
func (e *Engine) systemPrompt(ctx context.Context, question string) (string, error) {
	log := observe.Logger(ctx)
	var sections []string

	if e.instructions != nil {
		base, err := e.instructions(ctx)
		if err != nil {
			return "", fmt.Errorf("chat: instructions: %w", err)
		}
		if base != "" {
			sections = append(sections, base)
		}
	}

	if e.retriever != nil {
		snippets, err := e.retriever.Retrieve(ctx, question, e.topK)
		if err != nil {
			// Retrieval is best-effort grounding: answer without it.
			log.Warn("retrieval failed, answering ungrounded", "err", err)
		} else if len(snippets) > 0 {
			sections = append(sections,
				"Context from the Lahn document collection:\n"+strings.Join(snippets, "\n---\n"))
		}
	}

	for _, c := range e.capabilities {
		if !c.Relevant(question) {
			continue
		}
		out, err := c.Invoke(ctx, question)
		if err != nil {
			log.Warn("capability failed", "capability", c.Name(), "err", err)
			continue
		}
		if out != "" {
			sections = append(sections, fmt.Sprintf("Live data from %s:\n%s", c.Name(), out))
		}
	}

	return strings.Join(sections, "\n\n"), nil
}
