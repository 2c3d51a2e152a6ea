package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// debateSummaryTemplate asks the summary model for the two-sided outline the
// debate UI renders. Placeholders: topic, flattened conversation, previous
// summary.
const debateSummaryTemplate = `This is a debate between a human and an AI avatar for the Lahn river. Your job is to provide a summary outline in the format
"Lahn:<Lahn's Central Perspective>
Pro:<Central Pro>
Con:<Central Con of Lahn's perspective (deduced by you)>

You:<User's Central Perspective>
Pro:<Central Pro>
Con:<Central Con of User's perspective (deduced by you)>", briefly outlining the Lahn's primary perspective, a pro and con of that perspective, the user's perspective and a pro and con of that as well. Keep all content very brief. You're summarizing, not re-iterating. You are provided with the most recent debate summary. If it already contains content, iterate on that content to reflect recent updates to the conversation.
Topic being debated: %s

Conversation:
%s

Existing summary:
%s

Respond with an updated version of the summary in the described format. Make sure to preserve the specified formatting in the template "Lahn:
Pro:
Con:

You:
Pro:
Con:". No extra characters. If any party is yet to contribute to the conversation, leave their summary blank, as in the template.`

// Summarizer maintains a running outline of an ongoing debate. It uses its
// own Completer so a different (typically larger) model than the chat engine
// can be configured.
type Summarizer struct {
	completer Completer
	metrics   *observe.Metrics
}

// NewSummarizer creates a Summarizer on the given completer. metrics may be
// nil, in which case the package default instance is used.
func NewSummarizer(completer Completer, m *observe.Metrics) *Summarizer {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Summarizer{completer: completer, metrics: m}
}

// Summarize produces an updated debate outline from the conversation so far
// and the previous outline. previous may be empty on the first call.
func (s *Summarizer) Summarize(ctx context.Context, topic string, history []HistoryEntry, previous string) (summary string, err error) {
	start := time.Now()
	defer func() {
		s.metrics.CompletionDuration.Record(ctx, time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordCompletion(ctx, "debate", status)
	}()

	prompt := fmt.Sprintf(debateSummaryTemplate, topic, FormatHistory(history), previous)
	summary, err = s.completer.Complete(ctx, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("chat: debate summary: %w", err)
	}
	return summary, nil
}
