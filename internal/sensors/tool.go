package sensors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dnllvrvz/Lahn-Avatar/internal/observe"
)

// toolDescription is shown to readers of the capability (and mirrored in the
// grounding prompt).
const toolDescription = "Answers analytical questions about the live Lahn Atlas sensor data " +
	"(pH, DO, Temp, EC, Humidity, CO2) fetched from the ThingSpeak REST API."

// keywords trigger the capability. Matching is case-insensitive substring
// search over the question; sensor questions mention either a measurement
// name or the water itself.
var keywords = []string{
	"ph", "sauerstoff", "oxygen", "do ",
	"temp", "wasser", "water",
	"ec", "leitfähigkeit", "conduct",
	"feucht", "humid", "co2",
	"sensor", "messwert", "reading",
}

// tableRows bounds how many recent readings are handed to the model.
const tableRows = 24

// Tool is the live-sensor analytics capability for the chat engine. It
// fetches fresh channel data on every invocation and renders it as a table
// the model can reason over.
type Tool struct {
	client  *Client
	metrics *observe.Metrics
}

// NewTool creates the capability on the given client. metrics may be nil.
func NewTool(client *Client, m *observe.Metrics) *Tool {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Tool{client: client, metrics: m}
}

// Name implements the chat capability contract.
func (t *Tool) Name() string { return "lahn_sensors" }

// Description implements the chat capability contract.
func (t *Tool) Description() string { return toolDescription }

// Relevant reports whether the question plausibly concerns sensor data.
func (t *Tool) Relevant(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// Invoke fetches fresh readings and returns them as a table with a short
// framing line, ready to be embedded in the grounding prompt.
func (t *Tool) Invoke(ctx context.Context, question string) (out string, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		t.metrics.RecordSensorFetch(ctx, status)
		observe.Logger(ctx).Debug("sensor capability invoked",
			"question_chars", len(question),
			"status", status,
			"duration", time.Since(start),
		)
	}()

	feed, err := t.client.Fetch(ctx)
	if err != nil {
		return "", err
	}
	if len(feed.Readings) == 0 {
		return "", fmt.Errorf("sensors: channel returned no readings")
	}

	return fmt.Sprintf("Recent readings from %s (newest last):\n%s",
		feed.ChannelName, feed.Table(tableRows)), nil
}
