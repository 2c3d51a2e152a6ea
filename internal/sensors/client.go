// Package sensors reads the Lahn Atlas environmental sensor feed from the
// ThingSpeak REST API and exposes it to the chat engine as an analytics
// capability. Field names (pH, DO, Temp, EC, Humidity, CO2) come from the
// channel metadata, so reordering fields on the ThingSpeak side does not
// break the mapping.
package sensors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public ThingSpeak API endpoint.
	DefaultBaseURL = "https://api.thingspeak.com"

	// DefaultResults is how many recent readings to fetch per call.
	DefaultResults = 100

	// fieldCount is the number of sensor fields on the channel.
	fieldCount = 6
)

// Reading is one timestamped row of sensor values, keyed by the
// human-readable field names from the channel metadata. Unparsable values
// are absent from the map.
type Reading struct {
	At     time.Time
	Values map[string]float64
}

// Feed is a fetched slice of channel history.
type Feed struct {
	// ChannelName is the channel title from the metadata.
	ChannelName string

	// Fields are the human-readable field names in channel order.
	Fields []string

	// Readings are the rows, oldest first as delivered by the API.
	Readings []Reading
}

// Client fetches channel feeds from ThingSpeak.
type Client struct {
	// ChannelID is the numeric ThingSpeak channel.
	ChannelID string

	// Results is the number of recent entries to request. Zero means
	// [DefaultResults].
	Results int

	// BaseURL overrides the API endpoint, mainly for tests. Empty means
	// [DefaultBaseURL].
	BaseURL string

	// HTTPClient defaults to a client with a modest timeout.
	HTTPClient *http.Client
}

// feedsResponse mirrors the ThingSpeak feeds.json payload. Field values
// arrive as strings.
type feedsResponse struct {
	Channel map[string]any `json:"channel"`
	Feeds   []struct {
		CreatedAt string `json:"created_at"`
		Field1    string `json:"field1"`
		Field2    string `json:"field2"`
		Field3    string `json:"field3"`
		Field4    string `json:"field4"`
		Field5    string `json:"field5"`
		Field6    string `json:"field6"`
	} `json:"feeds"`
}

// Fetch retrieves the recent channel history.
func (c *Client) Fetch(ctx context.Context) (*Feed, error) {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	results := c.Results
	if results <= 0 {
		results = DefaultResults
	}
	httpc := c.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}

	url := fmt.Sprintf("%s/channels/%s/feeds.json?results=%d", base, c.ChannelID, results)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("sensors: build request: %w", err)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sensors: fetch channel %s: %w", c.ChannelID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sensors: fetch channel %s: unexpected status %d", c.ChannelID, resp.StatusCode)
	}

	var payload feedsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("sensors: decode feed: %w", err)
	}
	return buildFeed(&payload), nil
}

// buildFeed maps raw field columns to metadata names and parses values.
func buildFeed(payload *feedsResponse) *Feed {
	feed := &Feed{}
	if name, ok := payload.Channel["name"].(string); ok {
		feed.ChannelName = name
	}

	// fieldN metadata entries name the columns.
	names := make([]string, 0, fieldCount)
	for i := 1; i <= fieldCount; i++ {
		key := "field" + strconv.Itoa(i)
		name, ok := payload.Channel[key].(string)
		if !ok || name == "" {
			name = key
		}
		names = append(names, name)
	}
	feed.Fields = names

	for _, row := range payload.Feeds {
		r := Reading{Values: make(map[string]float64, fieldCount)}
		if at, err := time.Parse(time.RFC3339, row.CreatedAt); err == nil {
			r.At = at
		}
		raw := []string{row.Field1, row.Field2, row.Field3, row.Field4, row.Field5, row.Field6}
		for i, v := range raw {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			r.Values[names[i]] = f
		}
		feed.Readings = append(feed.Readings, r)
	}
	return feed
}

// Table renders the feed as a tab-separated table for inclusion in a model
// prompt, newest reading last. limit bounds the row count (0 = all).
func (f *Feed) Table(limit int) string {
	var b strings.Builder
	b.WriteString("time")
	for _, name := range f.Fields {
		b.WriteString("\t")
		b.WriteString(name)
	}
	b.WriteString("\n")

	rows := f.Readings
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	for _, r := range rows {
		b.WriteString(r.At.Format(time.RFC3339))
		for _, name := range f.Fields {
			b.WriteString("\t")
			if v, ok := r.Values[name]; ok {
				b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				b.WriteString("-")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
