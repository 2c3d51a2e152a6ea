package chat

import "strings"

// HistoryEntry is one message of a client-side conversation transcript.
type HistoryEntry struct {
	// Sender is "user" or "avatar".
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// senderNames maps wire sender tags to transcript speaker names.
var senderNames = map[string]string{
	"user":   "User",
	"avatar": "Lahn",
}

// FormatHistory flattens a conversation into a newline-separated transcript
// ("User: ...\nLahn: ..."). Unknown sender tags are kept verbatim.
func FormatHistory(history []HistoryEntry) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		name := m.Sender
		if n, ok := senderNames[m.Sender]; ok {
			name = n
		}
		lines = append(lines, name+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
