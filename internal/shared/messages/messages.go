// Package messages holds the user-facing notification texts. Texts can be
// overridden from a JSON file.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Render replaces {name} placeholders in the title and body with vars.
func (m MessageText) Render(vars map[string]string) MessageText {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return MessageText{Title: r.Replace(m.Title), Body: r.Replace(m.Body)}
}

type Messages struct {
	SyncFailure MessageText `json:"sync_failure"`
}

// Default returns the built-in texts.
func Default() *Messages {
	return &Messages{
		SyncFailure: MessageText{
			Title: "Budget sync failed",
			Body:  "Sync of account {account_id} failed ({kind})",
		},
	}
}

// Load reads the notifications JSON file over the defaults. Texts missing
// from the file keep their default. An empty path returns the defaults.
func Load(path string) (*Messages, error) {
	msgs := Default()
	if path == "" {
		return msgs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}

	var override Messages
	if err := json.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	if override.SyncFailure.Title != "" {
		msgs.SyncFailure.Title = override.SyncFailure.Title
	}
	if override.SyncFailure.Body != "" {
		msgs.SyncFailure.Body = override.SyncFailure.Body
	}
	return msgs, nil
}
