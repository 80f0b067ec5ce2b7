package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DISCORD SIGNAL FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Polls a Discord channel over REST for new signal messages
// Cursor-based: the engine persists the last seen message ID
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DiscordAPI = "https://discord.com/api/v10"
)

// Message is a feed message with its text flattened from content and embeds.
type Message struct {
	ID        string
	Text      string
	Timestamp int64
}

// DiscordReader reads messages from one channel.
type DiscordReader struct {
	baseURL    string
	token      string
	channelID  string
	httpClient *http.Client
}

// NewDiscordReader creates a reader for the given channel. The token is a
// user or bot token sent as-is in the Authorization header.
func NewDiscordReader(token, channelID string) *DiscordReader {
	return &DiscordReader{
		baseURL:    DiscordAPI,
		token:      token,
		channelID:  channelID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchAfter returns up to limit messages newer than the cursor, oldest
// first. An empty cursor returns the most recent messages.
func (r *DiscordReader) FetchAfter(cursor string, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if cursor != "" {
		q.Set("after", cursor)
	}

	path := fmt.Sprintf("/channels/%s/messages?%s", r.channelID, q.Encode())
	body, err := r.get(path)
	if err != nil {
		return nil, err
	}

	var raw []discordMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse messages: %w", err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, m.flatten())
	}

	// Discord returns newest first, engine wants arrival order.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })

	if len(msgs) > 0 {
		log.Debug().Int("count", len(msgs)).Str("cursor", cursor).Msg("Fetched feed messages")
	}
	return msgs, nil
}

// FetchMessage returns a single message by ID. Deleted messages return
// nil without error.
func (r *DiscordReader) FetchMessage(id string) (*Message, error) {
	body, err := r.get(fmt.Sprintf("/channels/%s/messages/%s", r.channelID, id))
	if err != nil {
		if httpErr, ok := err.(*HTTPError); ok && httpErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	var raw discordMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	msg := raw.flatten()
	return &msg, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

type discordMessage struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Embeds    []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Fields      []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

// flatten joins content and embed text into one searchable block.
func (m discordMessage) flatten() Message {
	var parts []string
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, e := range m.Embeds {
		if e.Title != "" {
			parts = append(parts, e.Title)
		}
		if e.Description != "" {
			parts = append(parts, e.Description)
		}
		for _, f := range e.Fields {
			parts = append(parts, f.Name+" "+f.Value)
		}
	}

	var ts int64
	if t, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		ts = t.Unix()
	}

	return Message{ID: m.ID, Text: strings.Join(parts, "\n"), Timestamp: ts}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// HTTPError is a non-2xx Discord response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("discord HTTP %d: %s", e.Status, e.Body)
}

func (r *DiscordReader) get(path string) ([]byte, error) {
	req, err := http.NewRequest("GET", r.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
