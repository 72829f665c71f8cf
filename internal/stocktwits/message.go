// Package stocktwits holds the Stocktwits message model and the HTTP client
// used to page through user and symbol streams.
package stocktwits

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the created_at format used by the API and by chunk anchors.
const TimeLayout = "2006-01-02T15:04:05Z"

// ParseTime parses a created_at style timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("stocktwits: parse time %q: %w", s, err)
	}
	return t, nil
}

// FormatTime renders t in the API layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// User is the author of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Symbol is a ticker tagged in a message.
type Symbol struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// Sentiment is the author-declared sentiment, "Bullish" or "Bearish".
type Sentiment struct {
	Basic string `json:"basic"`
}

// Entities carries the message annotations this tool reads.
type Entities struct {
	Sentiment *Sentiment `json:"sentiment,omitempty"`
}

// Message is one stream entry. Only the fields the collector and the signal
// builder need are decoded; the original JSON object is kept verbatim and is
// what gets written back to chunk files.
type Message struct {
	ID        int64
	CreatedAt time.Time
	Body      string
	User      User
	Symbols   []Symbol
	Entities  Entities

	raw json.RawMessage
}

type wireMessage struct {
	ID        int64    `json:"id"`
	Body      string   `json:"body"`
	CreatedAt string   `json:"created_at"`
	User      User     `json:"user"`
	Symbols   []Symbol `json:"symbols,omitempty"`
	Entities  Entities `json:"entities"`
}

// UnmarshalJSON decodes the known fields and keeps a copy of the raw object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	created, err := ParseTime(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("message %d: %w", w.ID, err)
	}
	*m = Message{
		ID:        w.ID,
		CreatedAt: created,
		Body:      w.Body,
		User:      w.User,
		Symbols:   w.Symbols,
		Entities:  w.Entities,
		raw:       bytes.Clone(data),
	}
	return nil
}

// MarshalJSON re-emits the raw object when the message was decoded from the
// API, so no payload field is lost on persistence.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(wireMessage{
		ID:        m.ID,
		Body:      m.Body,
		CreatedAt: FormatTime(m.CreatedAt),
		User:      m.User,
		Symbols:   m.Symbols,
		Entities:  m.Entities,
	})
}

// HasSymbol reports whether any tagged symbol is in targets.
func (m Message) HasSymbol(targets map[string]struct{}) bool {
	for _, s := range m.Symbols {
		if _, ok := targets[s.Symbol]; ok {
			return true
		}
	}
	return false
}

// SentimentLabel returns the declared sentiment or "".
func (m Message) SentimentLabel() string {
	if m.Entities.Sentiment == nil {
		return ""
	}
	return m.Entities.Sentiment.Basic
}
