package chat

import (
	"errors"
	"strings"
	"time"
)

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// DefaultTimeLayout mirrors the en-US locale time string (e.g. "3:04:05 PM").
const DefaultTimeLayout = "3:04:05 PM"

// ConnectionFailedText is the body of the entry synthesized on a connection error.
const ConnectionFailedText = "Failed to connect to server"

var (
	ErrEmptyMessage  = errors.New("message text is required")
	ErrInvalidSender = errors.New("invalid message sender")
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderSystem:
		return true
	}
	return false
}

// Message is one chat entry as it travels over the wire and sits in a transcript.
type Message struct {
	Text      string `json:"text"`
	Sender    Sender `json:"sender"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewMessage stamps text with the given sender and time formatted by layout.
// An empty layout falls back to DefaultTimeLayout.
func NewMessage(text string, sender Sender, at time.Time, layout string) Message {
	return Message{
		Text:      text,
		Sender:    sender,
		Timestamp: FormatTimestamp(at, layout),
	}
}

// FormatTimestamp renders t in the local zone using layout.
func FormatTimestamp(t time.Time, layout string) string {
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return t.Local().Format(layout)
}

// Validate checks a locally authored entry before it is sent or stored.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if !m.Sender.Valid() {
		return ErrInvalidSender
	}
	return nil
}
