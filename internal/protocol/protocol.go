// Package protocol defines the events exchanged with the chat endpoint and
// their JSON envelope encoding.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

// Event names used on the wire.
const (
	EventChatHistory  = "chatHistory"
	EventBotMessage   = "botMessage"
	EventConnectError = "connect_error"
	EventMessage      = "message"
)

// ErrUnknownEvent is returned when an envelope names an event this side does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is a single websocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is an event delivered from the endpoint to the widget.
// The set of implementations is closed: History, BotMessage and ConnectError.
type Inbound interface {
	inbound()
}

// History replaces the whole transcript.
type History struct {
	Messages []chat.Message
}

// BotMessage carries a single reply.
type BotMessage struct {
	Message chat.Message
}

// ConnectError reports a transport level failure. Err may be nil.
type ConnectError struct {
	Err error
}

func (History) inbound()      {}
func (BotMessage) inbound()   {}
func (ConnectError) inbound() {}

// Outbound is an event emitted by the widget. UserMessage is the only one.
type Outbound interface {
	outbound()
}

// UserMessage is the raw text typed by the user.
type UserMessage struct {
	Text string
}

func (UserMessage) outbound() {}

type errorPayload struct {
	Message string `json:"message,omitempty"`
}

// DecodeInbound parses an envelope frame received by the widget.
func DecodeInbound(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventChatHistory:
		var messages []chat.Message
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &messages); err != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Event, err)
			}
		}
		if messages == nil {
			messages = []chat.Message{}
		}
		return History{Messages: messages}, nil
	case EventBotMessage:
		var msg chat.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return BotMessage{Message: msg}, nil
	case EventConnectError:
		var payload errorPayload
		if len(env.Data) > 0 {
			// the payload is implementation defined, so a shape mismatch is not fatal
			_ = json.Unmarshal(env.Data, &payload)
		}
		if payload.Message == "" {
			return ConnectError{}, nil
		}
		return ConnectError{Err: errors.New(payload.Message)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// EncodeOutbound renders a widget emission as an envelope frame.
func EncodeOutbound(out Outbound) ([]byte, error) {
	switch ev := out.(type) {
	case UserMessage:
		return Encode(EventMessage, ev.Text)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, out)
	}
}

// DecodeOutbound parses a frame emitted by the widget. Used by the endpoint.
func DecodeOutbound(frame []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Event {
	case EventMessage:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return UserMessage{Text: text}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// EncodeInbound renders an endpoint event as an envelope frame.
func EncodeInbound(in Inbound) ([]byte, error) {
	switch ev := in.(type) {
	case History:
		messages := ev.Messages
		if messages == nil {
			messages = []chat.Message{}
		}
		return Encode(EventChatHistory, messages)
	case BotMessage:
		return Encode(EventBotMessage, ev.Message)
	case ConnectError:
		var payload errorPayload
		if ev.Err != nil {
			payload.Message = ev.Err.Error()
		}
		return Encode(EventConnectError, payload)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, in)
	}
}

// Encode wraps data into an envelope for the named event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
