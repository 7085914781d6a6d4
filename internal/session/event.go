package session

import (
	"fmt"
	"time"

	"github.com/zhouzirui/chatbox/internal/model/chat"
	"github.com/zhouzirui/chatbox/internal/protocol"
)

// Event is anything the reducer reacts to. The set is closed.
type Event interface {
	event()
}

// SubmitDraft commits the current draft at time At.
type SubmitDraft struct {
	At time.Time
}

// EditDraft replaces the uncommitted input.
type EditDraft struct {
	Text string
}

// HistoryReceived replaces the transcript with Messages.
type HistoryReceived struct {
	Messages []chat.Message
}

// BotReplyReceived appends a reply and ends the typing indicator.
type BotReplyReceived struct {
	Message chat.Message
}

// ConnectionErrorReceived appends a system notice stamped with At.
type ConnectionErrorReceived struct {
	At  time.Time
	Err error
}

// ToggleOpen flips the widget between collapsed and expanded.
type ToggleOpen struct{}

// ClearChat empties the transcript without touching the connection.
type ClearChat struct{}

func (SubmitDraft) event()             {}
func (EditDraft) event()               {}
func (HistoryReceived) event()         {}
func (BotReplyReceived) event()        {}
func (ConnectionErrorReceived) event() {}
func (ToggleOpen) event()              {}
func (ClearChat) event()               {}

// FromInbound maps a transport event onto the reducer event it triggers.
func FromInbound(in protocol.Inbound, now time.Time) (Event, error) {
	switch ev := in.(type) {
	case protocol.History:
		return HistoryReceived{Messages: ev.Messages}, nil
	case protocol.BotMessage:
		return BotReplyReceived{Message: ev.Message}, nil
	case protocol.ConnectError:
		return ConnectionErrorReceived{At: now, Err: ev.Err}, nil
	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnknownEvent, in)
	}
}
