package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/zhouzirui/chatbox/internal/model/chat"
	"github.com/zhouzirui/chatbox/internal/protocol"
)

// Reducer applies events to State. Layout controls how local timestamps are
// rendered; empty means chat.DefaultTimeLayout.
type Reducer struct {
	Layout string
}

// Reduce applies ev with the default timestamp layout.
func Reduce(s State, ev Event) (State, []protocol.Outbound) {
	return Reducer{}.Reduce(s, ev)
}

// Reduce returns the state after ev plus the emissions it requires.
// Only SubmitDraft produces an emission.
func (r Reducer) Reduce(s State, ev Event) (State, []protocol.Outbound) {
	switch ev := ev.(type) {
	case SubmitDraft:
		if strings.TrimSpace(s.Draft) == "" {
			return s, nil
		}
		text := s.Draft
		s.Messages = appendMessage(s.Messages, chat.NewMessage(text, chat.SenderUser, ev.At, r.Layout))
		s.Draft = ""
		s.Typing = true
		return s, []protocol.Outbound{protocol.UserMessage{Text: text}}
	case EditDraft:
		s.Draft = ev.Text
	case HistoryReceived:
		s.Messages = slices.Clone(ev.Messages)
		if s.Messages == nil {
			s.Messages = []chat.Message{}
		}
	case BotReplyReceived:
		msg := ev.Message
		if msg.Sender == "" {
			msg.Sender = chat.SenderBot
		}
		s.Typing = false
		s.Messages = appendMessage(s.Messages, msg)
	case ConnectionErrorReceived:
		s.Messages = appendMessage(s.Messages, chat.NewMessage(chat.ConnectionFailedText, chat.SenderSystem, ev.At, r.Layout))
	case ToggleOpen:
		s.Open = !s.Open
	case ClearChat:
		s.Messages = []chat.Message{}
		s.Typing = false
	default:
		panic(fmt.Sprintf("session: unhandled event %T", ev))
	}
	return s, nil
}

// appendMessage never writes into the backing array of msgs, so earlier
// snapshots that share it stay intact.
func appendMessage(msgs []chat.Message, msg chat.Message) []chat.Message {
	out := make([]chat.Message, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, msg)
}
