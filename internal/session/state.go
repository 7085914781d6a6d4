// Package session holds the widget's conversation state and the reducer that
// advances it in response to local intents and transport events.
package session

import "github.com/zhouzirui/chatbox/internal/model/chat"

// State is a snapshot of the widget. Values are never mutated in place by Reduce.
type State struct {
	Messages []chat.Message
	Open     bool
	Typing   bool
	Draft    string
}

// NewState returns the state of a freshly mounted widget.
func NewState() State {
	return State{Messages: []chat.Message{}}
}
