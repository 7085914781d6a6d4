// Package ui renders the chat widget in the terminal with Bubble Tea.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

var (
	Primary     = lipgloss.Color("#2563EB") // blue-600
	PrimaryDark = lipgloss.Color("#1D4ED8")
	BotBubble   = lipgloss.Color("#E5E7EB") // gray-200
	SystemTint  = lipgloss.Color("#FECACA") // red-200
	Surface     = lipgloss.Color("#F9FAFB")
	Border      = lipgloss.Color("#D1D5DB")
	Muted       = lipgloss.Color("#6B7280")
	Ink         = lipgloss.Color("#111827")
	White       = lipgloss.Color("#FFFFFF")
)

// Styles groups every style the widget draws with.
type Styles struct {
	Toggle    lipgloss.Style
	Panel     lipgloss.Style
	Header    lipgloss.Style
	Title     lipgloss.Style
	Action    lipgloss.Style
	Timestamp lipgloss.Style
	Input     lipgloss.Style
	Send      lipgloss.Style
	bubbles   map[chat.Sender]lipgloss.Style
}

// DefaultStyles mirrors the web widget's palette.
func DefaultStyles() Styles {
	bubble := lipgloss.NewStyle().Padding(0, 1).MarginBottom(1)

	return Styles{
		Toggle: lipgloss.NewStyle().
			Foreground(White).
			Background(Primary).
			Bold(true).
			Padding(0, 3),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border),
		Header: lipgloss.NewStyle().
			Foreground(White).
			Background(Primary).
			Padding(0, 1),
		Title:     lipgloss.NewStyle().Bold(true),
		Action:    lipgloss.NewStyle().Foreground(White),
		Timestamp: lipgloss.NewStyle().Foreground(Muted).Faint(true),
		Input: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(Border),
		Send: lipgloss.NewStyle().
			Foreground(White).
			Background(PrimaryDark).
			Bold(true).
			Padding(0, 1),
		bubbles: map[chat.Sender]lipgloss.Style{
			chat.SenderUser:   bubble.Foreground(White).Background(Primary),
			chat.SenderBot:    bubble.Foreground(Ink).Background(BotBubble),
			chat.SenderSystem: bubble.Foreground(Ink).Background(SystemTint),
		},
	}
}

// Bubble returns the style for a sender. Anything that is neither user nor
// bot is drawn like a system notice.
func (s Styles) Bubble(sender chat.Sender) lipgloss.Style {
	if st, ok := s.bubbles[sender]; ok {
		return st
	}
	return s.bubbles[chat.SenderSystem]
}
