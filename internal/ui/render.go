package ui

import (
	"html"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/microcosm-cc/bluemonday"

	"github.com/zhouzirui/chatbox/internal/model/chat"
)

const typingText = "Typing..."

// markdownPolicy drops raw HTML embedded in markdown replies; the terminal
// renderer cannot draw it.
var markdownPolicy = bluemonday.StrictPolicy()

// displayText returns text as written, minus terminal escape sequences and
// control characters other than newline and tab.
func displayText(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(text))
}

// markdownSource prepares a bot reply for glamour.
func markdownSource(text string) string {
	return html.UnescapeString(markdownPolicy.Sanitize(text))
}

// Renderer turns transcript entries into styled blocks of a given width.
type Renderer struct {
	styles   Styles
	markdown bool
	md       *glamour.TermRenderer
	mdWidth  int
}

// NewRenderer returns a Renderer. With markdown set, bot replies are rendered
// through glamour.
func NewRenderer(styles Styles, markdown bool) *Renderer {
	return &Renderer{styles: styles, markdown: markdown}
}

// Transcript renders all messages followed by the typing placeholder when
// typing is true. width is the inner width of the message list.
func (r *Renderer) Transcript(messages []chat.Message, typing bool, spinnerFrame string, width int) string {
	if width < 8 {
		width = 8
	}
	blocks := make([]string, 0, len(messages)+1)
	for _, msg := range messages {
		blocks = append(blocks, r.Message(msg, width))
	}
	if typing {
		bubble := r.styles.Bubble(chat.SenderBot).Render(strings.TrimSpace(spinnerFrame + " " + typingText))
		blocks = append(blocks, lipgloss.PlaceHorizontal(width, lipgloss.Left, bubble))
	}
	return strings.Join(blocks, "\n")
}

// Message renders one entry as a bubble at most 80% of width, right aligned
// for the user and left aligned otherwise.
func (r *Renderer) Message(msg chat.Message, width int) string {
	maxWidth := width * 4 / 5
	if maxWidth < 4 {
		maxWidth = width
	}

	body := r.body(msg, maxWidth-2)
	if msg.Timestamp != "" {
		body += "\n" + r.styles.Timestamp.Render(msg.Timestamp)
	}

	style := r.styles.Bubble(msg.Sender)
	rendered := style.Render(lipgloss.NewStyle().MaxWidth(maxWidth - 2).Width(min(lipgloss.Width(body), maxWidth-2)).Render(body))

	align := lipgloss.Left
	if msg.Sender == chat.SenderUser {
		align = lipgloss.Right
	}
	return lipgloss.PlaceHorizontal(width, align, rendered)
}

func (r *Renderer) body(msg chat.Message, width int) string {
	text := displayText(msg.Text)
	if r.markdown && msg.Sender == chat.SenderBot {
		if out, err := r.renderMarkdown(markdownSource(text), width); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return text
}

func (r *Renderer) renderMarkdown(text string, width int) (string, error) {
	if r.md == nil || r.mdWidth != width {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", err
		}
		r.md, r.mdWidth = md, width
	}
	return r.md.Render(text)
}
