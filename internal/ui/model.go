package ui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/session"
)

const (
	title       = "Chatbot"
	placeholder = "Type your message..."

	panelWidth  = 48
	panelHeight = 22
)

// inboundMsg carries one transport event into the update loop.
type inboundMsg struct {
	event session.Event
}

// sessionEndedMsg stops the listen loop.
type sessionEndedMsg struct {
	err error
}

// Options configures the widget model.
type Options struct {
	Markdown bool
	Styles   *Styles
	Logger   zerolog.Logger
}

// Model is the Bubble Tea model of the widget. All session state lives in
// the Session; the model only keeps view plumbing.
type Model struct {
	ctx      context.Context
	session  *session.Session
	renderer *Renderer
	styles   Styles
	log      zerolog.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
}

// New builds the widget around sess. ctx bounds the listen loop.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	styles := DefaultStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}

	input := textinput.New()
	input.Placeholder = placeholder
	input.Prompt = "› "
	input.CharLimit = 2000

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		ctx:      ctx,
		session:  sess,
		renderer: NewRenderer(styles, opts.Markdown),
		styles:   styles,
		log:      opts.Logger.With().Str("component", "ui").Logger(),
		input:    input,
		viewport: viewport.New(panelWidth-2, panelHeight-6),
		spinner:  sp,
	}
	m.resize(panelWidth, panelHeight)
	if sess.State().Open {
		m.input.Focus()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), m.spinner.Tick, textinput.Blink)
}

// listen waits for the next transport event. It is re-armed after every
// delivered event so events are applied one at a time, in order.
func (m Model) listen() tea.Cmd {
	sess, ctx := m.session, m.ctx
	return func() tea.Msg {
		ev, err := sess.Next(ctx)
		if err != nil {
			return sessionEndedMsg{err: err}
		}
		return inboundMsg{event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case inboundMsg:
		m.session.Dispatch(msg.event)
		m.refresh()
		return m, m.listen()

	case sessionEndedMsg:
		if msg.err != nil && !errors.Is(msg.err, session.ErrClosed) && !errors.Is(msg.err, context.Canceled) {
			m.log.Warn().Err(msg.err).Msg("listen loop ended")
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.session.State().Typing {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		if err := m.session.Close(); err != nil {
			m.log.Warn().Err(err).Msg("close session")
		}
		return m, tea.Quit
	}

	if !m.session.State().Open {
		switch msg.String() {
		case "enter", " ", "c":
			return m.toggle()
		case "q":
			if err := m.session.Close(); err != nil {
				m.log.Warn().Err(err).Msg("close session")
			}
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		return m.toggle()
	case "ctrl+l":
		m.session.Dispatch(session.ClearChat{})
		m.refresh()
		return m, nil
	case "enter":
		m.session.Dispatch(session.EditDraft{Text: m.input.Value()})
		state := m.session.Submit()
		m.input.SetValue(state.Draft)
		m.refresh()
		return m, nil
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.session.Dispatch(session.EditDraft{Text: after})
	}
	return m, cmd
}

func (m Model) toggle() (tea.Model, tea.Cmd) {
	state := m.session.Dispatch(session.ToggleOpen{})
	if !state.Open {
		m.input.Blur()
		return m, nil
	}
	m.refresh()
	return m, m.input.Focus()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	w, h := m.panelSize()
	m.viewport.Width = w - 2
	m.viewport.Height = max(h-6, 1)
	m.input.Width = max(w-14, 4)
}

func (m Model) panelSize() (int, int) {
	w, h := panelWidth, panelHeight
	if m.width > 0 {
		w = min(w, m.width)
	}
	if m.height > 0 {
		h = min(h, m.height)
	}
	return w, h
}

// refresh re-renders the transcript into the viewport and scrolls to the end.
func (m *Model) refresh() {
	state := m.session.State()
	content := m.renderer.Transcript(state.Messages, state.Typing, m.spinner.View(), m.viewport.Width)
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	state := m.session.State()

	var widget string
	if !state.Open {
		widget = m.styles.Toggle.Render("Chat")
	} else {
		widget = m.panelView()
	}

	if m.width == 0 || m.height == 0 {
		return widget
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Right, lipgloss.Bottom, widget)
}

func (m Model) panelView() string {
	w, _ := m.panelSize()
	inner := w - 2

	actions := m.styles.Action.Render("Clear ^L  ✕ Esc")
	titleText := m.styles.Title.Render(title)
	gap := max(inner-2-lipgloss.Width(titleText)-lipgloss.Width(actions), 1)
	header := m.styles.Header.Width(inner).Render(titleText + lipgloss.NewStyle().Width(gap).Render("") + actions)

	send := m.styles.Send.Render("Send")
	inputRow := m.styles.Input.Width(inner).Render(
		lipgloss.JoinHorizontal(lipgloss.Center, m.input.View(), " ", send),
	)

	body := lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), inputRow)
	return m.styles.Panel.Render(body)
}
