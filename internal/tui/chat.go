package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"docchat/internal/rag"
	"docchat/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type chatState int

const (
	chatIdle chatState = iota
	chatThinking
)

// historyLimit caps how many stored messages the chat view shows.
const historyLimit = 200

type chatModel struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	cfg         Config
	stored      []store.Message
	notes       []chatNote
	pending     string
	maxHistory  int
	state       chatState
	width       int
	height      int
	initialized bool
}

// chatNote is a transient line shown below the stored conversation.
type chatNote struct {
	kind    string // "error" or "system"
	content string
}

// answerMsg is sent when a question has been answered.
type answerMsg struct {
	answer *rag.Answer
	err    error
}

// historyMsg carries the conversation as currently stored.
type historyMsg struct {
	messages []store.Message
	err      error
}

// clearedMsg is sent after the stored conversation was deleted.
type clearedMsg struct {
	err error
}

func newChatModel(cfg Config) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		spinner:    sp,
		input:      ti,
		cfg:        cfg,
		maxHistory: rag.ClampHistory(cfg.MaxHistory),
		state:      chatIdle,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + gap (1 line).
	vpHeight := max(height-3, 5)
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(m.renderMessages())

	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func loadHistory(h History) tea.Cmd {
	return func() tea.Msg {
		msgs, err := h.Read(context.Background(), historyLimit)
		return historyMsg{messages: msgs, err: err}
	}
}

func clearHistory(h History) tea.Cmd {
	return func() tea.Msg {
		return clearedMsg{err: h.Clear(context.Background())}
	}
}

func askQuestion(a Asker, question string, maxHistory int) tea.Cmd {
	return func() tea.Msg {
		ans, err := a.Ask(context.Background(), question, maxHistory)
		return answerMsg{answer: ans, err: err}
	}
}

// errorText turns pipeline errors into messages for the user.
func errorText(err error) string {
	var serr *rag.SynthesisError
	switch {
	case errors.Is(err, store.ErrIndexNotFound):
		return "No documents have been processed yet. Restart with documents or press esc to go back."
	case errors.As(err, &serr):
		return fmt.Sprintf("The language model failed: %v", serr.Err)
	}
	return err.Error()
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.notes = append(m.notes, chatNote{kind: "error", content: msg.err.Error()})
		} else {
			m.stored = msg.messages
		}
		m.refresh()
		return m, nil

	case answerMsg:
		m.state = chatIdle
		m.pending = ""
		if msg.err != nil {
			m.notes = append(m.notes, chatNote{kind: "error", content: errorText(msg.err)})
		}
		m.refresh()
		// The store holds the new exchange; show it from there.
		return m, loadHistory(m.cfg.History)

	case clearedMsg:
		if msg.err != nil {
			m.notes = append(m.notes, chatNote{kind: "error", content: msg.err.Error()})
			m.refresh()
			return m, nil
		}
		m.notes = []chatNote{{kind: "system", content: "Conversation cleared."}}
		return m, loadHistory(m.cfg.History)

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.state != chatIdle {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(line, "/") {
				return m.command(line)
			}

			m.notes = nil
			m.pending = line
			m.state = chatThinking
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, askQuestion(m.cfg.Pipeline, line, m.maxHistory))
		}
	}

	if m.state == chatIdle {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) command(line string) (chatModel, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/clear":
		return m, clearHistory(m.cfg.History)
	case "/history":
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				m.notes = append(m.notes, chatNote{kind: "error", content: "usage: /history N (1-20)"})
				break
			}
			m.maxHistory = rag.ClampHistory(n)
		}
		m.notes = append(m.notes, chatNote{kind: "system",
			content: fmt.Sprintf("Using the last %d exchange(s) as memory.", m.maxHistory)})
	case "/help":
		m.notes = append(m.notes, chatNote{kind: "system", content: "Commands:\n" +
			"  /clear      - delete the stored conversation\n" +
			"  /history N  - remember the last N exchanges (1-20)\n" +
			"  /exit       - quit\n" +
			"  /help       - show this help"})
	default:
		m.notes = append(m.notes, chatNote{kind: "error", content: "unknown command " + fields[0]})
	}
	m.refresh()
	return m, nil
}

func (m *chatModel) refresh() {
	if !m.initialized {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	if len(m.stored) == 0 && len(m.notes) == 0 && m.pending == "" {
		return dimStyle.Render("Ask a question about your documents.\n\nCommands: /help, /clear, /history N, /exit")
	}

	var sb strings.Builder
	for _, msg := range m.stored {
		switch msg.Role {
		case store.RoleUser:
			sb.WriteString(userMsgStyle.Render("You: ") + msg.Content + "\n\n")
		case store.RoleAssistant:
			sb.WriteString(m.renderMarkdown(msg.Content) + "\n\n")
		}
	}
	if m.pending != "" {
		sb.WriteString(userMsgStyle.Render("You: ") + m.pending + "\n\n")
	}
	for _, n := range m.notes {
		switch n.kind {
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+n.content) + "\n\n")
		default:
			sb.WriteString(dimStyle.Render(n.content) + "\n\n")
		}
	}

	if m.state != chatIdle {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Thinking...") + "\n")
	}
	return sb.String()
}

func (m chatModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	if m.state == chatThinking {
		statusText = "thinking..."
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" docchat • %s • memory: %d exchange(s) • %d stored message(s)",
			statusText, m.maxHistory, len(m.stored)))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
