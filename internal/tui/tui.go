package tui

import (
	"context"

	"docchat/internal/extract"
	"docchat/internal/index"
	"docchat/internal/rag"
	"docchat/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewSetup
	ViewIndexing
	ViewChat
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

// Ingester builds and describes the document index.
type Ingester interface {
	Ingest(ctx context.Context, batch index.Batch) (*index.Result, error)
	Stats() (store.IndexInfo, error)
	SetProgress(fn index.ProgressFunc)
}

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, question string, maxHistory int) (*rag.Answer, error)
}

// History is the stored conversation.
type History interface {
	Read(ctx context.Context, limit int) ([]store.Message, error)
	Clear(ctx context.Context) error
}

// Config holds the components and settings passed from the CLI layer.
type Config struct {
	Indexer        Ingester
	Pipeline       Asker
	History        History
	EmbeddingModel string
	MaxHistory     int
	// Root is the directory offered for document selection.
	Root string
	// Paths are documents named on the command line, processed on start.
	Paths []string

	// program is set internally so background goroutines can send messages.
	program *programRef
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome  welcomeModel
	setup    setupModel
	indexing indexingModel
	chat     chatModel
	err      error
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	return Model{
		state:  ViewWelcome,
		config: cfg,
	}
}

func (m Model) Init() tea.Cmd {
	return checkIndex(m.config)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewChat {
			var c tea.Cmd
			m.chat, c = m.chat.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state == ViewWelcome || (m.state == ViewIndexing && m.indexing.finished) {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		keyMsg, ok := msg.(tea.KeyMsg)
		if !ok || !m.welcome.ready {
			break
		}
		switch {
		case keyMsg.Type == tea.KeyEnter && len(m.config.Paths) > 0:
			paths := m.config.Paths
			m.config.Paths = nil
			return m, m.startIngest(paths, "")
		case keyMsg.Type == tea.KeyEnter && m.welcome.status == indexReady:
			return m, m.transitionToChat()
		case keyMsg.Type == tea.KeyEnter, keyMsg.String() == "p":
			return m, m.transitionToSetup("")
		}

	case ViewSetup:
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			switch keyMsg.Type {
			case tea.KeyEsc:
				m.state = ViewWelcome
				return m, checkIndex(m.config)
			case tea.KeyEnter:
				if !m.setup.loaded {
					return m, nil
				}
				return m, m.startIngest(m.setup.selectedPaths(), m.setup.freeText())
			}
		}
		m.setup, cmd = m.setup.Update(msg)
		return m, cmd

	case ViewIndexing:
		m.indexing, cmd = m.indexing.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.indexing.finished {
			if m.indexing.succeeded() {
				return m, m.transitionToChat()
			}
			notice := ""
			if m.indexing.err != nil {
				notice = m.indexing.err.Error()
			}
			return m, m.transitionToSetup(notice)
		}

	case ViewChat:
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc && m.chat.state == chatIdle {
			m.state = ViewWelcome
			return m, checkIndex(m.config)
		}
		m.chat, cmd = m.chat.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) transitionToSetup(notice string) tea.Cmd {
	m.setup = newSetupModel()
	m.setup.notice = notice
	m.state = ViewSetup
	return fetchDocuments(m.config.Root, extract.New().Extensions())
}

func (m *Model) startIngest(paths []string, text string) tea.Cmd {
	m.state = ViewIndexing
	m.indexing = newIndexingModel()
	return tea.Batch(m.indexing.spinner.Tick, runIngest(m.config, paths, text))
}

func (m *Model) transitionToChat() tea.Cmd {
	m.chat = newChatModel(m.config)
	m.chat.initViewport(m.width, m.height)
	m.state = ViewChat
	return loadHistory(m.config.History)
}

func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render("Error: "+m.err.Error()) + "\n"
	}

	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.width, m.height, len(m.config.Paths))
	case ViewSetup:
		return m.setup.View(m.width, m.height)
	case ViewIndexing:
		return m.indexing.View(m.width, m.height)
	case ViewChat:
		return m.chat.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program.
func Run(cfg Config) error {
	ref := &programRef{}
	cfg.program = ref
	model := New(cfg)
	p := tea.NewProgram(model, tea.WithAltScreen())
	ref.p = p
	_, err := p.Run()
	return err
}
