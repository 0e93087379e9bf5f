package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type setupFocus int

const (
	focusFiles setupFocus = iota
	focusText
)

// setupModel picks the documents and free text for an ingestion batch.
type setupModel struct {
	files    []documentFile
	selected map[int]bool
	cursor   int
	focus    setupFocus
	text     textinput.Model
	loaded   bool
	err      error
	notice   string
}

// listDocumentsMsg is sent when the working directory has been scanned.
type listDocumentsMsg struct {
	files []documentFile
	err   error
}

func fetchDocuments(root string, exts map[string]bool) tea.Cmd {
	return func() tea.Msg {
		files, err := listDocuments(root, exts)
		return listDocumentsMsg{files: files, err: err}
	}
}

func newSetupModel() setupModel {
	ti := textinput.New()
	ti.Placeholder = "Optional: paste text to index alongside the files..."
	ti.CharLimit = 100000
	return setupModel{selected: make(map[int]bool), text: ti}
}

func (m setupModel) Update(msg tea.Msg) (setupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case listDocumentsMsg:
		m.loaded = true
		m.files = msg.files
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if !m.loaded {
			return m, nil
		}
		if msg.Type == tea.KeyTab {
			if m.focus == focusFiles {
				m.focus = focusText
				cmd := m.text.Focus()
				return m, cmd
			}
			m.focus = focusFiles
			m.text.Blur()
			return m, nil
		}
		if m.focus == focusText {
			var cmd tea.Cmd
			m.text, cmd = m.text.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.files)-1 {
				m.cursor++
			}
		case " ", "x":
			if len(m.files) > 0 {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
		case "a":
			all := len(m.selectedPaths()) < len(m.files)
			for i := range m.files {
				m.selected[i] = all
			}
		}
	}
	return m, nil
}

// selectedPaths returns the chosen files in list order.
func (m setupModel) selectedPaths() []string {
	var out []string
	for i, f := range m.files {
		if m.selected[i] {
			out = append(out, f.Path)
		}
	}
	return out
}

// freeText returns the text typed into the free text field.
func (m setupModel) freeText() string {
	return m.text.Value()
}

func (m setupModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Process Documents") + "\n"
	s += dimStyle.Render("  Choose files from the current directory and/or add free text") + "\n\n"

	if !m.loaded {
		s += dimStyle.Render("  Looking for documents...") + "\n"
		return s
	}
	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
	}
	if m.notice != "" {
		s += warnStyle.Render("  "+m.notice) + "\n\n"
	}

	if len(m.files) == 0 {
		s += warnStyle.Render("  No PDF, text or markdown files found here.") + "\n"
	}

	// Keep the cursor visible on small terminals.
	visible := max(height-14, 5)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.files))
	for i := start; i < end; i++ {
		f := m.files[i]
		cursor := "  "
		style := listItemStyle
		if i == m.cursor && m.focus == focusFiles {
			cursor = "▸ "
			style = selectedStyle
		}
		box := dimStyle.Render("[ ]")
		if m.selected[i] {
			box = checkedStyle.Render("[x]")
		}
		s += fmt.Sprintf("  %s%s %s\n", cursor, box, style.Render(fmt.Sprintf("%s (%s)", f.RelPath, formatSize(f.Size))))
	}
	if end < len(m.files) {
		s += dimStyle.Render(fmt.Sprintf("    ... %d more", len(m.files)-end)) + "\n"
	}

	s += "\n  " + m.text.View() + "\n\n"

	n := len(m.selectedPaths())
	status := fmt.Sprintf("%d file(s) selected", n)
	if strings.TrimSpace(m.freeText()) != "" {
		status += " + free text"
	}
	s += dimStyle.Render("  "+status) + "\n"
	s += helpStyle.Render("  ↑/↓ navigate • space select • a all • tab text • Enter process • esc back") + "\n"
	return s
}
