package tui

import (
	"errors"
	"fmt"

	"docchat/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

type indexStatus int

const (
	indexNotFound indexStatus = iota
	indexReady
	indexStale
)

type welcomeModel struct {
	status      indexStatus
	staleReason string
	info        store.IndexInfo
	err         error
	ready       bool // true once the check has completed
}

// checkIndexMsg is sent after checking the index status.
type checkIndexMsg struct {
	status      indexStatus
	staleReason string
	info        store.IndexInfo
	err         error
}

func checkIndex(cfg Config) tea.Cmd {
	return func() tea.Msg {
		info, err := cfg.Indexer.Stats()
		if errors.Is(err, store.ErrIndexNotFound) {
			return checkIndexMsg{status: indexNotFound}
		}
		if err != nil {
			return checkIndexMsg{status: indexNotFound, err: err}
		}
		if info.Model != cfg.EmbeddingModel {
			return checkIndexMsg{
				status:      indexStale,
				info:        info,
				staleReason: fmt.Sprintf("embedding model changed: %s → %s", info.Model, cfg.EmbeddingModel),
			}
		}
		return checkIndexMsg{status: indexReady, info: info}
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkIndexMsg:
		m.status = msg.status
		m.staleReason = msg.staleReason
		m.info = msg.info
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(width, height int, pending int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ docchat") + "\n"
	s += subtitleStyle.Render("  Ask questions about your documents") + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking index...") + "\n"
		return s
	}

	switch m.status {
	case indexReady:
		s += successStyle.Render(fmt.Sprintf("  ✓ Index ready: %d chunks", m.info.ChunkCount)) + "\n"
		if !m.info.BuiltAt.IsZero() {
			s += dimStyle.Render("    built "+m.info.BuiltAt.Local().Format("2006-01-02 15:04")) + "\n"
		}
	case indexNotFound:
		s += warnStyle.Render("  ✗ No documents processed yet") + "\n"
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("    %v", m.err)) + "\n"
		}
	case indexStale:
		s += warnStyle.Render("  ⚠ Index needs rebuilding") + "\n"
		s += dimStyle.Render("    "+m.staleReason) + "\n"
	}

	s += "\n"
	switch {
	case pending > 0:
		s += dimStyle.Render(fmt.Sprintf("  Press Enter to process %d path(s) from the command line", pending)) + "\n"
	case m.status == indexReady:
		s += dimStyle.Render("  Press Enter to start chatting, p to process new documents") + "\n"
	default:
		s += dimStyle.Render("  Press Enter to choose documents") + "\n"
	}
	return s
}
