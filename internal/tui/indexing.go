package tui

import (
	"context"
	"fmt"

	"docchat/internal/extract"
	"docchat/internal/index"
	"docchat/internal/walker"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type indexingModel struct {
	spinner spinner.Model
	phase   string
	done    int
	total   int
	// finished is true once the ingestion call returned.
	finished bool
	result   *index.Result
	err      error
}

func newIndexingModel() indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return indexingModel{
		spinner: sp,
		phase:   "Reading documents...",
	}
}

// indexDoneMsg is sent when ingestion completes.
type indexDoneMsg struct {
	result *index.Result
	err    error
}

// indexProgressMsg is sent as the ingestion pipeline advances.
type indexProgressMsg struct {
	state index.State
	done  int
	total int
}

func runIngest(cfg Config, paths []string, text string) tea.Cmd {
	return func() tea.Msg {
		files, err := walker.Collect(paths, extract.New().Extensions())
		if err != nil {
			return indexDoneMsg{err: err}
		}

		cfg.Indexer.SetProgress(func(state index.State, done, total int) {
			if cfg.program != nil && cfg.program.p != nil {
				cfg.program.p.Send(indexProgressMsg{state: state, done: done, total: total})
			}
		})
		defer cfg.Indexer.SetProgress(nil)

		res, err := cfg.Indexer.Ingest(context.Background(), index.Batch{
			Documents: extract.ReadFiles(files),
			Text:      text,
		})
		return indexDoneMsg{result: res, err: err}
	}
}

func (m indexingModel) Update(msg tea.Msg) (indexingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case indexDoneMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, nil
	case indexProgressMsg:
		m.phase = phaseLabel(msg.state)
		m.done = msg.done
		m.total = msg.total
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func phaseLabel(s index.State) string {
	switch s {
	case index.StateExtracting:
		return "Reading documents..."
	case index.StateValidating:
		return "Checking input..."
	case index.StateChunking:
		return "Splitting text into chunks..."
	case index.StateIndexing:
		return "Embedding chunks..."
	}
	return s.String()
}

// succeeded reports whether the batch produced a new index.
func (m indexingModel) succeeded() bool {
	return m.finished && m.err == nil && m.result != nil && m.result.Success()
}

func (m indexingModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Processing Documents") + "\n\n"

	if m.finished {
		if m.result != nil && m.result.Warning != "" {
			s += warnStyle.Render("  ⚠ "+m.result.Warning) + "\n\n"
		}
		if !m.succeeded() {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to choose documents again, or q to quit.") + "\n"
			return s
		}
		s += successStyle.Render("  ✓ Documents processed successfully!") + "\n\n"
		s += fmt.Sprintf("  Documents: %d read, %d skipped\n", m.result.Documents, len(m.result.Skipped))
		s += fmt.Sprintf("  Chunks:    %d\n", m.result.Chunks)
		s += "\n"
		s += dimStyle.Render("  Press Enter to start chatting") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s %s\n", m.spinner.View(), m.phase)
	if m.total > 0 {
		s += fmt.Sprintf("  %d / %d\n", m.done, m.total)
	}
	s += "\n"
	s += dimStyle.Render("  Large PDFs may take a while to embed...") + "\n"
	return s
}
