package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat/internal/extract"
	"docchat/internal/store"

	"github.com/google/uuid"
)

const embedBatchSize = 32

// State is a step of the ingestion state machine.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateValidating
	StateChunking
	StateIndexing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateValidating:
		return "validating"
	case StateChunking:
		return "chunking"
	case StateIndexing:
		return "embedding and indexing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProgressFunc is called on every state change and, within a state, as
// work items complete.
type ProgressFunc func(state State, done, total int)

// Batch is one upload: any number of documents plus optional free text.
type Batch struct {
	Documents []extract.Document
	Text      string
}

// Result reports the outcome of an ingestion run. It is returned on failure
// too, so a warning about skipped documents is never lost.
type Result struct {
	ID        string
	State     State
	Warning   string
	Skipped   []string
	Documents int
	Chunks    int
	Info      *store.IndexInfo
	Elapsed   time.Duration
}

// Success reports whether the run reached StateDone.
func (r *Result) Success() bool { return r.State == StateDone }

// ValidationError reports a batch with no usable text.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

const (
	msgNoDocumentText = "No readable text found in the uploaded documents."
	msgNoInput        = "Please provide either PDF files or text input."
)

// Ingest extracts, validates, chunks and embeds a batch, then replaces the
// index with the result. Documents that cannot be read are skipped and
// listed in Result.Warning.
func (idx *Indexer) Ingest(ctx context.Context, batch Batch) (*Result, error) {
	start := time.Now()
	res := &Result{ID: uuid.NewString(), State: StateIdle}
	log := slog.With("batch", res.ID)

	fail := func(err error) (*Result, error) {
		res.State = StateFailed
		res.Elapsed = time.Since(start)
		idx.progress(StateFailed, 0, 0)
		log.Error("ingestion failed", "err", err)
		return res, err
	}

	// Extracting
	res.State = StateExtracting
	total := len(batch.Documents)
	var texts []string
	for i, doc := range batch.Documents {
		text, err := idx.extractor.Extract(doc)
		if err != nil {
			log.Warn("skipping document", "name", doc.Name, "err", err)
			res.Skipped = append(res.Skipped, doc.Name)
		} else {
			res.Documents++
			if strings.TrimSpace(text) != "" {
				texts = append(texts, text)
			}
		}
		idx.progress(StateExtracting, i+1, total)
	}
	docText := strings.Join(texts, "\n\n")

	// Validating
	res.State = StateValidating
	idx.progress(StateValidating, 0, 0)
	if len(res.Skipped) > 0 {
		res.Warning = fmt.Sprintf("Skipped %d file(s) due to read errors: %s",
			len(res.Skipped), strings.Join(res.Skipped, ", "))
	}
	freeText := strings.TrimSpace(batch.Text)
	if total > 0 && strings.TrimSpace(docText) == "" && freeText == "" {
		return fail(&ValidationError{Msg: msgNoDocumentText})
	}

	combined := docText
	if freeText != "" {
		if combined != "" {
			combined += "\n\n"
		}
		combined += batch.Text
	}
	if strings.TrimSpace(combined) == "" {
		return fail(&ValidationError{Msg: msgNoInput})
	}

	// Chunking
	res.State = StateChunking
	idx.progress(StateChunking, 0, 0)
	chunks := idx.splitter.Split(combined)
	res.Chunks = len(chunks)
	log.Debug("split text", "chars", len(combined), "chunks", len(chunks))

	// Embedding + indexing
	res.State = StateIndexing
	idx.progress(StateIndexing, 0, len(chunks))
	info, err := idx.Build(ctx, chunks)
	if err != nil {
		return fail(err)
	}
	res.Info = info

	res.State = StateDone
	res.Elapsed = time.Since(start)
	idx.progress(StateDone, res.Chunks, res.Chunks)
	log.Info("ingestion finished",
		"documents", res.Documents,
		"skipped", len(res.Skipped),
		"chunks", res.Chunks,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}
