package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode"

	"docchat/internal/chunker"
	"docchat/internal/extract"
	"docchat/internal/store"
)

// vocabEmbedder counts known words, one dimension each, plus a bucket for
// every other word.
type vocabEmbedder struct {
	model string
	vocab []string
	err   error

	mu    sync.Mutex
	calls int
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{
		model: "vocab",
		vocab: []string{"q3", "revenue", "was", "cat", "biscuit", "sleeps", "sun", "office"},
	}
}

func (v *vocabEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(v.vocab)+1)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		idx := len(v.vocab)
		for i, known := range v.vocab {
			if w == known {
				idx = i
				break
			}
		}
		vec[idx]++
	}
	return vec
}

func (v *vocabEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = v.vector(t)
	}
	return out, nil
}

func (v *vocabEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := v.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (v *vocabEmbedder) Model() string { return v.model }

func newTestIndexer(t *testing.T, emb *vocabEmbedder, size, overlap int) *Indexer {
	t.Helper()
	idx, err := New(Config{
		IndexPath:    filepath.Join(t.TempDir(), "storage", "index.db"),
		ChunkSize:    size,
		ChunkOverlap: overlap,
	}, emb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func textDoc(name, content string) extract.Document {
	return extract.Document{Name: name, Data: strings.NewReader(content)}
}

func TestSearch_BeforeIngest(t *testing.T) {
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)
	_, err := idx.Search(context.Background(), "What was Q3 revenue?", 4)
	if !errors.Is(err, store.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIngest_RetrievesRelevantChunk(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndexer(t, newVocabEmbedder(), 40, 5)

	res, err := idx.Ingest(ctx, Batch{
		Documents: []extract.Document{
			textDoc("notes.txt", "Our office cat is named Biscuit. She sleeps all day in the sun."),
		},
		Text: "The Q3 revenue was $5M.",
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !res.Success() || res.Chunks < 2 || res.Warning != "" {
		t.Fatalf("unexpected result %+v", res)
	}

	results, err := idx.Search(ctx, "What was Q3 revenue?", 4)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if !strings.Contains(results[0].Chunk.Content, "The Q3 revenue was $5M.") {
		t.Errorf("top result does not contain the revenue sentence: %q", results[0].Chunk.Content)
	}
	if len(results) > 4 {
		t.Errorf("expected at most 4 results, got %d", len(results))
	}
}

func TestIngest_AllDocumentsFailWithFreeText(t *testing.T) {
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)

	res, err := idx.Ingest(context.Background(), Batch{
		Documents: []extract.Document{
			textDoc("a.pdf", "not a pdf"),
			textDoc("b.pdf", "also not a pdf"),
		},
		Text: "The Q3 revenue was $5M.",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected StateDone, got %v", res.State)
	}
	want := "Skipped 2 file(s) due to read errors: a.pdf, b.pdf"
	if res.Warning != want {
		t.Errorf("warning = %q, want %q", res.Warning, want)
	}
	if len(res.Skipped) != 2 {
		t.Errorf("expected 2 skipped documents, got %v", res.Skipped)
	}
}

func TestIngest_AllDocumentsFailWithoutText(t *testing.T) {
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)

	res, err := idx.Ingest(context.Background(), Batch{
		Documents: []extract.Document{textDoc("a.pdf", "garbage")},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Msg != msgNoDocumentText {
		t.Errorf("unexpected message %q", verr.Msg)
	}
	if res == nil || res.State != StateFailed || res.Warning == "" {
		t.Errorf("failed result should carry the warning: %+v", res)
	}
	if _, err := idx.Search(context.Background(), "x", 1); !errors.Is(err, store.ErrIndexNotFound) {
		t.Errorf("failed ingestion must not create an index, got %v", err)
	}
}

func TestIngest_NoInput(t *testing.T) {
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)

	_, err := idx.Ingest(context.Background(), Batch{Text: "   \n"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Msg != msgNoInput {
		t.Fatalf("expected no-input ValidationError, got %v", err)
	}
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	emb := newVocabEmbedder()
	emb.err = errors.New("model unavailable")
	idx := newTestIndexer(t, emb, 100, 10)

	res, err := idx.Ingest(context.Background(), Batch{Text: "some text"})
	if err == nil || !errors.Is(err, emb.err) {
		t.Fatalf("expected embedding error, got %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("expected StateFailed, got %v", res.State)
	}
	if emb.calls != 1 {
		t.Errorf("embedding failure was retried: %d calls", emb.calls)
	}
}

func TestIngest_ReportsStates(t *testing.T) {
	var states []State
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)
	idx.SetProgress(func(s State, done, total int) {
		if len(states) == 0 || states[len(states)-1] != s {
			states = append(states, s)
		}
	})

	_, err := idx.Ingest(context.Background(), Batch{
		Documents: []extract.Document{textDoc("a.txt", "alpha")},
		Text:      "beta",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []State{StateExtracting, StateValidating, StateChunking, StateIndexing, StateDone}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d = %v, want %v", i, states[i], want[i])
		}
	}
}

func TestIngest_ReplacesIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndexer(t, newVocabEmbedder(), 100, 10)

	if _, err := idx.Ingest(ctx, Batch{Text: "Our office cat is named Biscuit."}); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Search(ctx, "cat", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Ingest(ctx, Batch{Text: "The Q3 revenue was $5M."}); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(ctx, "cat", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Chunk.Content, "$5M") {
		t.Errorf("expected only the new content, got %+v", results)
	}
	stats, err := idx.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.ChunkCount != 1 || stats.Model != "vocab" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// gatedEmbedder blocks query embedding until release is closed.
type gatedEmbedder struct {
	*vocabEmbedder
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	close(g.entered)
	<-g.release
	return g.vocabEmbedder.EmbedSingle(ctx, text)
}

func TestSearch_RebuildDuringQueryEmbedding(t *testing.T) {
	ctx := context.Background()
	emb := &gatedEmbedder{
		vocabEmbedder: newVocabEmbedder(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	idx, err := New(Config{
		IndexPath:    filepath.Join(t.TempDir(), "index.db"),
		ChunkSize:    100,
		ChunkOverlap: 10,
	}, emb)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	if _, err := idx.Ingest(ctx, Batch{Text: "Our office cat is named Biscuit."}); err != nil {
		t.Fatal(err)
	}

	type outcome struct {
		results []store.SearchResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := idx.Search(ctx, "Q3 revenue", 1)
		done <- outcome{r, err}
	}()

	<-emb.entered
	if _, err := idx.Ingest(ctx, Batch{Text: "The Q3 revenue was $5M."}); err != nil {
		t.Fatal(err)
	}
	close(emb.release)

	got := <-done
	if got.err != nil {
		t.Fatalf("search across a rebuild failed: %v", got.err)
	}
	if len(got.results) != 1 || !strings.Contains(got.results[0].Chunk.Content, "$5M") {
		t.Errorf("expected the rebuilt content, got %+v", got.results)
	}
}

func TestSearch_ModelMismatch(t *testing.T) {
	ctx := context.Background()
	emb := newVocabEmbedder()
	idx := newTestIndexer(t, emb, 100, 10)

	if _, err := idx.Ingest(ctx, Batch{Text: "The Q3 revenue was $5M."}); err != nil {
		t.Fatal(err)
	}
	emb.model = "other"
	if _, err := idx.Search(ctx, "revenue", 1); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestStateString(t *testing.T) {
	if StateIndexing.String() != "embedding and indexing" || StateDone.String() != "done" {
		t.Error("unexpected state names")
	}
}

// ordinalEmbedder maps "item-N" to the vector (N, 1).
type ordinalEmbedder struct{}

func (ordinalEmbedder) vector(text string) []float32 {
	var n int
	fmt.Sscanf(strings.TrimSpace(text), "item-%d", &n)
	return []float32{float32(n), 1}
}

func (o ordinalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = o.vector(t)
	}
	return out, nil
}

func (o ordinalEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return o.vector(text), nil
}

func (ordinalEmbedder) Model() string { return "ordinal" }

func TestBuild_ConcurrentBatchesKeepOrder(t *testing.T) {
	idx, err := New(Config{
		IndexPath: filepath.Join(t.TempDir(), "index.db"),
		Workers:   3,
	}, ordinalEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	var (
		mu   sync.Mutex
		last int
	)
	idx.SetProgress(func(s State, done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if done < last {
			t.Errorf("progress went backwards: %d after %d", done, last)
		}
		last = done
	})

	const n = 150
	chunks := make([]chunker.Chunk, n)
	for i := range chunks {
		chunks[i] = chunker.Chunk{Text: fmt.Sprintf("item-%d", i), Offset: i * 10}
	}
	info, err := idx.Build(context.Background(), chunks)
	if err != nil {
		t.Fatal(err)
	}
	if info.ChunkCount != n || last != n {
		t.Errorf("chunk count %d, progress %d, want %d", info.ChunkCount, last, n)
	}

	for _, want := range []int{0, 31, 32, 97, 149} {
		results, err := idx.Search(context.Background(), fmt.Sprintf("item-%d", want), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].Chunk.Content != fmt.Sprintf("item-%d", want) {
			t.Errorf("search item-%d returned %+v", want, results)
		}
		if results[0].Chunk.Offset != want*10 {
			t.Errorf("item-%d offset = %d", want, results[0].Chunk.Offset)
		}
	}
}
