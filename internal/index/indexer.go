package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"docchat/internal/chunker"
	"docchat/internal/embedder"
	"docchat/internal/extract"
	"docchat/internal/store"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultK is the number of chunks returned when a search asks for k <= 0.
	DefaultK = 4
	// DefaultWorkers is the default number of concurrent embedding calls.
	DefaultWorkers = 4
)

// ErrModelMismatch is returned when the index was built with a different
// embedding model than the one configured for queries.
var ErrModelMismatch = errors.New("document index was built with a different embedding model: process documents again")

// Config holds the indexer configuration.
type Config struct {
	IndexPath    string
	ChunkSize    int
	ChunkOverlap int
	// Workers is the number of embedding batches in flight at once.
	Workers    int
	OnProgress ProgressFunc
}

// Indexer owns the vector index: it builds it from documents and answers
// similarity searches against it. Ingestion and search share one Embedder
// so query vectors live in the same space as chunk vectors.
type Indexer struct {
	path      string
	embedder  embedder.Embedder
	splitter  *chunker.Splitter
	extractor *extract.Extractor
	workers   int

	progressMu sync.Mutex
	onProgress ProgressFunc

	mu        sync.Mutex
	cached    *store.VectorIndex
	cachedMod time.Time
}

// New creates a new Indexer with the given configuration.
func New(cfg Config, emb embedder.Embedder) (*Indexer, error) {
	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size == 0 {
		size = chunker.DefaultSize
	}
	splitter, err := chunker.NewSplitter(size, overlap)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Indexer{
		path:       cfg.IndexPath,
		embedder:   emb,
		splitter:   splitter,
		extractor:  extract.New(),
		workers:    workers,
		onProgress: cfg.OnProgress,
	}, nil
}

// Path returns the index file location.
func (idx *Indexer) Path() string { return idx.path }

// Extractor returns the document extractor used during ingestion.
func (idx *Indexer) Extractor() *extract.Extractor { return idx.extractor }

// SetProgress replaces the progress callback.
func (idx *Indexer) SetProgress(fn ProgressFunc) {
	idx.progressMu.Lock()
	idx.onProgress = fn
	idx.progressMu.Unlock()
}

// Build embeds chunks and replaces the index with them.
func (idx *Indexer) Build(ctx context.Context, chunks []chunker.Chunk) (*store.IndexInfo, error) {
	texts := chunker.Texts(chunks)
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	embedded := 0 // guarded by progressMu
	for i := 0; i < len(texts); i += embedBatchSize {
		start, end := i, min(i+embedBatchSize, len(texts))
		g.Go(func() error {
			embs, err := idx.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(embs) != end-start {
				return fmt.Errorf("expected %d embeddings, got %d", end-start, len(embs))
			}
			copy(vectors[start:end], embs)

			idx.progressMu.Lock()
			defer idx.progressMu.Unlock()
			embedded += end - start
			idx.reportLocked(StateIndexing, embedded, len(texts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	stored := make([]store.Chunk, len(chunks))
	for i, c := range chunks {
		stored[i] = store.Chunk{Offset: c.Offset, Content: c.Text}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	info, err := store.BuildIndex(ctx, idx.path, store.IndexSpec{
		Model:   idx.embedder.Model(),
		Chunks:  stored,
		Vectors: vectors,
	})
	if err != nil {
		return nil, fmt.Errorf("storage failed: %w", err)
	}
	idx.dropCachedLocked()
	return info, nil
}

// Load returns the current index, reopening it when the file has been
// replaced since the last call. It returns store.ErrIndexNotFound when no
// index has been built yet. The handle is closed by the next rebuild.
func (idx *Indexer) Load() (*store.VectorIndex, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.loadLocked()
}

func (idx *Indexer) loadLocked() (*store.VectorIndex, error) {
	st, err := os.Stat(idx.path)
	if err != nil {
		idx.dropCachedLocked()
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w (%s)", store.ErrIndexNotFound, idx.path)
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}
	if idx.cached != nil && st.ModTime().Equal(idx.cachedMod) {
		return idx.cached, nil
	}

	idx.dropCachedLocked()
	vi, err := store.OpenIndex(idx.path)
	if err != nil {
		return nil, err
	}
	idx.cached = vi
	idx.cachedMod = st.ModTime()
	return vi, nil
}

func (idx *Indexer) checkModel(vi *store.VectorIndex) error {
	if m := vi.Info().Model; m != "" && m != idx.embedder.Model() {
		return fmt.Errorf("%w (index: %s, configured: %s)", ErrModelMismatch, m, idx.embedder.Model())
	}
	return nil
}

// Search embeds the query and returns the k most similar chunks, most
// similar first. k <= 0 selects DefaultK.
func (idx *Indexer) Search(ctx context.Context, query string, k int) ([]store.SearchResult, error) {
	if k <= 0 {
		k = DefaultK
	}
	// Fail fast on a missing or stale index before calling the embedder.
	vi, err := idx.Load()
	if err != nil {
		return nil, err
	}
	if err := idx.checkModel(vi); err != nil {
		return nil, err
	}

	vec, err := idx.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// A rebuild may have replaced the index while the query was embedded.
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if vi, err = idx.loadLocked(); err != nil {
		return nil, err
	}
	if err := idx.checkModel(vi); err != nil {
		return nil, err
	}
	results, err := vi.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// Stats returns the metadata of the current index.
func (idx *Indexer) Stats() (store.IndexInfo, error) {
	vi, err := idx.Load()
	if err != nil {
		return store.IndexInfo{}, err
	}
	return vi.Info(), nil
}

// Close releases the cached index handle.
func (idx *Indexer) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.dropCachedLocked()
}

func (idx *Indexer) dropCachedLocked() error {
	if idx.cached == nil {
		return nil
	}
	err := idx.cached.Close()
	idx.cached = nil
	idx.cachedMod = time.Time{}
	return err
}

// progress reports to the callback, one call at a time.
func (idx *Indexer) progress(state State, done, total int) {
	idx.progressMu.Lock()
	defer idx.progressMu.Unlock()
	idx.reportLocked(state, done, total)
}

func (idx *Indexer) reportLocked(state State, done, total int) {
	if idx.onProgress != nil {
		idx.onProgress(state, done, total)
	}
}
