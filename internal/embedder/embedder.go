// Package embedder maps text to fixed-length vectors.
package embedder

import (
	"context"
	"fmt"
	"sync"
)

// Embedder turns text into embedding vectors. Implementations must return
// vectors of one dimensionality for a given model.
type Embedder interface {
	// Embed embeds a batch of texts. The result has the same length and order
	// as the input.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle embeds one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Model returns the model identifier vectors are produced with.
	Model() string
}

// Lazy defers construction of an Embedder until its first use and then
// reuses it for the life of the process. A construction error is kept and
// returned on every later call.
type Lazy struct {
	model string
	newFn func() (Embedder, error)

	once sync.Once
	emb  Embedder
	err  error
}

// NewLazy returns a Lazy embedder for model built by newFn on first use.
func NewLazy(model string, newFn func() (Embedder, error)) *Lazy {
	return &Lazy{model: model, newFn: newFn}
}

func (l *Lazy) get() (Embedder, error) {
	l.once.Do(func() {
		l.emb, l.err = l.newFn()
		if l.err != nil {
			l.err = fmt.Errorf("initialize embedder %q: %w", l.model, l.err)
		}
	})
	return l.emb, l.err
}

func (l *Lazy) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, texts)
}

func (l *Lazy) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, err
	}
	return e.EmbedSingle(ctx, text)
}

// Model returns the configured model without forcing initialization.
func (l *Lazy) Model() string { return l.model }

func single(ctx context.Context, e Embedder, text string) ([]float32, error) {
	results, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
