package cmd

import (
	"fmt"

	"docchat/internal/config"
	"docchat/internal/embedder"
	"docchat/internal/index"
	"docchat/internal/llm"
	"docchat/internal/rag"
	"docchat/internal/store"
)

// app holds the long-lived components shared by ingestion and querying.
type app struct {
	cfg      *config.Config
	indexer  *index.Indexer
	convos   *store.Conversations
	pipeline *rag.Pipeline
}

func newApp(c *config.Config) (*app, error) {
	emb := newEmbedder(c.Embedding)

	idx, err := index.New(index.Config{
		IndexPath:    c.Storage.IndexPath,
		ChunkSize:    c.Chunker.Size,
		ChunkOverlap: c.Chunker.Overlap,
		Workers:      c.Embedding.Workers,
	}, emb)
	if err != nil {
		return nil, err
	}

	chat, err := newChat(c.LLM)
	if err != nil {
		return nil, err
	}

	convos := store.NewConversations(c.Storage.DatabasePath)
	return &app{
		cfg:      c,
		indexer:  idx,
		convos:   convos,
		pipeline: rag.NewPipeline(idx, rag.NewSynthesizer(chat), convos, c.TopK),
	}, nil
}

func (a *app) Close() error {
	return a.indexer.Close()
}

// newEmbedder returns a lazily constructed embedder so commands that never
// embed do not touch the embedding service.
func newEmbedder(c config.EmbeddingConfig) *embedder.Lazy {
	return embedder.NewLazy(c.Model, func() (embedder.Embedder, error) {
		switch c.Provider {
		case config.ProviderOllama:
			return embedder.NewOllamaEmbedder(c.BaseURL, c.Model), nil
		case config.ProviderOpenAI:
			return embedder.NewOpenAIEmbedder(c.BaseURL, c.APIKey, c.Model), nil
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", c.Provider)
		}
	})
}

func newChat(c config.LLMConfig) (llm.Chat, error) {
	switch c.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIChat(c.BaseURL, c.APIKey, c.Model, c.Temperature), nil
	case config.ProviderOllama:
		return llm.NewOllamaChat(c.BaseURL, c.Model, c.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", c.Provider)
	}
}
