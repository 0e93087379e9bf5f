package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docchat/internal/store"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("please enter a question")

// Retriever finds the chunks most similar to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]store.SearchResult, error)
}

// Answerer produces an answer from retrieved context and history.
type Answerer interface {
	Answer(ctx context.Context, question string, chunks []store.SearchResult, history string) (string, error)
}

// ConversationLog is the durable record of past exchanges.
type ConversationLog interface {
	Read(ctx context.Context, limit int) ([]store.Message, error)
	AppendExchange(ctx context.Context, question, answer string) error
}

// Answer is the outcome of one question.
type Answer struct {
	Question string
	Text     string
	Sources  []store.SearchResult
	Elapsed  time.Duration
}

// Pipeline answers questions: retrieve, format history, synthesize, persist.
type Pipeline struct {
	retriever Retriever
	answerer  Answerer
	log       ConversationLog
	topK      int
}

// NewPipeline wires the query pipeline. topK <= 0 selects DefaultTopK.
func NewPipeline(r Retriever, a Answerer, log ConversationLog, topK int) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{retriever: r, answerer: a, log: log, topK: topK}
}

// Ask answers question using the last maxHistory exchanges as memory and
// stores the new exchange. When no index exists the error satisfies
// errors.Is(err, store.ErrIndexNotFound); a model failure is a
// *SynthesisError. If only saving the exchange fails, the answer is
// returned together with the error.
func (p *Pipeline) Ask(ctx context.Context, question string, maxHistory int) (*Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	maxHistory = ClampHistory(maxHistory)

	chunks, err := p.retriever.Search(ctx, question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	past, err := p.log.Read(ctx, maxHistory*2)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	history := FormatHistory(past, maxHistory)

	text, err := p.answerer.Answer(ctx, question, chunks, history)
	if err != nil {
		return nil, err
	}

	ans := &Answer{Question: question, Text: text, Sources: chunks}
	if err := p.log.AppendExchange(ctx, question, text); err != nil {
		return ans, fmt.Errorf("save conversation: %w", err)
	}
	ans.Elapsed = time.Since(start)

	slog.Debug("answered question",
		"chunks", len(chunks),
		"history_messages", len(past),
		"elapsed", ans.Elapsed.Round(time.Millisecond))
	return ans, nil
}
