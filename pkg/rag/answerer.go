package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
	"github.com/xhad/neurodocs/pkg/store"
)

const DefaultTopK = 4

var ErrEmptyQuestion = errors.New("question is empty")

// Retriever is satisfied by *store.EmbeddingIndex.
type Retriever interface {
	Retrieve(ctx context.Context, idx *store.Index, query string, k int) ([]models.ScoredChunk, error)
}

type AnswererConfig struct {
	TopK         int
	Instructions string
	Logger       *slog.Logger
}

// Answerer runs retrieval, prompt assembly and generation for one question.
type Answerer struct {
	config    AnswererConfig
	retriever Retriever
	generator types.Generator
}

func NewAnswerer(retriever Retriever, generator types.Generator, config AnswererConfig) *Answerer {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Instructions == "" {
		config.Instructions = DefaultInstructions
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Answerer{
		config:    config,
		retriever: retriever,
		generator: generator,
	}
}

// Answer retrieves context for question from idx, asks the generator with the
// conversation so far and records the exchange. Nothing is recorded on error.
func (a *Answerer) Answer(ctx context.Context, question string, idx *store.Index, conv types.ConversationHistory) (models.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return models.AnswerResult{}, ErrEmptyQuestion
	}
	start := time.Now()

	chunks, err := a.retriever.Retrieve(ctx, idx, question, a.config.TopK)
	if err != nil {
		return models.AnswerResult{}, err
	}

	prompt := BuildPrompt(a.config.Instructions, JoinContext(chunks), question)

	answer, err := a.generator.Generate(ctx, prompt, conv.History())
	if err != nil {
		return models.AnswerResult{}, &types.GenerationError{Err: err}
	}

	conv.AppendExchange(question, answer)

	a.config.Logger.Debug("question answered",
		"sources", len(chunks),
		"duration", time.Since(start))

	return models.AnswerResult{
		Question: question,
		Answer:   answer,
		Sources:  chunks,
	}, nil
}
