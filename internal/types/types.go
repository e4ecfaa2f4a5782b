package types

import (
	"context"

	"github.com/xhad/neurodocs/internal/models"
)

// Core interfaces
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, history []models.Turn) (string, error)
}

// SimilaritySearch answers nearest-neighbour queries over one immutable set of chunk vectors.
// Results are ordered by score descending, ties by chunk index ascending.
type SimilaritySearch interface {
	Search(ctx context.Context, query []float32, k int) ([]models.ScoredChunk, error)
	Len() int
	Close() error
}

type ConversationHistory interface {
	History() []models.Turn
	AppendExchange(question, answer string)
}
