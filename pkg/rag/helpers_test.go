package rag_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/pkg/conversation"
	"github.com/xhad/neurodocs/pkg/processor"
	"github.com/xhad/neurodocs/pkg/rag"
	"github.com/xhad/neurodocs/pkg/store"
)

var vocabulary = []string{"cat", "dog", "mammal", "fish", "water", "live", "what", "are", "too"}

// keywordEmbedder counts vocabulary words. When gate is set, EmbedDocuments
// signals entered and blocks until gate is closed.
type keywordEmbedder struct {
	err     error
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (e *keywordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.gate != nil {
		e.once.Do(func() { close(e.entered) })
		<-e.gate
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedKeywords(text)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return embedKeywords(text), nil
}

func embedKeywords(text string) []float32 {
	vec := make([]float32, len(vocabulary))
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, word := range words {
		if len(word) > 3 {
			word = strings.TrimSuffix(word, "s")
		}
		for i, v := range vocabulary {
			if v == word {
				vec[i]++
			}
		}
	}
	return vec
}

// echoGenerator answers with the context block of the prompt and records the
// history it was given.
type echoGenerator struct {
	mu        sync.Mutex
	histories [][]models.Turn
	err       error
	gate      chan struct{}
	entered   chan struct{}
}

func (g *echoGenerator) Generate(_ context.Context, prompt string, history []models.Turn) (string, error) {
	g.mu.Lock()
	g.histories = append(g.histories, history)
	g.mu.Unlock()

	if g.gate != nil {
		close(g.entered)
		<-g.gate
	}
	if g.err != nil {
		return "", g.err
	}

	start := strings.Index(prompt, "Context:\n") + len("Context:\n")
	end := strings.LastIndex(prompt, "\n\nAnswer:")
	return "From the document: " + prompt[start:end], nil
}

var errModelDown = errors.New("model unavailable")

type fixture struct {
	session   *rag.Session
	embedder  *keywordEmbedder
	generator *echoGenerator
	conv      *conversation.State
}

func newFixture(t *testing.T, topK int) *fixture {
	t.Helper()

	f := &fixture{
		embedder:  &keywordEmbedder{},
		generator: &echoGenerator{},
		conv:      conversation.New(),
	}

	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 20, ChunkOverlap: 5})
	index := store.NewEmbeddingIndex(f.embedder, store.IndexConfig{})
	answerer := rag.NewAnswerer(index, f.generator, rag.AnswererConfig{TopK: topK})

	session, err := rag.NewSession(rag.SessionConfig{
		Processor:    &p,
		Index:        index,
		Answerer:     answerer,
		Conversation: f.conv,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	f.session = session
	return f
}
