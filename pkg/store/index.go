package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
)

// Backend turns embedded chunks into a searchable store.
type Backend interface {
	Build(ctx context.Context, chunks []models.Chunk, vectors [][]float32) (types.SimilaritySearch, error)
}

type IndexConfig struct {
	Backend    Backend
	BatchSize  int
	OnProgress func(done, total int)
	Logger     *slog.Logger
}

// EmbeddingIndex embeds chunks and queries with one embedder so both live in
// the same vector space.
type EmbeddingIndex struct {
	config   IndexConfig
	embedder embeddings.Embedder
}

// Index is an immutable, fully built snapshot. Readers hold it with Acquire;
// Retire closes it once the last reader is done.
type Index struct {
	ID      string
	BuiltAt time.Time

	chunks  []models.Chunk
	search  types.SimilaritySearch
	readers sync.WaitGroup
	once    sync.Once
}

func NewEmbeddingIndex(embedder embeddings.Embedder, config IndexConfig) *EmbeddingIndex {
	if config.Backend == nil {
		config.Backend = MemoryBackend{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &EmbeddingIndex{
		config:   config,
		embedder: embedder,
	}
}

// Build embeds every chunk and returns a queryable index.
func (e *EmbeddingIndex) Build(ctx context.Context, chunks []models.Chunk) (*Index, error) {
	start := time.Now()
	vectors := make([][]float32, 0, len(chunks))

	for i := 0; i < len(chunks); i += e.config.BatchSize {
		end := i + e.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-i)
		for _, chunk := range chunks[i:end] {
			texts = append(texts, chunk.Content)
		}

		batch, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, &types.EmbeddingServiceError{Op: "embed documents", Err: err}
		}
		if len(batch) != len(texts) {
			return nil, &types.EmbeddingServiceError{
				Op:  "embed documents",
				Err: fmt.Errorf("got %d vectors for %d chunks", len(batch), len(texts)),
			}
		}
		vectors = append(vectors, batch...)

		if e.config.OnProgress != nil {
			e.config.OnProgress(end, len(chunks))
		}
	}

	search, err := e.config.Backend.Build(ctx, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	idx := &Index{
		ID:      uuid.NewString(),
		BuiltAt: time.Now(),
		chunks:  append([]models.Chunk(nil), chunks...),
		search:  search,
	}

	e.config.Logger.Info("index built",
		"index_id", idx.ID,
		"chunks", len(chunks),
		"duration", time.Since(start))

	return idx, nil
}

// Retrieve returns the k chunks most similar to query, best first.
func (e *EmbeddingIndex) Retrieve(ctx context.Context, idx *Index, query string, k int) ([]models.ScoredChunk, error) {
	if idx == nil {
		return nil, types.ErrEmptyIndex
	}
	if idx.Len() == 0 || k <= 0 {
		return nil, nil
	}

	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &types.EmbeddingServiceError{Op: "embed query", Err: err}
	}

	results, err := idx.search.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	return results, nil
}

func (i *Index) Len() int {
	return len(i.chunks)
}

// Chunks returns a copy of the indexed chunks in document order.
func (i *Index) Chunks() []models.Chunk {
	return append([]models.Chunk(nil), i.chunks...)
}

// Acquire registers a reader. The returned func must be called when done.
func (i *Index) Acquire() (release func()) {
	i.readers.Add(1)
	return i.readers.Done
}

// Retire waits for all readers and releases the backend. Callers must make
// the index unreachable for new Acquire calls first.
func (i *Index) Retire() error {
	var err error
	i.once.Do(func() {
		i.readers.Wait()
		err = i.search.Close()
	})
	return err
}
