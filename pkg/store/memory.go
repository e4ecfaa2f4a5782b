package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
)

var (
	_ Backend                = MemoryBackend{}
	_ types.SimilaritySearch = (*MemoryStore)(nil)
)

// MemoryBackend builds brute-force cosine stores held in process memory.
type MemoryBackend struct{}

func (MemoryBackend) Build(_ context.Context, chunks []models.Chunk, vectors [][]float32) (types.SimilaritySearch, error) {
	if err := checkVectors(chunks, vectors); err != nil {
		return nil, err
	}

	s := &MemoryStore{
		chunks:  make([]models.Chunk, len(chunks)),
		vectors: make([][]float32, len(vectors)),
		norms:   make([]float64, len(vectors)),
	}
	copy(s.chunks, chunks)
	for i, v := range vectors {
		s.vectors[i] = append([]float32(nil), v...)
		s.norms[i] = norm(v)
	}

	return s, nil
}

// MemoryStore is an immutable exact nearest-neighbour store.
type MemoryStore struct {
	chunks  []models.Chunk
	vectors [][]float32
	norms   []float64
}

func (s *MemoryStore) Search(_ context.Context, query []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 || len(s.chunks) == 0 {
		return nil, nil
	}
	if len(query) != len(s.vectors[0]) {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), len(s.vectors[0]))
	}

	queryNorm := norm(query)
	results := make([]models.ScoredChunk, len(s.chunks))
	for i, chunk := range s.chunks {
		results[i] = models.ScoredChunk{
			Chunk: chunk,
			Score: cosine(query, s.vectors[i], queryNorm, s.norms[i]),
		}
	}

	// Sort by score descending, ties keep document order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

func (s *MemoryStore) Len() int {
	return len(s.chunks)
}

func (s *MemoryStore) Close() error {
	return nil
}

func checkVectors(chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("empty vector for chunk %d", i)
		}
		if len(v) != len(vectors[0]) {
			return fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), len(vectors[0]))
		}
	}
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
