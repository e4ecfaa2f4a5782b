package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// EmbedderConfig represents the configuration for an embedding model.
type EmbedderConfig struct {
	Provider  string
	Model     string
	BaseURL   string // Ollama server URL or OpenAI compatible endpoint
	APIKey    string
	BatchSize int
	RateLimit float64 // batches per second, 0 disables throttling
	Dimension int     // local provider only
}

// NewEmbedderWithConfig builds the embedder for the configured provider,
// throttled to RateLimit batches per second.
func NewEmbedderWithConfig(config EmbedderConfig) (embeddings.Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}

	var (
		emb embeddings.Embedder
		err error
	)
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		var client *ollama.LLM
		client, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		emb, err = embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		if config.Model == "" {
			config.Model = "text-embedding-3-large"
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		var client *openai.LLM
		client, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
		}
		emb, err = embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	case ProviderLocal:
		emb = NewHashingEmbedder(config.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return NewThrottledEmbedder(emb, config.BatchSize, config.RateLimit), nil
}

// ThrottledEmbedder splits document batches and waits on a token bucket
// before each call to the wrapped embedder.
type ThrottledEmbedder struct {
	next      embeddings.Embedder
	batchSize int
	limiter   *rate.Limiter
}

func NewThrottledEmbedder(next embeddings.Embedder, batchSize int, perSecond float64) *ThrottledEmbedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	return &ThrottledEmbedder{
		next:      next,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (e *ThrottledEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch, err := e.next.EmbedDocuments(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-i)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (e *ThrottledEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.next.EmbedQuery(ctx, text)
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashingEmbedder is an offline embedder: lower-cased word counts hashed into
// a fixed number of buckets and L2 normalised.
type HashingEmbedder struct {
	dimension int
}

func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &HashingEmbedder{dimension: dimension}
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)

	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec
}
