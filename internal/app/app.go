// Package app wires configuration into a ready-to-use document session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xhad/neurodocs/pkg/config"
	"github.com/xhad/neurodocs/pkg/conversation"
	"github.com/xhad/neurodocs/pkg/extractor"
	"github.com/xhad/neurodocs/pkg/llm"
	"github.com/xhad/neurodocs/pkg/processor"
	"github.com/xhad/neurodocs/pkg/rag"
	"github.com/xhad/neurodocs/pkg/store"
)

type Options struct {
	Logger *slog.Logger
	// OnEmbedProgress reports chunks embedded so far during an ingest.
	OnEmbedProgress func(done, total int)
	// OnFetch is called before a URL is downloaded.
	OnFetch func(url string)
}

type App struct {
	Session   *rag.Session
	Extractor *extractor.Extractor
	Fetcher   *extractor.Fetcher
	Chat      *llm.ChatEngine

	closers []func() error
}

// Build constructs every component named by cfg. A database URL selects the
// pgvector backend, otherwise indexes live in memory.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(joined...))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a := &App{}

	embedderURL := ""
	if cfg.Embedding.Provider == cfg.LLM.Provider {
		embedderURL = cfg.LLM.BaseURL
	}
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.LLM.EmbeddingModel,
		BaseURL:   embedderURL,
		APIKey:    cfg.LLM.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
		RateLimit: cfg.Embedding.RateLimit,
		Dimension: cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, err
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}
	a.Chat = chat

	var backend store.Backend = store.MemoryBackend{}
	if cfg.Database.URL != "" {
		pg, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		backend = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		opts.Logger.Info("using pgvector backend", "table", cfg.Database.TableName)
	}

	index := store.NewEmbeddingIndex(embedder, store.IndexConfig{
		Backend:    backend,
		BatchSize:  cfg.Embedding.BatchSize,
		OnProgress: opts.OnEmbedProgress,
		Logger:     opts.Logger,
	})

	answerer := rag.NewAnswerer(index, chat, rag.AnswererConfig{
		TopK:   cfg.Retrieval.TopK,
		Logger: opts.Logger,
	})

	var convOpts []conversation.Option
	if cfg.Conversation.MaxTurns > 0 {
		convOpts = append(convOpts, conversation.WithPolicy(conversation.LastN(cfg.Conversation.MaxTurns)))
	}

	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})

	session, err := rag.NewSession(rag.SessionConfig{
		Processor:    &p,
		Index:        index,
		Answerer:     answerer,
		Conversation: conversation.New(convOpts...),
		Logger:       opts.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = session
	// The session must release its index before the backend goes away.
	a.closers = append([]func() error{session.Close}, a.closers...)

	maxBytes := int64(cfg.Server.MaxUploadMB) << 20
	a.Extractor = extractor.New(extractor.Config{
		MaxBytes: maxBytes,
		Logger:   opts.Logger,
	})
	a.Fetcher = extractor.NewFetcher(extractor.FetcherConfig{
		MaxBytes:   maxBytes,
		OnProgress: opts.OnFetch,
	}, a.Extractor)

	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
