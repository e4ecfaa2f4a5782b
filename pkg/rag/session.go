// Package rag answers questions about one uploaded document per session.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/xhad/neurodocs/internal/models"
	"github.com/xhad/neurodocs/internal/types"
	"github.com/xhad/neurodocs/pkg/conversation"
	"github.com/xhad/neurodocs/pkg/processor"
	"github.com/xhad/neurodocs/pkg/store"
)

type State int

const (
	StateEmpty State = iota
	StateIndexing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type SessionConfig struct {
	Processor    *processor.Processor
	Index        *store.EmbeddingIndex
	Answerer     *Answerer
	Conversation *conversation.State
	Logger       *slog.Logger
}

// Session owns one index slot and one conversation. Ingests are serialized;
// questions share whichever index was ready when they started.
type Session struct {
	ID string

	processor    *processor.Processor
	index        *store.EmbeddingIndex
	answerer     *Answerer
	conversation *conversation.State
	logger       *slog.Logger

	ingestMu sync.Mutex

	mu       sync.RWMutex
	state    State
	current  *store.Index
	document models.Document
}

func NewSession(config SessionConfig) (*Session, error) {
	if config.Index == nil {
		return nil, fmt.Errorf("embedding index is required")
	}
	if config.Answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if config.Processor == nil {
		p := processor.NewWithConfig(processor.ProcessorConfig{})
		config.Processor = &p
	}
	if config.Conversation == nil {
		config.Conversation = conversation.New()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	id := uuid.NewString()
	return &Session{
		ID:           id,
		processor:    config.Processor,
		index:        config.Index,
		answerer:     config.Answerer,
		conversation: config.Conversation,
		logger:       config.Logger.With("session_id", id),
	}, nil
}

// Ingest replaces the active document with rawText.
func (s *Session) Ingest(ctx context.Context, name, rawText string) (models.IngestResult, error) {
	return s.ingest(ctx, name, func() (string, error) {
		return rawText, nil
	})
}

// Upload extracts text from data and ingests it. Extraction runs while the
// session is already indexing, so a failure leaves it empty.
func (s *Session) Upload(ctx context.Context, name string, data []byte, extractor types.Extractor) (models.IngestResult, error) {
	return s.ingest(ctx, name, func() (string, error) {
		return extractor.Extract(ctx, name, data)
	})
}

func (s *Session) ingest(ctx context.Context, name string, text func() (string, error)) (models.IngestResult, error) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	s.mu.Lock()
	previous := s.current
	s.current = nil
	s.document = models.Document{}
	s.state = StateIndexing
	s.mu.Unlock()

	if previous != nil {
		go s.retire(previous)
	}

	idx, doc, err := s.build(ctx, name, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateEmpty
		s.logger.Error("ingest failed", "document", name, "error", err)
		return models.IngestResult{}, err
	}

	s.current = idx
	s.document = doc
	s.state = StateReady

	s.logger.Info("document ingested",
		"document", name,
		"document_id", doc.ID,
		"chunks", idx.Len())

	return models.IngestResult{
		DocumentID: doc.ID,
		Name:       doc.Name,
		ChunkCount: idx.Len(),
	}, nil
}

func (s *Session) build(ctx context.Context, name string, text func() (string, error)) (*store.Index, models.Document, error) {
	content, err := text()
	if err != nil {
		if !types.IsExtractionError(err) {
			err = &types.ExtractionError{Source: name, Err: err}
		}
		return nil, models.Document{}, err
	}

	processed := s.processor.Process(models.Document{
		ID:      uuid.NewString(),
		Name:    name,
		Content: content,
	})

	idx, err := s.index.Build(ctx, processed.Chunks)
	if err != nil {
		return nil, models.Document{}, err
	}

	return idx, processed.Document, nil
}

func (s *Session) retire(idx *store.Index) {
	if err := idx.Retire(); err != nil {
		s.logger.Warn("failed to release index", "index_id", idx.ID, "error", err)
	}
}

// Ask answers question from the ready document. It fails with
// types.ErrNotReady while no document is ready.
func (s *Session) Ask(ctx context.Context, question string) (models.AnswerResult, error) {
	s.mu.RLock()
	if s.state != StateReady {
		s.mu.RUnlock()
		return models.AnswerResult{}, types.ErrNotReady
	}
	idx := s.current
	release := idx.Acquire()
	s.mu.RUnlock()
	defer release()

	result, err := s.answerer.Answer(ctx, question, idx, s.conversation)
	if err != nil {
		s.logger.Warn("question failed", "error", err)
		return models.AnswerResult{}, err
	}
	return result, nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Document returns the active document, if any.
func (s *Session) Document() (models.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.document, s.state == StateReady
}

func (s *Session) History() []models.Turn {
	return s.conversation.History()
}

// Close releases the active index after in-flight questions finish.
func (s *Session) Close() error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	s.mu.Lock()
	idx := s.current
	s.current = nil
	s.document = models.Document{}
	s.state = StateEmpty
	s.mu.Unlock()

	if idx == nil {
		return nil
	}
	return idx.Retire()
}
