package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a question arrives before a document finished ingesting.
	ErrNotReady = errors.New("no document uploaded yet")
	// ErrEmptyIndex is returned when retrieval runs without a built index.
	ErrEmptyIndex = errors.New("index has not been built")
)

// ExtractionError reports a source document that could not be turned into text.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports a failed call to the embedding model.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service failed to %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationError reports a failed call to the language model.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}

func IsEmbeddingServiceError(err error) bool {
	var target *EmbeddingServiceError
	return errors.As(err, &target)
}

func IsGenerationError(err error) bool {
	var target *GenerationError
	return errors.As(err, &target)
}

// IsNotReady reports whether err means no document is available to answer from.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrEmptyIndex)
}
