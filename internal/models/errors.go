package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat          = errors.New("unsupported format")
	ErrExtraction                 = errors.New("extraction error")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrModelUnavailable           = errors.New("model unavailable")
	ErrCredentialsMissing         = errors.New("credentials missing")
	ErrUnsupportedProvider        = errors.New("unsupported provider")
	ErrGenerationFailed           = errors.New("generation failed")
	ErrVectorStore                = errors.New("vector store error")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrInvalidTransition          = errors.New("invalid status transition")
	ErrTimeout                    = errors.New("request timed out")
)

// ExtractionError carries the file type and the underlying I/O or parse failure.
type ExtractionError struct {
	FileType FileType
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.FileType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// GenerationError is returned for any transport, status or decoding failure
// of an LLM provider call.
type GenerationError struct {
	Provider Provider
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrGenerationFailed, e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnsupportedFormat, "UnsupportedFormat"},
	{ErrExtraction, "ExtractionError"},
	{ErrEmbeddingDimensionMismatch, "EmbeddingDimensionMismatch"},
	{ErrModelUnavailable, "ModelUnavailable"},
	{ErrCredentialsMissing, "CredentialsMissing"},
	{ErrUnsupportedProvider, "UnsupportedProvider"},
	{ErrGenerationFailed, "GenerationFailed"},
	{ErrVectorStore, "VectorStoreError"},
	{ErrInvalidRequest, "InvalidRequest"},
	{ErrInvalidTransition, "InvalidTransition"},
}

// KindOf returns the taxonomy name of err, or "Internal" when err matches
// none of the known kinds. The first matching kind in declaration order wins.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
