// Package loader fetches a file or URL and segments it into chunks, the
// ingestion granule of the retriever. The retriever only depends on the
// Loader interface; SourceLoader is the implementation the binaries use.
package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Chunking strategies accepted in Options.ChunkType.
const (
	ChunkByTitle     = "chunk_by_title"
	ChunkByParagraph = "chunk_by_paragraph"
)

// Chunk is one segment of a loaded source.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Options tune a single Load call. The zero value chunks by title with no
// size limit.
type Options struct {
	ChunkType     string         `json:"chunk_type"`
	MaxCharacters int            `json:"max_characters"`
	Metadata      map[string]any `json:"metadata"`
}

// Loader turns a path or URL into chunks.
type Loader interface {
	Load(ctx context.Context, source string, opts Options) ([]Chunk, error)
}

// Func adapts a plain function to the Loader interface.
type Func func(ctx context.Context, source string, opts Options) ([]Chunk, error)

func (f Func) Load(ctx context.Context, source string, opts Options) ([]Chunk, error) {
	return f(ctx, source, opts)
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateOptions checks the chunk type and size limit.
func ValidateOptions(opts Options) error {
	errs := make(map[string]string)
	switch opts.ChunkType {
	case "", ChunkByTitle, ChunkByParagraph:
	default:
		errs["chunk_type"] = fmt.Sprintf("unknown chunk type %q (want %s or %s)",
			opts.ChunkType, ChunkByTitle, ChunkByParagraph)
	}
	if opts.MaxCharacters < 0 {
		errs["max_characters"] = "max_characters must not be negative"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
