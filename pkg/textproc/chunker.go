package textproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

var (
	ErrNoChunks        = errors.New("document produced no chunks")
	ErrUnknownSplitter = errors.New("unknown splitter")
)

// ParagraphSeparator is the only boundary the character splitter cuts on.
const ParagraphSeparator = "\n\n"

// NewSplitter returns the splitter for kind. Sizes are in characters except
// for "token", where they count tiktoken tokens.
func NewSplitter(kind string, chunkSize, chunkOverlap int) (textsplitter.TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be >= 0 and < %d, got %d", chunkSize, chunkOverlap)
	}

	sizeOpts := []textsplitter.Option{
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	}

	switch kind {
	case "character", "":
		// A paragraph longer than chunkSize is kept whole.
		opts := append(sizeOpts, textsplitter.WithSeparators([]string{ParagraphSeparator}))
		return textsplitter.NewRecursiveCharacter(opts...), nil
	case "recursive":
		opts := append(sizeOpts, textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}))
		return textsplitter.NewRecursiveCharacter(opts...), nil
	case "token":
		return textsplitter.NewTokenSplitter(sizeOpts...), nil
	case "markdown":
		return textsplitter.NewMarkdownTextSplitter(sizeOpts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitter, kind)
	}
}

// SplitDocuments splits docs into chunks that inherit their parent's
// metadata. Whitespace-only chunks are dropped and the survivors are
// numbered in order through the chunk_index metadata key.
func SplitDocuments(splitter textsplitter.TextSplitter, docs []schema.Document) ([]schema.Document, error) {
	split, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to split documents: %w", err)
	}

	chunks := make([]schema.Document, 0, len(split))
	for _, doc := range split {
		if strings.TrimSpace(doc.PageContent) == "" {
			continue
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]any{}
		}
		doc.Metadata[MetaChunkIndex] = len(chunks)
		chunks = append(chunks, doc)
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	return chunks, nil
}

// PageOf returns the PDF page a chunk came from, or 0 for plain text.
func PageOf(doc schema.Document) int {
	switch v := doc.Metadata[MetaPage].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
