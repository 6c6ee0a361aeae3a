package textproc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

const (
	MetaName       = "name"
	MetaSource     = "source"
	MetaPage       = "page"
	MetaChunkIndex = "chunk_index"
)

// LoadDocuments reads a PDF (one document per page) or a plain text file
// (one document) and tags every document with the file it came from.
func LoadDocuments(ctx context.Context, filename string) ([]schema.Document, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer file.Close()

	var loader documentloaders.Loader
	if IsPDF(filename) {
		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", filename, err)
		}
		loader = documentloaders.NewPDF(file, info.Size())
	} else {
		loader = documentloaders.NewText(file)
	}

	docs, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filename, err)
	}

	for i := range docs {
		if docs[i].Metadata == nil {
			docs[i].Metadata = map[string]any{}
		}
		docs[i].Metadata[MetaName] = "Filepath: " + filename
		docs[i].Metadata[MetaSource] = filename
	}

	return docs, nil
}

func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
