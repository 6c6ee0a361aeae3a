package vectorstore

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	lcweaviate "github.com/tmc/langchaingo/vectorstores/weaviate"
)

type WeaviateOptions struct {
	Scheme string
	Host   string
	// Index is the weaviate class name and must start with a capital letter.
	Index  string
	APIKey string
}

// WeaviateStore keeps namespaces as a property on each object. Weaviate has
// no per-namespace stats or purge, so those calls return ErrUnsupported.
type WeaviateStore struct {
	lcweaviate.Store
}

func NewWeaviate(opts WeaviateOptions, embedder embeddings.Embedder) (*WeaviateStore, error) {
	lcOpts := []lcweaviate.Option{
		lcweaviate.WithScheme(opts.Scheme),
		lcweaviate.WithHost(opts.Host),
		lcweaviate.WithIndexName(opts.Index),
		lcweaviate.WithEmbedder(embedder),
	}
	if opts.APIKey != "" {
		lcOpts = append(lcOpts, lcweaviate.WithAPIKey(opts.APIKey))
	}

	store, err := lcweaviate.New(lcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate store: %w", err)
	}
	return &WeaviateStore{Store: store}, nil
}

func (s *WeaviateStore) Backend() string { return "weaviate" }

func (s *WeaviateStore) NamespaceSize(context.Context, string) (int, error) {
	return 0, fmt.Errorf("weaviate namespace size: %w", ErrUnsupported)
}

func (s *WeaviateStore) DeleteNamespace(context.Context, string) error {
	return fmt.Errorf("weaviate namespace delete: %w", ErrUnsupported)
}
