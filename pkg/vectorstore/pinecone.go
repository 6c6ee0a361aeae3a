package vectorstore

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/tmc/langchaingo/embeddings"
	lcpinecone "github.com/tmc/langchaingo/vectorstores/pinecone"
)

type PineconeOptions struct {
	APIKey string
	Index  string
	// Host skips the DescribeIndex lookup when set.
	Host string
}

type PineconeStore struct {
	lcpinecone.Store

	client *pinecone.Client
	host   string
}

func NewPinecone(ctx context.Context, opts PineconeOptions, embedder embeddings.Embedder) (*PineconeStore, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: opts.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	host := opts.Host
	if host == "" {
		idx, err := client.DescribeIndex(ctx, opts.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to describe pinecone index %s: %w", opts.Index, err)
		}
		host = idx.Host
	}

	store, err := lcpinecone.New(
		lcpinecone.WithHost(host),
		lcpinecone.WithAPIKey(opts.APIKey),
		lcpinecone.WithEmbedder(embedder),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone store: %w", err)
	}

	return &PineconeStore{Store: store, client: client, host: host}, nil
}

func (s *PineconeStore) Backend() string { return "pinecone" }

func (s *PineconeStore) NamespaceSize(ctx context.Context, namespace string) (int, error) {
	conn, err := s.client.IndexWithNamespace(s.host, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}
	defer conn.Close()

	stats, err := conn.DescribeIndexStats(&ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to describe index stats: %w", err)
	}

	summary, ok := stats.Namespaces[namespace]
	if !ok || summary == nil {
		return 0, nil
	}
	return int(summary.VectorCount), nil
}

func (s *PineconeStore) DeleteNamespace(ctx context.Context, namespace string) error {
	conn, err := s.client.IndexWithNamespace(s.host, namespace)
	if err != nil {
		return fmt.Errorf("failed to connect to pinecone index: %w", err)
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(&ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}
