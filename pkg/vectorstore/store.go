// Package vectorstore wraps the vector databases a run can write to behind
// one namespaced interface.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/jcpsimmons/ragask/pkg/config"
	"github.com/jcpsimmons/ragask/pkg/database"
)

var (
	ErrUnknownBackend = errors.New("unknown vector store backend")
	ErrUnsupported    = errors.New("operation not supported by this backend")
)

// Store is a vector store partitioned by namespace.
type Store interface {
	vectorstores.VectorStore

	Backend() string
	// NamespaceSize reports how many vectors namespace holds.
	NamespaceSize(ctx context.Context, namespace string) (int, error)
	// DeleteNamespace drops every vector in namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// New builds the store selected by cfg.VectorStore. ledger backs the local
// store and may be nil for the hosted ones.
func New(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, ledger *database.DB) (Store, error) {
	switch cfg.VectorStore {
	case config.StorePinecone:
		store, err := NewPinecone(ctx, PineconeOptions{
			APIKey: cfg.PineconeAPIKey,
			Index:  cfg.PineconeIndex,
			Host:   cfg.PineconeHost,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreWeaviate:
		store, err := NewWeaviate(WeaviateOptions{
			Scheme: cfg.WeaviateScheme,
			Host:   cfg.WeaviateHost,
			Index:  cfg.WeaviateIndex,
			APIKey: cfg.WeaviateAPIKey,
		}, embedder)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreLocal:
		if ledger == nil {
			return nil, fmt.Errorf("local vector store needs a ledger database")
		}
		return NewLocal(ledger, embedder), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.VectorStore)
	}
}

// NewNamespace returns now as Unix milliseconds. Two runs in the same
// millisecond share a namespace.
func NewNamespace(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
