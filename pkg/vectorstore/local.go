package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/similarity"
)

var (
	ErrWrongNumberVectors    = errors.New("number of vectors from embedder does not match number of documents")
	ErrInvalidScoreThreshold = errors.New("score threshold must be between 0 and 1")
)

// LocalStore keeps vectors in the ledger's sqlite file and ranks them by
// cosine similarity in memory.
type LocalStore struct {
	db       *database.DB
	embedder embeddings.Embedder
}

var _ Store = (*LocalStore)(nil)

func NewLocal(db *database.DB, embedder embeddings.Embedder) *LocalStore {
	return &LocalStore{db: db, embedder: embedder}
}

func (s *LocalStore) Backend() string { return "local" }

func (s *LocalStore) embedderFor(opts vectorstores.Options) embeddings.Embedder {
	if opts.Embedder != nil {
		return opts.Embedder
	}
	return s.embedder
}

func getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (s *LocalStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := getOptions(options...)

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}

	vectors, err := s.embedderFor(opts).EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, ErrWrongNumberVectors
	}

	ids := make([]string, len(docs))
	records := make([]database.VectorRecord, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		records[i] = database.VectorRecord{
			ID:        ids[i],
			Namespace: opts.NameSpace,
			Text:      doc.PageContent,
			Metadata:  maps.Clone(doc.Metadata),
			Embedding: vectors[i],
		}
	}

	if err := s.db.InsertVectors(records); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *LocalStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := getOptions(options...)
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, ErrInvalidScoreThreshold
	}

	records, err := s.db.GetVectors(opts.NameSpace)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || numDocuments <= 0 {
		return []schema.Document{}, nil
	}

	queryVector, err := s.embedderFor(opts).EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates := make([][]float32, len(records))
	for i, r := range records {
		candidates[i] = r.Embedding
	}

	matches, err := similarity.TopK(queryVector, candidates, numDocuments)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(matches))
	for _, m := range matches {
		score := float32(m.Similarity)
		if opts.ScoreThreshold > 0 && score < opts.ScoreThreshold {
			continue
		}
		r := records[m.Index]
		metadata := maps.Clone(r.Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		docs = append(docs, schema.Document{
			PageContent: r.Text,
			Metadata:    metadata,
			Score:       score,
		})
	}
	return docs, nil
}

func (s *LocalStore) NamespaceSize(_ context.Context, namespace string) (int, error) {
	return s.db.CountVectors(namespace)
}

func (s *LocalStore) DeleteNamespace(_ context.Context, namespace string) error {
	return s.db.DeleteVectors(namespace)
}
