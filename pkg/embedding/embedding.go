// Package embedding builds the embedder used to vectorise chunks and queries.
package embedding

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/jcpsimmons/ragask/pkg/config"
)

var ErrUnknownProvider = errors.New("unknown embedding provider")

// New returns an embedder for the configured provider. Documents are sent in
// batches of cfg.EmbedBatchSize texts per request.
func New(cfg *config.Config) (*embeddings.EmbedderImpl, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	batch := cfg.EmbedBatchSize
	if batch <= 0 {
		batch = 512
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(batch))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func newClient(cfg *config.Config) (embeddings.EmbedderClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.OpenAIEmbeddingModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		return llm, nil
	case config.ProviderOllama:
		// Ollama embeds with whichever model the client was built for.
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithModel(cfg.OllamaEmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
