package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StorePinecone = "pinecone"
	StoreWeaviate = "weaviate"
	StoreLocal    = "local"

	SplitterCharacter = "character"
	SplitterRecursive = "recursive"
	SplitterToken     = "token"
	SplitterMarkdown  = "markdown"
)

type Config struct {
	Provider string `envconfig:"LLM_PROVIDER" default:"openai"`

	OpenAIAPIKey         string `envconfig:"OPEN_AI_API_KEY"`
	OpenAIBaseURL        string `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel          string `envconfig:"OPENAI_MODEL" default:"gpt-3.5-turbo"`
	OpenAIEmbeddingModel string `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-ada-002"`

	OllamaHost           string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	OllamaModel          string `envconfig:"OLLAMA_MODEL" default:"llama3.2"`
	OllamaEmbeddingModel string `envconfig:"OLLAMA_EMBEDDING_MODEL" default:"nomic-embed-text"`

	VectorStore string `envconfig:"VECTOR_STORE" default:"pinecone"`

	PineconeAPIKey string `envconfig:"PINECONE_API_KEY"`
	PineconeIndex  string `envconfig:"PINECONE_INDEX"`
	PineconeHost   string `envconfig:"PINECONE_HOST"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateIndex  string `envconfig:"WEAVIATE_INDEX" default:"Document"`
	WeaviateAPIKey string `envconfig:"WEAVIATE_API_KEY"`

	// Chunking
	Splitter     string `envconfig:"SPLITTER" default:"character"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"0"`

	// Retrieval
	TopK        int     `envconfig:"TOP_K" default:"1"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.7"`

	EmbedBatchSize  int `envconfig:"EMBED_BATCH_SIZE" default:"512"`
	UpsertBatchSize int `envconfig:"UPSERT_BATCH_SIZE" default:"100"`
	UpsertWorkers   int `envconfig:"UPSERT_WORKERS" default:"1"`

	LedgerPath string `envconfig:"LEDGER_PATH" default:"ragask.db"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	cfg, err := LoadUnvalidated()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadUnvalidated reads .env and the environment without checking provider
// or store settings. Commands that only touch the ledger use it.
func LoadUnvalidated() (*Config, error) {
	// A missing .env is fine, the values may come from the shell.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPEN_AI_API_KEY", ErrMissingRequired)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: OLLAMA_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown LLM_PROVIDER %q", ErrInvalid, c.Provider)
	}

	switch c.VectorStore {
	case StorePinecone:
		if c.PineconeIndex == "" && c.PineconeHost == "" {
			return fmt.Errorf("%w: PINECONE_INDEX", ErrMissingRequired)
		}
		if c.PineconeAPIKey == "" {
			return fmt.Errorf("%w: PINECONE_API_KEY", ErrMissingRequired)
		}
	case StoreWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	case StoreLocal:
	default:
		return fmt.Errorf("%w: unknown VECTOR_STORE %q", ErrInvalid, c.VectorStore)
	}

	switch c.Splitter {
	case SplitterCharacter, SplitterRecursive, SplitterToken, SplitterMarkdown:
	default:
		return fmt.Errorf("%w: unknown SPLITTER %q", ErrInvalid, c.Splitter)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be > 0", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be >= 0 and < CHUNK_SIZE", ErrInvalid)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be > 0", ErrInvalid)
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("%w: LEDGER_PATH", ErrMissingRequired)
	}

	return nil
}
