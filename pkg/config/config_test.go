package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcpsimmons/ragask/pkg/config"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setEnv(t, map[string]string{
		"OPEN_AI_API_KEY":  "sk-test",
		"PINECONE_API_KEY": "pc-test",
		"PINECONE_INDEX":   "docs",
	})

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	assert.Equal(t, config.StorePinecone, cfg.VectorStore)
	assert.Equal(t, config.SplitterCharacter, cfg.Splitter)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 0, cfg.ChunkOverlap)
	assert.Equal(t, 1, cfg.TopK)
	assert.Equal(t, "docs", cfg.PineconeIndex)
}

func TestLoadConfig_FallbackAPIKey(t *testing.T) {
	setEnv(t, map[string]string{
		"OPEN_AI_API_KEY": "",
		"OPENAI_API_KEY":  "sk-fallback",
		"VECTOR_STORE":    "local",
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.OpenAIAPIKey)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	content := []byte("OPEN_AI_API_KEY=from-file\nVECTOR_STORE=local\nCHUNK_SIZE=250\n")
	require.NoError(t, os.WriteFile(".env", content, 0o644))

	// godotenv never overrides variables that are already set.
	os.Unsetenv("OPEN_AI_API_KEY")
	os.Unsetenv("VECTOR_STORE")
	os.Unsetenv("CHUNK_SIZE")
	t.Cleanup(func() {
		os.Unsetenv("OPEN_AI_API_KEY")
		os.Unsetenv("VECTOR_STORE")
		os.Unsetenv("CHUNK_SIZE")
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.OpenAIAPIKey)
	assert.Equal(t, config.StoreLocal, cfg.VectorStore)
	assert.Equal(t, 250, cfg.ChunkSize)
}

func TestLoadConfig_MalformedNumber(t *testing.T) {
	setEnv(t, map[string]string{
		"OPEN_AI_API_KEY": "sk-test",
		"VECTOR_STORE":    "local",
		"CHUNK_SIZE":      "abc",
	})

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoadUnvalidated_SkipsProviderChecks(t *testing.T) {
	setEnv(t, map[string]string{
		"OPEN_AI_API_KEY": "",
		"OPENAI_API_KEY":  "",
		"VECTOR_STORE":    "pinecone",
		"LLM_PROVIDER":    "openai",
		"PINECONE_INDEX":  "",
		"PINECONE_HOST":   "",
		"LEDGER_PATH":     "/tmp/ledger.db",
	})

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrMissingRequired)

	cfg, err := config.LoadUnvalidated()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerPath)
}

func validConfig() config.Config {
	return config.Config{
		Provider:       config.ProviderOpenAI,
		OpenAIAPIKey:   "sk-test",
		VectorStore:    config.StorePinecone,
		PineconeAPIKey: "pc-test",
		PineconeIndex:  "docs",
		Splitter:       config.SplitterCharacter,
		ChunkSize:      1000,
		TopK:           1,
		LedgerPath:     "ragask.db",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr error
	}{
		{"valid", func(c *config.Config) {}, nil},
		{"missing openai key", func(c *config.Config) { c.OpenAIAPIKey = "" }, config.ErrMissingRequired},
		{"ollama needs no key", func(c *config.Config) {
			c.Provider = config.ProviderOllama
			c.OpenAIAPIKey = ""
			c.OllamaHost = "http://localhost:11434"
		}, nil},
		{"unknown provider", func(c *config.Config) { c.Provider = "bard" }, config.ErrInvalid},
		{"missing pinecone index", func(c *config.Config) { c.PineconeIndex = "" }, config.ErrMissingRequired},
		{"pinecone host replaces index", func(c *config.Config) {
			c.PineconeIndex = ""
			c.PineconeHost = "docs-abc.svc.pinecone.io"
		}, nil},
		{"missing pinecone key", func(c *config.Config) { c.PineconeAPIKey = "" }, config.ErrMissingRequired},
		{"local store needs nothing", func(c *config.Config) {
			c.VectorStore = config.StoreLocal
			c.PineconeIndex = ""
			c.PineconeAPIKey = ""
		}, nil},
		{"unknown store", func(c *config.Config) { c.VectorStore = "faiss" }, config.ErrInvalid},
		{"unknown splitter", func(c *config.Config) { c.Splitter = "semantic" }, config.ErrInvalid},
		{"zero chunk size", func(c *config.Config) { c.ChunkSize = 0 }, config.ErrInvalid},
		{"overlap too large", func(c *config.Config) { c.ChunkOverlap = 1000 }, config.ErrInvalid},
		{"negative overlap", func(c *config.Config) { c.ChunkOverlap = -1 }, config.ErrInvalid},
		{"zero top k", func(c *config.Config) { c.TopK = 0 }, config.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
