package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaClient checks that a local Ollama server is up and has the models a
// run needs before any document is sent to it.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

type listModelsResponse struct {
	Models []modelInfo `json:"models"`
}

type modelInfo struct {
	Name string `json:"name"`
}

func NewOllamaClient(baseURL string, httpClient *http.Client) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *OllamaClient) listModels(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.httpClient.Do(req)
}

// CheckConnection verifies that Ollama is running and accessible
func (c *OllamaClient) CheckConnection(ctx context.Context) error {
	resp, err := c.listModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama at %s: %w\n\nPlease ensure:\n1. Ollama is installed (visit https://ollama.ai)\n2. Ollama is running (try 'ollama serve')\n3. OLLAMA_HOST points at it (default: http://localhost:11434)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama server responded with status %d\n\nPlease check that Ollama is running properly", resp.StatusCode)
	}

	return nil
}

// CheckModelsAvailable verifies that every model in models is installed.
// A model named without a tag matches its ":latest" install.
func (c *OllamaClient) CheckModelsAvailable(ctx context.Context, models ...string) error {
	resp, err := c.listModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to check available models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama server responded with status %d", resp.StatusCode)
	}

	var listResp listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return fmt.Errorf("failed to parse models list: %w", err)
	}

	installed := make(map[string]bool)
	for _, model := range listResp.Models {
		installed[model.Name] = true
		if strings.HasSuffix(model.Name, ":latest") {
			installed[strings.TrimSuffix(model.Name, ":latest")] = true
		}
	}

	var missing []string
	seen := make(map[string]bool)
	for _, required := range models {
		if required == "" || seen[required] {
			continue
		}
		seen[required] = true
		if !installed[required] {
			missing = append(missing, required)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required models: %v\n\nPlease install them with:\n%s",
			missing,
			generateInstallCommands(missing))
	}

	return nil
}

func generateInstallCommands(models []string) string {
	var commands []string
	for _, model := range models {
		commands = append(commands, fmt.Sprintf("ollama pull %s", model))
	}
	return strings.Join(commands, "\n")
}
