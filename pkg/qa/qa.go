// Package qa answers a question from the chunks stored in one namespace.
package qa

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// DefaultQuery is asked when the caller gives no question.
const DefaultQuery = "Explain about the contents of the pdf file I provided."

var (
	ErrEmptyQuery = errors.New("query is empty")
	ErrNoAnswer   = errors.New("model returned no answer")

	ErrUnknownProvider = errors.New("unknown LLM provider")
)

type Answer struct {
	Text    string
	Sources []schema.Document
	Latency time.Duration
}

type Asker struct {
	LLM         llms.Model
	Store       vectorstores.VectorStore
	TopK        int
	Temperature float64
}

// Ask retrieves the TopK closest chunks of namespace and stuffs them into a
// single prompt together with query.
func (a *Asker) Ask(ctx context.Context, namespace, query string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	topK := a.TopK
	if topK <= 0 {
		topK = 1
	}

	retriever := vectorstores.ToRetriever(a.Store, topK, vectorstores.WithNameSpace(namespace))
	chain := chains.NewRetrievalQAFromLLM(a.LLM, retriever)
	chain.ReturnSourceDocuments = true

	start := time.Now()
	result, err := chains.Call(ctx, chain, map[string]any{
		"query": query,
	}, chains.WithTemperature(a.Temperature))
	if err != nil {
		return nil, fmt.Errorf("failed to run retrieval chain: %w", err)
	}
	latency := time.Since(start)

	text, ok := result["text"].(string)
	if !ok {
		return nil, ErrNoAnswer
	}

	sources, _ := result["source_documents"].([]schema.Document)

	return &Answer{
		Text:    CleanAnswer(text),
		Sources: sources,
		Latency: latency,
	}, nil
}

var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanAnswer drops <think> blocks emitted by reasoning models and trims
// surrounding whitespace.
func CleanAnswer(text string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(text, ""))
}
