// Package pipeline runs the load, split, store and ask steps in order and
// records each run in the ledger.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/logging"
	"github.com/jcpsimmons/ragask/pkg/qa"
	"github.com/jcpsimmons/ragask/pkg/textproc"
	"github.com/jcpsimmons/ragask/pkg/vectorstore"
)

type Pipeline struct {
	Splitter textsplitter.TextSplitter
	Store    vectorstore.Store
	Asker    *qa.Asker
	// Ledger is optional. Without it nothing is recorded.
	Ledger *database.DB

	// Out receives the namespace and the answer.
	Out io.Writer
	// Progress receives the upsert progress bar. Nil disables it.
	Progress io.Writer

	UpsertBatchSize int
	UpsertWorkers   int

	Now    func() time.Time
	Logger *slog.Logger
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return io.Discard
}

// Ingest loads path, splits it and stores the chunks in namespace. An empty
// namespace is replaced by a fresh timestamp namespace.
func (p *Pipeline) Ingest(ctx context.Context, path, namespace string) (*database.Run, error) {
	log := p.logger()

	docs, err := textproc.LoadDocuments(ctx, path)
	if err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "loaded document", "path", path, "documents", len(docs))

	chunks, err := textproc.SplitDocuments(p.Splitter, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s: %w", path, err)
	}

	if namespace == "" {
		namespace = vectorstore.NewNamespace(p.now())
	}
	ctx = logging.WithNamespace(ctx, namespace)
	log.InfoContext(ctx, "storing chunks", "chunks", len(chunks), "backend", p.Store.Backend())

	var progress func(completed, total int)
	if p.Progress != nil {
		progress = func(completed, total int) {
			printProgressBar(p.Progress, "Upserting", completed, total)
		}
	}

	ids, err := vectorstore.AddInBatches(ctx, p.Store, namespace, chunks, p.UpsertBatchSize, p.UpsertWorkers, progress)
	if p.Progress != nil {
		fmt.Fprintln(p.Progress)
	}
	if err != nil {
		return nil, err
	}

	run := &database.Run{
		Namespace:  namespace,
		FilePath:   path,
		Backend:    p.Store.Backend(),
		ChunkCount: len(chunks),
		CreatedAt:  p.now().UTC(),
	}

	if p.Ledger != nil {
		if err := p.record(run, chunks, ids); err != nil {
			return nil, err
		}
		log.InfoContext(logging.WithRunID(ctx, run.ID), "recorded run")
	}

	return run, nil
}

func (p *Pipeline) record(run *database.Run, chunks []schema.Document, ids []string) error {
	records := make([]database.ChunkRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = database.ChunkRecord{
			ChunkIndex: i,
			VectorID:   ids[i],
			Text:       chunk.PageContent,
			Page:       textproc.PageOf(chunk),
		}
	}

	if err := p.Ledger.RecordRun(run, records); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Ask queries namespace and records the answer against runID, which may be
// empty for namespaces ingested elsewhere.
func (p *Pipeline) Ask(ctx context.Context, runID, namespace, query string) (*qa.Answer, error) {
	ctx = logging.WithNamespace(ctx, namespace)
	if runID != "" {
		ctx = logging.WithRunID(ctx, runID)
	}

	answer, err := p.Asker.Ask(ctx, namespace, query)
	if err != nil {
		return nil, err
	}
	p.logger().InfoContext(ctx, "answered query", "sources", len(answer.Sources), "latency", answer.Latency)

	if p.Ledger != nil {
		record := &database.AnswerRecord{
			RunID:     runID,
			Namespace: namespace,
			Query:     query,
			Answer:    answer.Text,
			Sources:   len(answer.Sources),
			LatencyMs: answer.Latency.Milliseconds(),
		}
		if err := p.Ledger.InsertAnswer(record); err != nil {
			return nil, fmt.Errorf("failed to record answer: %w", err)
		}
	}

	return answer, nil
}

// Run ingests path into a fresh namespace, prints the namespace, asks query
// and prints the response.
func (p *Pipeline) Run(ctx context.Context, path, namespace, query string) (*qa.Answer, error) {
	run, err := p.Ingest(ctx, path, namespace)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.out(), "Namespace: %s\n", run.Namespace)

	answer, err := p.Ask(ctx, run.ID, run.Namespace, query)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(p.out(), "\nResponse: %s\n", answer.Text)

	return answer, nil
}

func printProgressBar(w io.Writer, prefix string, completed, total int) {
	width := 50
	percentage := float64(completed) / float64(total)
	filled := int(percentage * float64(width))

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	fmt.Fprintf(w, "\r%s: [%s] %d/%d (%.1f%%)",
		prefix, bar, completed, total, percentage*100)
}
