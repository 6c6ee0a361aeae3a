package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

type batchJob struct {
	Index int
	Start int
	Docs  []schema.Document
}

type batchResult struct {
	Index int
	Start int
	IDs   []string
	Error error
}

// AddInBatches upserts docs into namespace in batches of batchSize using up
// to workers goroutines. The returned ids line up with docs. progress, if
// set, is called once per finished batch.
func AddInBatches(
	ctx context.Context,
	store vectorstores.VectorStore,
	namespace string,
	docs []schema.Document,
	batchSize, workers int,
	progress func(completed, total int),
) ([]string, error) {
	if len(docs) == 0 {
		return []string{}, nil
	}
	if batchSize <= 0 {
		batchSize = len(docs)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	total := (len(docs) + batchSize - 1) / batchSize
	if workers > total {
		workers = total
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan batchJob, total)
	results := make(chan batchResult, total)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go upsertWorker(ctx, store, namespace, jobs, results, &wg)
	}

	for i := 0; i < total; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(docs))
		jobs <- batchJob{Index: i, Start: start, Docs: docs[start:end]}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ids := make([]string, len(docs))
	var firstErr error
	completed := 0

	for result := range results {
		completed++
		if progress != nil {
			progress(completed, total)
		}

		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d: %w", result.Index, result.Error)
				cancel()
			}
			continue
		}
		copy(ids[result.Start:], result.IDs)
	}

	if firstErr != nil {
		return nil, fmt.Errorf("failed to upsert documents: %w", firstErr)
	}

	return ids, nil
}

func upsertWorker(
	ctx context.Context,
	store vectorstores.VectorStore,
	namespace string,
	jobs <-chan batchJob,
	results chan<- batchResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- batchResult{Index: job.Index, Error: err}
			continue
		}

		ids, err := store.AddDocuments(ctx, job.Docs, vectorstores.WithNameSpace(namespace))
		if err == nil && len(ids) != len(job.Docs) {
			err = fmt.Errorf("store returned %d ids for %d documents", len(ids), len(job.Docs))
		}
		results <- batchResult{Index: job.Index, Start: job.Start, IDs: ids, Error: err}
	}
}
