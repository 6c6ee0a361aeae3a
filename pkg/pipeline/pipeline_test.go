package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/qa"
	"github.com/jcpsimmons/ragask/pkg/textproc"
	"github.com/jcpsimmons/ragask/pkg/vectorstore"
)

func letterEmbedder(t *testing.T) embeddings.Embedder {
	t.Helper()
	client := embeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			v := make([]float32, 26)
			for _, r := range strings.ToLower(text) {
				if r >= 'a' && r <= 'z' {
					v[r-'a']++
				}
			}
			out[i] = v
		}
		return out, nil
	})
	e, err := embeddings.NewEmbedder(client)
	require.NoError(t, err)
	return e
}

type fixture struct {
	pipeline *Pipeline
	ledger   *database.DB
	out      *bytes.Buffer
	progress *bytes.Buffer
	dir      string
}

func newFixture(t *testing.T, responses ...string) *fixture {
	t.Helper()
	dir := t.TempDir()

	ledger, err := database.NewDB(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	splitter, err := textproc.NewSplitter("character", 1000, 0)
	require.NoError(t, err)

	store := vectorstore.NewLocal(ledger, letterEmbedder(t))
	out, progress := &bytes.Buffer{}, &bytes.Buffer{}

	return &fixture{
		pipeline: &Pipeline{
			Splitter:        splitter,
			Store:           store,
			Asker:           &qa.Asker{LLM: fake.NewFakeLLM(responses), Store: store, TopK: 1},
			Ledger:          ledger,
			Out:             out,
			Progress:        progress,
			UpsertBatchSize: 1,
			UpsertWorkers:   2,
			Now:             func() time.Time { return time.UnixMilli(1700000000000) },
		},
		ledger:   ledger,
		out:      out,
		progress: progress,
		dir:      dir,
	}
}

func (f *fixture) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_PrintsNamespaceAndResponse(t *testing.T) {
	f := newFixture(t, "The file is about zebras.")
	path := f.writeFile(t, "notes.txt", strings.Repeat("z", 900)+"\n\n"+strings.Repeat("q", 900))

	answer, err := f.pipeline.Run(context.Background(), path, "", qa.DefaultQuery)
	require.NoError(t, err)

	assert.Equal(t, "The file is about zebras.", answer.Text)
	assert.Equal(t, "Namespace: 1700000000000\n\nResponse: The file is about zebras.\n", f.out.String())
	assert.Contains(t, f.progress.String(), "Upserting")
	assert.Contains(t, f.progress.String(), "2/2")

	runs, err := f.ledger.GetRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "1700000000000", runs[0].Namespace)
	assert.Equal(t, "local", runs[0].Backend)
	assert.Equal(t, 2, runs[0].ChunkCount)

	chunks, err := f.ledger.GetChunks(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "zzz"))
	assert.NotEmpty(t, chunks[1].VectorID)

	answers, err := f.ledger.GetAnswers(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, qa.DefaultQuery, answers[0].Query)
	assert.Equal(t, 1, answers[0].Sources)
}

func TestIngest_ExplicitNamespace(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "a.txt", "alpha\n\nbeta")

	run, err := f.pipeline.Ingest(context.Background(), path, "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", run.Namespace)
	assert.Equal(t, 1, run.ChunkCount)
	assert.NotEmpty(t, run.ID)

	n, err := f.pipeline.Store.NamespaceSize(context.Background(), "custom")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngest_EmptyFile(t *testing.T) {
	f := newFixture(t)
	path := f.writeFile(t, "empty.txt", "")

	_, err := f.pipeline.Ingest(context.Background(), path, "")
	assert.ErrorIs(t, err, textproc.ErrNoChunks)

	runs, err := f.ledger.GetRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestIngest_MissingFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Ingest(context.Background(), filepath.Join(f.dir, "nope.pdf"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAsk_RetrievesFromNamespace(t *testing.T) {
	f := newFixture(t, "answer one")
	path := f.writeFile(t, "a.txt", strings.Repeat("m", 10))
	run, err := f.pipeline.Ingest(context.Background(), path, "ns")
	require.NoError(t, err)

	answer, err := f.pipeline.Ask(context.Background(), "", run.Namespace, "what is m?")
	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, strings.Repeat("m", 10), answer.Sources[0].PageContent)

	// Ad-hoc asks are stored without a run id.
	answers, err := f.ledger.GetAnswers("")
	require.NoError(t, err)
	assert.Len(t, answers, 1)
}

func TestAsk_EmptyQuery(t *testing.T) {
	f := newFixture(t, "unused")

	_, err := f.pipeline.Ask(context.Background(), "", "ns", "")
	assert.ErrorIs(t, err, qa.ErrEmptyQuery)
}

func TestPipeline_WithoutLedger(t *testing.T) {
	f := newFixture(t, "ok")
	f.pipeline.Ledger = nil
	f.pipeline.Progress = nil
	path := f.writeFile(t, "a.txt", "hello")

	_, err := f.pipeline.Run(context.Background(), path, "", "q")
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "Response: ok")
}

func TestPrintProgressBar(t *testing.T) {
	var buf bytes.Buffer
	printProgressBar(&buf, "Upserting", 1, 2)
	assert.Contains(t, buf.String(), "1/2 (50.0%)")
	assert.True(t, strings.HasPrefix(buf.String(), "\rUpserting: ["))
}
