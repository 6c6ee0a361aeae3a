package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/qa"
)

type stubAsker struct {
	answer *qa.Answer
	err    error

	gotRunID, gotNamespace, gotQuery string
}

func (s *stubAsker) Ask(_ context.Context, runID, namespace, query string) (*qa.Answer, error) {
	s.gotRunID, s.gotNamespace, s.gotQuery = runID, namespace, query
	return s.answer, s.err
}

func seededDB(t *testing.T) (*database.DB, *database.Run) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	run := &database.Run{Namespace: "1700000000000", FilePath: "Sample.pdf", Backend: "local", ChunkCount: 1}
	require.NoError(t, db.CreateRun(run))
	require.NoError(t, db.InsertChunks([]database.ChunkRecord{{RunID: run.ID, VectorID: "v1", Text: "hello", Page: 1}}))
	require.NoError(t, db.InsertAnswer(&database.AnswerRecord{RunID: run.ID, Namespace: run.Namespace, Query: "q", Answer: "a", Sources: 1}))
	return db, run
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	db, _ := seededDB(t)
	rec, env := do(t, NewServer(db, nil), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRuns(t *testing.T) {
	db, run := seededDB(t)
	srv := NewServer(db, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []database.Run
	require.NoError(t, json.Unmarshal(env.Data, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec, env = do(t, srv, http.MethodGet, "/api/runs/"+run.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got database.Run
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Sample.pdf", got.FilePath)

	rec, env = do(t, srv, http.MethodGet, "/api/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "run not found")
}

func TestRunChunksAndAnswers(t *testing.T) {
	db, run := seededDB(t)
	srv := NewServer(db, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/chunks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chunks []database.ChunkRecord
	require.NoError(t, json.Unmarshal(env.Data, &chunks))
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Text)

	rec, env = do(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/answers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var answers []database.AnswerRecord
	require.NoError(t, json.Unmarshal(env.Data, &answers))
	require.Len(t, answers, 1)
	assert.Equal(t, "a", answers[0].Answer)

	rec, _ = do(t, srv, http.MethodGet, "/api/runs/missing/chunks", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAsk(t *testing.T) {
	db, run := seededDB(t)
	asker := &stubAsker{answer: &qa.Answer{
		Text:    "It is a sample.",
		Sources: []schema.Document{{PageContent: "hello", Metadata: map[string]any{"page": 1}, Score: 0.8}},
		Latency: 120 * time.Millisecond,
	}}
	srv := NewServer(db, asker)

	rec, env := do(t, srv, http.MethodPost, "/api/ask", `{"namespace":"1700000000000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "It is a sample.", resp.Answer)
	assert.Equal(t, qa.DefaultQuery, resp.Query)
	assert.Equal(t, int64(120), resp.LatencyMs)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].Page)
	assert.InDelta(t, 0.8, resp.Sources[0].Score, 1e-6)

	assert.Equal(t, run.ID, asker.gotRunID)
	assert.Equal(t, "1700000000000", asker.gotNamespace)
}

func TestAsk_UnknownNamespaceHasNoRunID(t *testing.T) {
	db, _ := seededDB(t)
	asker := &stubAsker{answer: &qa.Answer{Text: "x"}}

	rec, _ := do(t, NewServer(db, asker), http.MethodPost, "/api/ask", `{"namespace":"other","query":"why?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, asker.gotRunID)
	assert.Equal(t, "why?", asker.gotQuery)
}

func TestAsk_LedgerFailure(t *testing.T) {
	db, _ := seededDB(t)
	asker := &stubAsker{answer: &qa.Answer{Text: "x"}}
	srv := NewServer(db, asker)
	require.NoError(t, db.Close())

	rec, env := do(t, srv, http.MethodPost, "/api/ask", `{"namespace":"1700000000000"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "Failed to look up namespace")
	assert.Empty(t, asker.gotNamespace)
}

func TestAsk_Errors(t *testing.T) {
	db, _ := seededDB(t)

	rec, env := do(t, NewServer(db, nil), http.MethodPost, "/api/ask", `{"namespace":"ns"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)

	srv := NewServer(db, &stubAsker{err: errors.New("model down")})

	rec, _ = do(t, srv, http.MethodPost, "/api/ask", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, http.MethodPost, "/api/ask", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = do(t, srv, http.MethodPost, "/api/ask", `{"namespace":"ns"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, env.Error, "model down")
}

func TestPreflight(t *testing.T) {
	db, _ := seededDB(t)
	rec, _ := do(t, NewServer(db, nil), http.MethodOptions, "/api/ask", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestGraph(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	run := &database.Run{Namespace: "ns", FilePath: "a.txt", Backend: "local", ChunkCount: 3}
	require.NoError(t, db.CreateRun(run))
	require.NoError(t, db.InsertChunks([]database.ChunkRecord{
		{RunID: run.ID, ChunkIndex: 0, VectorID: "v0", Text: "a"},
		{RunID: run.ID, ChunkIndex: 1, VectorID: "v1", Text: "b"},
		{RunID: run.ID, ChunkIndex: 2, VectorID: "v2", Text: "c"},
	}))
	require.NoError(t, db.InsertVectors([]database.VectorRecord{
		{ID: "v0", Namespace: "ns", Text: "a", Embedding: []float32{1, 0}},
		{ID: "v1", Namespace: "ns", Text: "b", Embedding: []float32{1, 0.1}},
		{ID: "v2", Namespace: "ns", Text: "c", Embedding: []float32{0, 1}},
	}))
	srv := NewServer(db, nil)

	rec, env := do(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/graph?min_similarity=0.5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var graph GraphData
	require.NoError(t, json.Unmarshal(env.Data, &graph))
	assert.Len(t, graph.Nodes, 3)
	require.Len(t, graph.Links, 1)
	assert.Equal(t, graph.Nodes[0].ID, graph.Links[0].Source)
	assert.Equal(t, graph.Nodes[1].ID, graph.Links[0].Target)

	rec, env = do(t, srv, http.MethodGet, "/api/runs/"+run.ID+"/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &graph))
	assert.Len(t, graph.Links, 3)
}

func TestGraph_HostedRunHasNoLinks(t *testing.T) {
	db, run := seededDB(t)

	rec, env := do(t, NewServer(db, nil), http.MethodGet, "/api/runs/"+run.ID+"/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var graph GraphData
	require.NoError(t, json.Unmarshal(env.Data, &graph))
	assert.Len(t, graph.Nodes, 1)
	assert.Empty(t, graph.Links)
}
