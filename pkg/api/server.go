// Package api serves the run ledger and the ask operation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tmc/langchaingo/schema"

	"github.com/jcpsimmons/ragask/pkg/database"
	"github.com/jcpsimmons/ragask/pkg/qa"
	"github.com/jcpsimmons/ragask/pkg/similarity"
	"github.com/jcpsimmons/ragask/pkg/textproc"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Asker answers a query against a namespace. pipeline.Pipeline satisfies it.
type Asker interface {
	Ask(ctx context.Context, runID, namespace, query string) (*qa.Answer, error)
}

type AskRequest struct {
	Namespace string `json:"namespace"`
	Query     string `json:"query"`
}

type Source struct {
	Text  string  `json:"text"`
	Page  int     `json:"page,omitempty"`
	Score float32 `json:"score"`
}

type AskResponse struct {
	Namespace string   `json:"namespace"`
	Query     string   `json:"query"`
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	LatencyMs int64    `json:"latency_ms"`
}

type GraphData struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

type Node struct {
	ID    int    `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
	Page  int    `json:"page,omitempty"`
}

type Link struct {
	Source     int     `json:"source"`
	Target     int     `json:"target"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

type Server struct {
	db    *database.DB
	asker Asker
	mux   *http.ServeMux
}

// NewServer builds the handler tree. asker may be nil, in which case
// POST /api/ask answers 503.
func NewServer(db *database.DB, asker Asker) *Server {
	s := &Server{db: db, asker: asker, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", enableCORS(s.handleHealth))
	s.mux.HandleFunc("GET /api/runs", enableCORS(s.handleRuns))
	s.mux.HandleFunc("GET /api/runs/{id}", enableCORS(s.handleRun))
	s.mux.HandleFunc("GET /api/runs/{id}/chunks", enableCORS(s.handleChunks))
	s.mux.HandleFunc("GET /api/runs/{id}/answers", enableCORS(s.handleAnswers))
	s.mux.HandleFunc("GET /api/runs/{id}/graph", enableCORS(s.handleGraph))
	s.mux.HandleFunc("POST /api/ask", enableCORS(s.handleAsk))
	s.mux.HandleFunc("OPTIONS /", enableCORS(func(http.ResponseWriter, *http.Request) {}))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting API server", "port", port, "database", s.db.Path(), "ask_enabled", s.asker != nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.GetRuns()
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get runs: %v", err), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, runs)
}

// lookupRun writes the error response itself and returns nil when the run
// cannot be served.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) *database.Run {
	run, err := s.db.GetRun(r.PathValue("id"))
	if errors.Is(err, database.ErrRunNotFound) {
		respondWithError(w, err.Error(), http.StatusNotFound)
		return nil
	}
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get run: %v", err), http.StatusInternalServerError)
		return nil
	}
	return run
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if run := s.lookupRun(w, r); run != nil {
		respondWithJSON(w, run)
	}
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}

	chunks, err := s.db.GetChunks(run.ID)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get chunks: %v", err), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, chunks)
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	run := s.lookupRun(w, r)
	if run == nil {
		return
	}

	answers, err := s.db.GetAnswers(run.ID)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get answers: %v", err), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, answers)
}

// handleGraph links the chunks of a run by embedding similarity. Only runs
// stored in the local backend have their vectors in the ledger; other runs
// return nodes without links.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	minSimilarity := 0.0
	if sim := r.URL.Query().Get("min_similarity"); sim != "" {
		if parsed, err := strconv.ParseFloat(sim, 64); err == nil {
			minSimilarity = parsed
		}
	}

	run := s.lookupRun(w, r)
	if run == nil {
		return
	}

	chunks, err := s.db.GetChunks(run.ID)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get chunks: %v", err), http.StatusInternalServerError)
		return
	}

	vectors, err := s.db.GetVectors(run.Namespace)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to get vectors: %v", err), http.StatusInternalServerError)
		return
	}
	byID := make(map[string][]float32, len(vectors))
	for _, v := range vectors {
		byID[v.ID] = v.Embedding
	}

	nodes := make([]Node, len(chunks))
	var embedded [][]float32
	var embeddedChunks []int
	for i, chunk := range chunks {
		nodes[i] = Node{
			ID:    chunk.ID,
			Text:  chunk.Text,
			Index: chunk.ChunkIndex,
			Page:  chunk.Page,
		}
		if e, ok := byID[chunk.VectorID]; ok {
			embedded = append(embedded, e)
			embeddedChunks = append(embeddedChunks, i)
		}
	}

	pairs, err := similarity.AllPairs(embedded, minSimilarity)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to calculate similarities: %v", err), http.StatusInternalServerError)
		return
	}

	links := make([]Link, len(pairs))
	for i, p := range pairs {
		links[i] = Link{
			Source:     chunks[embeddedChunks[p.I]].ID,
			Target:     chunks[embeddedChunks[p.J]].ID,
			Distance:   p.Distance,
			Similarity: p.Similarity,
		}
	}

	respondWithJSON(w, GraphData{Nodes: nodes, Links: links})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.asker == nil {
		respondWithError(w, "Asking is disabled on this server", http.StatusServiceUnavailable)
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Namespace == "" {
		respondWithError(w, "namespace is required", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		req.Query = qa.DefaultQuery
	}

	// Attach the answer to the namespace's latest run when the ledger knows it.
	var runID string
	run, err := s.db.GetRunByNamespace(req.Namespace)
	switch {
	case err == nil:
		runID = run.ID
	case !errors.Is(err, database.ErrRunNotFound):
		respondWithError(w, fmt.Sprintf("Failed to look up namespace: %v", err), http.StatusInternalServerError)
		return
	}

	answer, err := s.asker.Ask(r.Context(), runID, req.Namespace, req.Query)
	if err != nil {
		respondWithError(w, fmt.Sprintf("Failed to answer query: %v", err), http.StatusBadGateway)
		return
	}

	respondWithJSON(w, AskResponse{
		Namespace: req.Namespace,
		Query:     req.Query,
		Answer:    answer.Text,
		Sources:   toSources(answer.Sources),
		LatencyMs: answer.Latency.Milliseconds(),
	})
}

func toSources(docs []schema.Document) []Source {
	sources := make([]Source, len(docs))
	for i, doc := range docs {
		sources[i] = Source{
			Text:  doc.PageContent,
			Page:  textproc.PageOf(doc),
			Score: doc.Score,
		}
	}
	return sources
}

func enableCORS(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

func respondWithJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	response := APIResponse{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(w).Encode(response)
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := APIResponse{
		Success: false,
		Error:   message,
	}
	json.NewEncoder(w).Encode(response)
}
