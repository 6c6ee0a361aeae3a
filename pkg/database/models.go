package database

import "time"

type Run struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	FilePath   string    `json:"file_path"`
	Backend    string    `json:"backend"`
	ChunkCount int       `json:"chunk_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type ChunkRecord struct {
	ID         int    `json:"id"`
	RunID      string `json:"run_id"`
	ChunkIndex int    `json:"chunk_index"`
	VectorID   string `json:"vector_id"`
	Text       string `json:"text"`
	Page       int    `json:"page,omitempty"`
}

type AnswerRecord struct {
	ID        int       `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Namespace string    `json:"namespace"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Sources   int       `json:"sources"`
	LatencyMs int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorRecord is a stored embedding for the local vector store.
type VectorRecord struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}
