package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrRunNotFound = errors.New("run not found")

type DB struct {
	conn *sql.DB
	path string
}

// NewDB opens the ledger at dbPath, creating the file, its directory and
// the tables when missing.
func NewDB(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; the upsert workers share this pool.
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	if err := db.setupTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to setup database tables: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) setupTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			file_path TEXT NOT NULL,
			backend TEXT NOT NULL,
			chunk_count INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			vector_id TEXT NOT NULL,
			text TEXT NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES runs (id)
		)`,
		`CREATE TABLE IF NOT EXISTS answers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL DEFAULT '',
			namespace TEXT NOT NULL,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			sources INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_namespace ON runs(namespace)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_run ON chunks(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_run ON answers(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vectors_namespace ON vectors(namespace)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}

	return nil
}

const insertRunQuery = `INSERT INTO runs (id, namespace, file_path, backend, chunk_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`

func (run *Run) fillDefaults() {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

// CreateRun records an ingestion. ID and CreatedAt are filled in when empty.
func (db *DB) CreateRun(run *Run) error {
	run.fillDefaults()

	_, err := db.conn.Exec(insertRunQuery, run.ID, run.Namespace, run.FilePath, run.Backend, run.ChunkCount, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordRun writes run and its chunks in one transaction, so a failed chunk
// insert leaves no run behind. Each chunk's RunID is set to the run's ID.
func (db *DB) RecordRun(run *Run, chunks []ChunkRecord) error {
	run.fillDefaults()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(insertRunQuery, run.ID, run.Namespace, run.FilePath, run.Backend, run.ChunkCount, run.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i := range chunks {
		chunks[i].RunID = run.ID
	}
	if err := insertChunks(tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (db *DB) InsertChunks(chunks []ChunkRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertChunks(tx, chunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertChunks(tx *sql.Tx, chunks []ChunkRecord) error {
	stmt, err := tx.Prepare(`INSERT INTO chunks (run_id, chunk_index, vector_id, text, page) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.Exec(chunk.RunID, chunk.ChunkIndex, chunk.VectorID, chunk.Text, chunk.Page); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}
	return nil
}

func (db *DB) InsertAnswer(answer *AnswerRecord) error {
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO answers (run_id, namespace, query, answer, sources, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := db.conn.QueryRow(query, answer.RunID, answer.Namespace, answer.Query, answer.Answer, answer.Sources, answer.LatencyMs, answer.CreatedAt).Scan(&answer.ID)
	if err != nil {
		return fmt.Errorf("failed to insert answer: %w", err)
	}
	return nil
}

// DeleteNamespace removes every run recorded for namespace along with its
// chunks and answers. It returns the number of runs removed.
func (db *DB) DeleteNamespace(namespace string) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE run_id IN (SELECT id FROM runs WHERE namespace = ?)`, namespace); err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM answers WHERE namespace = ?`, namespace); err != nil {
		return 0, fmt.Errorf("failed to delete answers: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE namespace = ?`, namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int(n), nil
}
