package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// OpenExistingDB opens a ledger created earlier by NewDB.
func OpenExistingDB(dbPath string) (*DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn: conn,
		path: dbPath,
	}

	return db, nil
}

const runColumns = `id, namespace, file_path, backend, chunk_count, created_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Namespace, &run.FilePath, &run.Backend, &run.ChunkCount, &run.CreatedAt)
	return run, err
}

func (db *DB) GetRuns() ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, rowid DESC`
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

func (db *DB) GetRun(id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	run, err := scanRun(db.conn.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

// GetRunByNamespace returns the most recent run that wrote to namespace.
func (db *DB) GetRunByNamespace(namespace string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE namespace = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`
	run, err := scanRun(db.conn.QueryRow(query, namespace))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: namespace %s", ErrRunNotFound, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &run, nil
}

func (db *DB) GetChunks(runID string) ([]ChunkRecord, error) {
	query := `SELECT id, run_id, chunk_index, vector_id, text, page FROM chunks WHERE run_id = ? ORDER BY chunk_index`
	rows, err := db.conn.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []ChunkRecord{}
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.RunID, &chunk.ChunkIndex, &chunk.VectorID, &chunk.Text, &chunk.Page); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return chunks, nil
}

func (db *DB) GetAnswers(runID string) ([]AnswerRecord, error) {
	query := `SELECT id, run_id, namespace, query, answer, sources, latency_ms, created_at FROM answers WHERE run_id = ? ORDER BY id`
	rows, err := db.conn.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	answers := []AnswerRecord{}
	for rows.Next() {
		var a AnswerRecord
		if err := rows.Scan(&a.ID, &a.RunID, &a.Namespace, &a.Query, &a.Answer, &a.Sources, &a.LatencyMs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		answers = append(answers, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}

	return answers, nil
}

func (db *DB) CountChunksInNamespace(namespace string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM chunks c JOIN runs r ON r.id = c.run_id WHERE r.namespace = ?`
	if err := db.conn.QueryRow(query, namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}
