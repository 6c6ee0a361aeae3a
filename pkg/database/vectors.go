package database

import (
	"encoding/json"
	"fmt"
)

func (db *DB) InsertVectors(vectors []VectorRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO vectors (id, namespace, text, metadata, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, v := range vectors {
		metadataJSON, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for vector %s: %w", v.ID, err)
		}
		embeddingJSON, err := json.Marshal(v.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding for vector %s: %w", v.ID, err)
		}
		if _, err := stmt.Exec(v.ID, v.Namespace, v.Text, string(metadataJSON), string(embeddingJSON)); err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetVectors returns the vectors of namespace in insertion order.
func (db *DB) GetVectors(namespace string) ([]VectorRecord, error) {
	query := `SELECT id, namespace, text, metadata, embedding FROM vectors WHERE namespace = ? ORDER BY rowid`
	rows, err := db.conn.Query(query, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var vectors []VectorRecord
	for rows.Next() {
		var v VectorRecord
		var metadataJSON, embeddingJSON string

		if err := rows.Scan(&v.ID, &v.Namespace, &v.Text, &metadataJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if err := json.Unmarshal([]byte(metadataJSON), &v.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for vector %s: %w", v.ID, err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &v.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for vector %s: %w", v.ID, err)
		}

		vectors = append(vectors, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return vectors, nil
}

func (db *DB) CountVectors(namespace string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM vectors WHERE namespace = ?`, namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

func (db *DB) DeleteVectors(namespace string) error {
	if _, err := db.conn.Exec(`DELETE FROM vectors WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}
