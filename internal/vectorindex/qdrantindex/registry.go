package qdrantindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docchat/docchat/internal/domain/docmodel"
	_ "modernc.org/sqlite"
)

// registry tracks which documents live in the remote collection.
// Qdrant has no document listing of its own, so the registry is the
// authoritative doc_id -> filename/chunk_count mapping. Rows are only
// written after the corresponding point upsert succeeded.
type registry struct {
	db *sql.DB
}

func openRegistry(dataDir string) (*registry, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite",
		filepath.Join(dataDir, "qdrant_registry.db")+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			doc_id      TEXT PRIMARY KEY,
			filename    TEXT NOT NULL,
			chunk_count INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return &registry{db: db}, nil
}

func (r *registry) add(ctx context.Context, doc docmodel.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (doc_id, filename, chunk_count) VALUES (?, ?, ?)`,
		doc.DocID, doc.Filename, doc.ChunkCount)
	return err
}

func (r *registry) remove(ctx context.Context, docID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *registry) exists(ctx context.Context, docID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE doc_id = ?`, docID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *registry) list(ctx context.Context) ([]docmodel.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT doc_id, filename, chunk_count FROM documents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []docmodel.Document
	for rows.Next() {
		var d docmodel.Document
		if err := rows.Scan(&d.DocID, &d.Filename, &d.ChunkCount); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *registry) counts(ctx context.Context) (docs int, chunks int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(chunk_count), 0) FROM documents`).Scan(&docs, &chunks)
	return docs, chunks, err
}

func (r *registry) close() error {
	return r.db.Close()
}
