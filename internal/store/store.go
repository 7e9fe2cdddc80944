// Package store provides the SQLite relational index for the library.
//
// The index mirrors the folder tree and document set for fast querying. It is
// the source of truth for metadata, but not for existence-on-disk: the
// reconciler compares it against the live filesystem and repairs drift.
//
// The database runs embedded (ncruces/go-sqlite3) with WAL mode so readers
// are never blocked by the single writer.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the database connection for the relational index.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path, creating the
// parent directory and the schema as needed.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the folders, documents, and document_folders tables.
// Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,  -- physical, virtual, library_root
		parent_id TEXT REFERENCES folders(id) ON DELETE CASCADE,
		library_id TEXT,
		disk_path TEXT,      -- NULL for virtual folders
		icon TEXT,
		color TEXT,
		sort_index INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
		presence_state TEXT NOT NULL DEFAULT 'never',
		file_path TEXT,
		size_bytes INTEGER,
		content_hash TEXT,
		last_seen_at TEXT,
		meta TEXT,  -- opaque JSON payload
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Many-to-many virtual folder membership
	CREATE TABLE IF NOT EXISTS document_folders (
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
		added_at TEXT NOT NULL,
		PRIMARY KEY (document_id, folder_id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_disk_path
	    ON folders(disk_path) WHERE disk_path IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

	CREATE INDEX IF NOT EXISTS idx_documents_folder ON documents(folder_id);
	CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(file_path);
	CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(presence_state);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

	CREATE INDEX IF NOT EXISTS idx_docfolders_folder ON document_folders(folder_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in s using backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// strToNull converts an empty string to SQL NULL.
func strToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
