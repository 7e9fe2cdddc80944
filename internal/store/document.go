package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

const documentColumns = `id, title, folder_id, presence_state, file_path, size_bytes, content_hash, last_seen_at, meta, created_at, updated_at`

// UpsertDocument inserts or updates a document row.
func (db *DB) UpsertDocument(ctx context.Context, d *model.Document) error {
	if err := d.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO documents (` + documentColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		folder_id = excluded.folder_id,
		presence_state = excluded.presence_state,
		file_path = excluded.file_path,
		size_bytes = excluded.size_bytes,
		content_hash = excluded.content_hash,
		last_seen_at = excluded.last_seen_at,
		meta = excluded.meta,
		updated_at = excluded.updated_at
	`

	var meta sql.NullString
	if len(d.Meta) > 0 {
		meta = sql.NullString{String: string(d.Meta), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, query,
		d.ID, d.Title, strToNull(d.FolderID),
		string(d.Presence.State), strToNull(d.Presence.Path),
		d.Presence.SizeBytes, strToNull(d.Presence.ContentHash),
		timeToNullString(d.Presence.LastSeenAt), meta,
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", d.ID, err)
	}
	return nil
}

// GetDocument retrieves a document by id.
func (db *DB) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("document", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	return d, nil
}

// ListDocuments returns every document row.
func (db *DB) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListPresentDocumentPaths returns file_path -> document id for every
// document whose file is confirmed present.
func (db *DB) ListPresentDocumentPaths(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT file_path, id FROM documents WHERE presence_state = 'present' AND file_path IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var path, id string
		if err := rows.Scan(&path, &id); err != nil {
			return nil, fmt.Errorf("failed to scan document path: %w", err)
		}
		paths[path] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document paths: %w", err)
	}
	return paths, nil
}

// ListMissingDocuments returns documents whose file vanished since it was
// last confirmed.
func (db *DB) ListMissingDocuments(ctx context.Context) ([]*model.Document, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE presence_state = 'missing'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list missing documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// FindDocumentByPath retrieves the document whose file currently lives at the
// given library-relative path, or nil.
func (db *DB) FindDocumentByPath(ctx context.Context, relPath string) (*model.Document, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE file_path = ?`, relPath)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by path %s: %w", relPath, err)
	}
	return d, nil
}

// AddVirtualMembership adds a document to a virtual folder. Idempotent.
func (db *DB) AddVirtualMembership(ctx context.Context, documentID, folderID string) error {
	query := `
	INSERT INTO document_folders (document_id, folder_id, added_at)
	VALUES (?, ?, ?)
	ON CONFLICT(document_id, folder_id) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query, documentID, folderID,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to add membership %s -> %s: %w", documentID, folderID, err)
	}
	return nil
}

// RemoveVirtualMembership removes a document from a virtual folder.
// Idempotent.
func (db *DB) RemoveVirtualMembership(ctx context.Context, documentID, folderID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM document_folders WHERE document_id = ? AND folder_id = ?`,
		documentID, folderID)
	if err != nil {
		return fmt.Errorf("failed to remove membership %s -> %s: %w", documentID, folderID, err)
	}
	return nil
}

// ListVirtualMemberships returns the virtual folder ids a document belongs to.
func (db *DB) ListVirtualMemberships(ctx context.Context, documentID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT folder_id FROM document_folders WHERE document_id = ? ORDER BY added_at ASC`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return ids, nil
}

// FolderDocCounts holds the per-folder aggregates the indexed tree caches.
type FolderDocCounts struct {
	Direct int
	Ghosts int
}

// DocCountsByFolder returns the direct document and ghost counts per folder
// id, covering both physical ownership and virtual membership.
func (db *DB) DocCountsByFolder(ctx context.Context) (map[string]FolderDocCounts, error) {
	counts := make(map[string]FolderDocCounts)

	rows, err := db.conn.QueryContext(ctx, `
	SELECT folder_id,
	       COUNT(*),
	       SUM(CASE WHEN presence_state = 'never' THEN 1 ELSE 0 END)
	FROM documents
	WHERE folder_id IS NOT NULL
	GROUP BY folder_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents per folder: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var c FolderDocCounts
		if err := rows.Scan(&id, &c.Direct, &c.Ghosts); err != nil {
			return nil, fmt.Errorf("failed to scan folder counts: %w", err)
		}
		counts[id] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folder counts: %w", err)
	}

	vrows, err := db.conn.QueryContext(ctx, `
	SELECT df.folder_id,
	       COUNT(*),
	       SUM(CASE WHEN d.presence_state = 'never' THEN 1 ELSE 0 END)
	FROM document_folders df
	JOIN documents d ON d.id = df.document_id
	GROUP BY df.folder_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count virtual memberships: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var id string
		var c FolderDocCounts
		if err := vrows.Scan(&id, &c.Direct, &c.Ghosts); err != nil {
			return nil, fmt.Errorf("failed to scan membership counts: %w", err)
		}
		existing := counts[id]
		existing.Direct += c.Direct
		existing.Ghosts += c.Ghosts
		counts[id] = existing
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership counts: %w", err)
	}

	return counts, nil
}

func scanDocument(s scanner) (*model.Document, error) {
	var d model.Document
	var state string
	var folderID, filePath, contentHash, lastSeen, meta sql.NullString
	var sizeBytes sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.Title, &folderID, &state, &filePath, &sizeBytes,
		&contentHash, &lastSeen, &meta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.FolderID = folderID.String
	d.Presence = model.FilePresence{
		State:       model.PresenceState(state),
		Path:        filePath.String,
		SizeBytes:   sizeBytes.Int64,
		ContentHash: contentHash.String,
		LastSeenAt:  nullStringToTime(lastSeen),
	}
	if meta.Valid {
		d.Meta = json.RawMessage(meta.String)
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		d.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		d.UpdatedAt = t
	}
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]*model.Document, error) {
	var docs []*model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}
