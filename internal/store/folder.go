package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

const folderColumns = `id, name, kind, parent_id, library_id, disk_path, icon, color, sort_index, created_at, updated_at`

// CreateFolder inserts a folder row.
func (db *DB) CreateFolder(ctx context.Context, f *model.Folder) error {
	if err := f.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO folders (` + folderColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var diskPath sql.NullString
	if f.Kind.OwnsDirectory() {
		diskPath = sql.NullString{String: f.DiskPath, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, query,
		f.ID, f.Name, string(f.Kind),
		strToNull(f.ParentID), strToNull(f.LibraryID), diskPath,
		strToNull(f.Icon), strToNull(f.Color), f.SortIndex,
		f.CreatedAt.Format(time.RFC3339), f.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create folder %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFolder rewrites all mutable fields of a folder row.
func (db *DB) UpdateFolder(ctx context.Context, f *model.Folder) error {
	if err := f.Validate(); err != nil {
		return err
	}

	query := `
	UPDATE folders SET
		name = ?, kind = ?, parent_id = ?, library_id = ?, disk_path = ?,
		icon = ?, color = ?, sort_index = ?, updated_at = ?
	WHERE id = ?
	`

	var diskPath sql.NullString
	if f.Kind.OwnsDirectory() {
		diskPath = sql.NullString{String: f.DiskPath, Valid: true}
	}

	res, err := db.conn.ExecContext(ctx, query,
		f.Name, string(f.Kind), strToNull(f.ParentID), strToNull(f.LibraryID), diskPath,
		strToNull(f.Icon), strToNull(f.Color), f.SortIndex,
		time.Now().UTC().Format(time.RFC3339), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update folder %s: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("folder", f.ID)
	}
	return nil
}

// GetFolder retrieves a folder by id.
func (db *DB) GetFolder(ctx context.Context, id string) (*model.Folder, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("folder", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	return f, nil
}

// FindFolderByDiskPath retrieves the folder owning the given library-relative
// path, or nil if no folder owns it.
func (db *DB) FindFolderByDiskPath(ctx context.Context, diskPath string) (*model.Folder, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE disk_path = ?`, diskPath)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find folder by path %s: %w", diskPath, err)
	}
	return f, nil
}

// ListFolders returns every folder row. Used for the startup tree build.
func (db *DB) ListFolders(ctx context.Context) ([]*model.Folder, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders ORDER BY sort_index ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

// ListFolderPaths returns the disk paths of all directory-owning folders,
// excluding the library root's empty path.
func (db *DB) ListFolderPaths(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT disk_path FROM folders WHERE disk_path IS NOT NULL AND disk_path != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folder paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan folder path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folder paths: %w", err)
	}
	return paths, nil
}

// ListSubtreeFolderIDs returns the ids of the folder and every descendant.
func (db *DB) ListSubtreeFolderIDs(ctx context.Context, id string) ([]string, error) {
	query := `
	WITH RECURSIVE subtree(id) AS (
		SELECT id FROM folders WHERE id = ?
		UNION ALL
		SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
	)
	SELECT id FROM subtree
	`

	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query folder subtree: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			return nil, fmt.Errorf("failed to scan subtree id: %w", err)
		}
		ids = append(ids, fid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subtree: %w", err)
	}
	return ids, nil
}

// CountDocumentsInSubtree returns how many documents are owned by the folder
// or any of its descendants. Used for delete previews.
func (db *DB) CountDocumentsInSubtree(ctx context.Context, id string) (int, error) {
	query := `
	WITH RECURSIVE subtree(id) AS (
		SELECT id FROM folders WHERE id = ?
		UNION ALL
		SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
	)
	SELECT COUNT(*) FROM documents WHERE folder_id IN (SELECT id FROM subtree)
	`

	var count int
	if err := db.conn.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subtree documents: %w", err)
	}
	return count, nil
}

// ListSubtreeDocuments returns every document owned by the folder or any of
// its descendants.
func (db *DB) ListSubtreeDocuments(ctx context.Context, id string) ([]*model.Document, error) {
	query := `
	WITH RECURSIVE subtree(fid) AS (
		SELECT id FROM folders WHERE id = ?
		UNION ALL
		SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.fid
	)
	SELECT ` + documentColumns + ` FROM documents WHERE folder_id IN (SELECT fid FROM subtree)
	`

	rows, err := db.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// RenameFolderPaths applies a folder rename or move to the index in one
// transaction: the disk-path prefix of the folder and every descendant is
// rewritten, every document path under the old prefix is rewritten, and the
// folder row itself gets its new name and parent.
//
// The prefix rewrite is idempotent: retrying after a partial failure leaves
// already-rewritten rows untouched because they no longer match the old
// prefix. Folders that own no directory skip the rewrite entirely; their
// empty prefix would otherwise match the library root's empty disk path.
func (db *DB) RenameFolderPaths(ctx context.Context, f *model.Folder, oldPrefix, newPrefix string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	if f.Kind.OwnsDirectory() {
		like := escapeLike(oldPrefix) + `/%`

		// Folder itself plus all descendants by prefix.
		folderQuery := `
		UPDATE folders SET
			disk_path = ? || substr(disk_path, ?),
			updated_at = ?
		WHERE disk_path = ? OR disk_path LIKE ? ESCAPE '\'
		`
		if _, err := tx.ExecContext(ctx, folderQuery,
			newPrefix, len(oldPrefix)+1, now, oldPrefix, like); err != nil {
			return fmt.Errorf("failed to rewrite folder paths: %w", err)
		}

		docQuery := `
		UPDATE documents SET
			file_path = ? || substr(file_path, ?),
			updated_at = ?
		WHERE file_path = ? OR file_path LIKE ? ESCAPE '\'
		`
		if _, err := tx.ExecContext(ctx, docQuery,
			newPrefix, len(oldPrefix)+1, now, oldPrefix, like); err != nil {
			return fmt.Errorf("failed to rewrite document paths: %w", err)
		}
	}

	nameQuery := `UPDATE folders SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, nameQuery,
		f.Name, strToNull(f.ParentID), now, f.ID); err != nil {
		return fmt.Errorf("failed to update folder row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit path rewrite: %w", err)
	}
	return nil
}

// DeleteFolderCascade removes a folder and its descendants in one
// transaction. Every contained document is first detached: folder_id cleared
// and any present file marked missing, so no record keeps claiming a path
// under the deleted folder. Descendant folder rows are removed by the
// parent_id cascade, virtual-membership rows by their own cascade.
func (db *DB) DeleteFolderCascade(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	detachQuery := `
	WITH RECURSIVE subtree(fid) AS (
		SELECT id FROM folders WHERE id = ?
		UNION ALL
		SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.fid
	)
	UPDATE documents SET
		folder_id = NULL,
		presence_state = CASE WHEN presence_state = 'present' THEN 'missing' ELSE presence_state END,
		last_seen_at = CASE WHEN presence_state = 'present' THEN ? ELSE last_seen_at END,
		updated_at = ?
	WHERE folder_id IN (SELECT fid FROM subtree)
	`
	if _, err := tx.ExecContext(ctx, detachQuery, id, now, now); err != nil {
		return fmt.Errorf("failed to detach documents: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("folder", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit folder delete: %w", err)
	}
	return nil
}

// HasChildNamed reports whether parentID has a direct child folder with the
// given name.
func (db *DB) HasChildNamed(ctx context.Context, parentID, name string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM folders WHERE parent_id = ? AND name = ?`,
		parentID, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check sibling name: %w", err)
	}
	return count > 0, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFolder(s scanner) (*model.Folder, error) {
	var f model.Folder
	var kind string
	var parentID, libraryID, diskPath, icon, color sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&f.ID, &f.Name, &kind, &parentID, &libraryID, &diskPath,
		&icon, &color, &f.SortIndex, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	f.Kind = model.FolderKind(kind)
	f.ParentID = parentID.String
	f.LibraryID = libraryID.String
	f.DiskPath = diskPath.String
	f.Icon = icon.String
	f.Color = color.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		f.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		f.UpdatedAt = t
	}
	return &f, nil
}
