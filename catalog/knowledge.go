package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/praxisworks/tabula/schema"
)

// InsertKnowledgeBase stores a new knowledge base.
func (s *Store) InsertKnowledgeBase(ctx context.Context, kb schema.KnowledgeBase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_base (knowledge_id, user_id, knowledge_name, description, valid_from, valid_until, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		kb.ID, kb.OwnerID, kb.Name, kb.Description,
		formatTime(kb.ValidFrom), formatTime(kb.ValidUntil),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return &Error{Op: "catalog.InsertKnowledgeBase", Err: err}
	}
	return nil
}

// GetKnowledgeBase fetches a knowledge base by id.
func (s *Store) GetKnowledgeBase(ctx context.Context, id string) (schema.KnowledgeBase, error) {
	var kb schema.KnowledgeBase
	var validFrom, validUntil sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT knowledge_id, user_id, knowledge_name, COALESCE(description, ''), valid_from, valid_until
		 FROM knowledge_base WHERE knowledge_id = ?`, id).
		Scan(&kb.ID, &kb.OwnerID, &kb.Name, &kb.Description, &validFrom, &validUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.KnowledgeBase{}, notFound("catalog.GetKnowledgeBase", "knowledge base")
	}
	if err != nil {
		return schema.KnowledgeBase{}, &Error{Op: "catalog.GetKnowledgeBase", Err: err}
	}
	kb.ValidFrom = parseTime(validFrom)
	kb.ValidUntil = parseTime(validUntil)
	return kb, nil
}

// ListKnowledgeBasesByUser returns every knowledge base a user owns.
func (s *Store) ListKnowledgeBasesByUser(ctx context.Context, userID string) ([]schema.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT knowledge_id, user_id, knowledge_name, COALESCE(description, '')
		 FROM knowledge_base WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListKnowledgeBasesByUser", Err: err}
	}
	defer rows.Close()

	var kbs []schema.KnowledgeBase
	for rows.Next() {
		var kb schema.KnowledgeBase
		if err := rows.Scan(&kb.ID, &kb.OwnerID, &kb.Name, &kb.Description); err != nil {
			return nil, &Error{Op: "catalog.ListKnowledgeBasesByUser", Err: err}
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

// IsKnowledgeBaseOwner reports whether userID owns the knowledge base.
func (s *Store) IsKnowledgeBaseOwner(ctx context.Context, kbID, userID string) (bool, error) {
	kb, err := s.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return false, err
	}
	return kb.OwnerID == userID, nil
}

// DeleteKnowledgeBase removes the KB record only. The caller drives the file
// cascade first (ListFilesByKnowledgeBase, then per-file deletion across all
// stores).
func (s *Store) DeleteKnowledgeBase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_base WHERE knowledge_id = ?`, id)
	if err != nil {
		return &Error{Op: "catalog.DeleteKnowledgeBase", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("catalog.DeleteKnowledgeBase", "knowledge base")
	}
	return nil
}

// InsertFile stores a file's basic record.
func (s *Store) InsertFile(ctx context.Context, f schema.File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO file_basic_info (file_id, knowledge_id, user_id, permission_level, source_url, local_path, size, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.KnowledgeID, f.OwnerID, string(f.Visibility), f.SourceURL, f.LocalPath, f.Size,
		f.UploadedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return &Error{Op: "catalog.InsertFile", Err: err}
	}
	return nil
}

// GetFile fetches a file's basic record.
func (s *Store) GetFile(ctx context.Context, fileID string) (schema.File, error) {
	var f schema.File
	var visibility, uploadedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id, knowledge_id, user_id, permission_level, COALESCE(source_url, ''), COALESCE(local_path, ''), size, uploaded_at
		 FROM file_basic_info WHERE file_id = ?`, fileID).
		Scan(&f.ID, &f.KnowledgeID, &f.OwnerID, &visibility, &f.SourceURL, &f.LocalPath, &f.Size, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.File{}, notFound("catalog.GetFile", "file")
	}
	if err != nil {
		return schema.File{}, &Error{Op: "catalog.GetFile", Err: err}
	}
	f.Visibility = schema.Visibility(visibility)
	f.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
	return f, nil
}

// ListFilesByKnowledgeBase returns every file of a knowledge base.
func (s *Store) ListFilesByKnowledgeBase(ctx context.Context, kbID string) ([]schema.File, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, knowledge_id, user_id, permission_level, COALESCE(source_url, ''), COALESCE(local_path, ''), size, uploaded_at
		 FROM file_basic_info WHERE knowledge_id = ? ORDER BY uploaded_at`, kbID)
	if err != nil {
		return nil, &Error{Op: "catalog.ListFilesByKnowledgeBase", Err: err}
	}
	defer rows.Close()

	var files []schema.File
	for rows.Next() {
		var f schema.File
		var visibility, uploadedAt string
		if err := rows.Scan(&f.ID, &f.KnowledgeID, &f.OwnerID, &visibility, &f.SourceURL, &f.LocalPath, &f.Size, &uploadedAt); err != nil {
			return nil, &Error{Op: "catalog.ListFilesByKnowledgeBase", Err: err}
		}
		f.Visibility = schema.Visibility(visibility)
		f.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
		files = append(files, f)
	}
	return files, rows.Err()
}

// CountFilesByKnowledgeBase counts files in a KB, optionally restricted to a
// visibility level ("" counts all).
func (s *Store) CountFilesByKnowledgeBase(ctx context.Context, kbID string, visibility schema.Visibility) (int, error) {
	query := `SELECT COUNT(*) FROM file_basic_info WHERE knowledge_id = ?`
	args := []any{kbID}
	if visibility != "" {
		query += ` AND permission_level = ?`
		args = append(args, string(visibility))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, &Error{Op: "catalog.CountFilesByKnowledgeBase", Err: err}
	}
	return n, nil
}

// DeleteFileRecords removes the file's catalog rows: the basic record, the
// detail record, graph bookkeeping rows, and the image/table side-tables.
// Index stores are swept by the caller.
func (s *Store) DeleteFileRecords(ctx context.Context, fileID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM graph_relation WHERE file_id = ?`,
			`DELETE FROM graph_node WHERE file_id = ?`,
			`DELETE FROM graph_chunk WHERE file_id = ?`,
			`DELETE FROM image_file WHERE file_id = ?`,
			`DELETE FROM table_data WHERE file_id = ?`,
			`DELETE FROM file_detail_info WHERE file_id = ?`,
			`DELETE FROM file_basic_info WHERE file_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, fileID); err != nil {
				return &Error{Op: "catalog.DeleteFileRecords", Err: err}
			}
		}
		return nil
	})
}

// UpsertFileDetail stores or replaces a file's parsed detail record.
func (s *Store) UpsertFileDetail(ctx context.Context, d schema.FileDetail) error {
	authors, err := json.Marshal(d.Authors)
	if err != nil {
		return &Error{Op: "catalog.UpsertFileDetail", Err: err}
	}
	toc, err := json.Marshal(d.TableOfContents)
	if err != nil {
		return &Error{Op: "catalog.UpsertFileDetail", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO file_detail_info (file_id, title, summary, authors, category, table_of_contents)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.FileID, d.Title, d.Summary, string(authors), d.Category, string(toc))
	if err != nil {
		return &Error{Op: "catalog.UpsertFileDetail", Err: err}
	}
	return nil
}

// GetFileDetail fetches a file's parsed detail record.
func (s *Store) GetFileDetail(ctx context.Context, fileID string) (schema.FileDetail, error) {
	var d schema.FileDetail
	var authors, toc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT file_id, COALESCE(title, ''), COALESCE(summary, ''), authors, COALESCE(category, ''), table_of_contents
		 FROM file_detail_info WHERE file_id = ?`, fileID).
		Scan(&d.FileID, &d.Title, &d.Summary, &authors, &d.Category, &toc)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.FileDetail{}, notFound("catalog.GetFileDetail", "file detail")
	}
	if err != nil {
		return schema.FileDetail{}, &Error{Op: "catalog.GetFileDetail", Err: err}
	}
	if authors.Valid && authors.String != "" {
		_ = json.Unmarshal([]byte(authors.String), &d.Authors)
	}
	if toc.Valid && toc.String != "" {
		_ = json.Unmarshal([]byte(toc.String), &d.TableOfContents)
	}
	return d, nil
}

// CountFileRecords returns how many catalog rows reference the file across
// the basic and detail tables. Used by the deletion invariant checks.
func (s *Store) CountFileRecords(ctx context.Context, fileID string) (basic, detail int, err error) {
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_basic_info WHERE file_id = ?`, fileID).Scan(&basic); err != nil {
		return 0, 0, &Error{Op: "catalog.CountFileRecords", Err: err}
	}
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_detail_info WHERE file_id = ?`, fileID).Scan(&detail); err != nil {
		return 0, 0, &Error{Op: "catalog.CountFileRecords", Err: err}
	}
	return basic, detail, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s.String)
	return t
}
