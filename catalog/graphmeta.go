package catalog

import (
	"context"

	"github.com/praxisworks/tabula/schema"
)

// InsertGraphChunk records one chunk used for document-graph extraction.
func (s *Store) InsertGraphChunk(ctx context.Context, chunkID, fileID, kbID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_chunk (chunk_id, file_id, knowledge_id, content) VALUES (?, ?, ?, ?)`,
		chunkID, fileID, kbID, content)
	if err != nil {
		return &Error{Op: "catalog.InsertGraphChunk", Err: err}
	}
	return nil
}

// InsertGraphNode records one extracted graph element.
func (s *Store) InsertGraphNode(ctx context.Context, el schema.GraphElement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO graph_node (node_id, file_id, knowledge_id, source_id, name, kind, description, permission_level)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		el.ID, el.FileID, el.KnowledgeID, el.SourceID, el.Name, el.Kind, el.Description, string(el.Visibility))
	if err != nil {
		return &Error{Op: "catalog.InsertGraphNode", Err: err}
	}
	return nil
}

// InsertGraphRelation records one extracted relation between graph elements.
func (s *Store) InsertGraphRelation(ctx context.Context, relationID, fileID, kbID, sourceID, fromNode, toNode, label string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_relation (relation_id, file_id, knowledge_id, source_id, from_node, to_node, label)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		relationID, fileID, kbID, sourceID, fromNode, toNode, label)
	if err != nil {
		return &Error{Op: "catalog.InsertGraphRelation", Err: err}
	}
	return nil
}

// CountGraphNodesByFile counts graph bookkeeping rows referencing a file.
func (s *Store) CountGraphNodesByFile(ctx context.Context, fileID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM graph_node WHERE file_id = ?`, fileID).Scan(&n)
	if err != nil {
		return 0, &Error{Op: "catalog.CountGraphNodesByFile", Err: err}
	}
	return n, nil
}

// GetGraphChunk fetches a chunk's stored text, used to enrich graph search
// results with their source passages.
func (s *Store) GetGraphChunk(ctx context.Context, chunkID string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(content, '') FROM graph_chunk WHERE chunk_id = ?`, chunkID).Scan(&content)
	if err != nil {
		return "", notFound("catalog.GetGraphChunk", "graph chunk")
	}
	return content, nil
}

// InsertImageFile records an image side-table entry for a file.
func (s *Store) InsertImageFile(ctx context.Context, imageID, fileID, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_file (image_id, file_id, path) VALUES (?, ?, ?)`, imageID, fileID, path)
	if err != nil {
		return &Error{Op: "catalog.InsertImageFile", Err: err}
	}
	return nil
}

// InsertTableData records an extracted-table side-table entry for a file.
func (s *Store) InsertTableData(ctx context.Context, tableDataID, fileID, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO table_data (table_data_id, file_id, content) VALUES (?, ?, ?)`, tableDataID, fileID, content)
	if err != nil {
		return &Error{Op: "catalog.InsertTableData", Err: err}
	}
	return nil
}
