package inverted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/praxisworks/tabula/schema"
)

// DocType distinguishes whole-file parents from chunked children.
type DocType string

const (
	DocParent DocType = "parent"
	DocChild  DocType = "child"
)

// Embedder generates the dense vectors stored alongside text fields.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is one stored index document, parent or child.
type Document struct {
	KnowledgeID       string    `json:"knowledge_id"`
	FileID            string    `json:"file_id"`
	UserID            string    `json:"user_id"`
	PermissionLevel   string    `json:"permission_level"`
	DocType           DocType   `json:"doc_type"`
	ParentID          string    `json:"parent_id,omitempty"`
	ChunkIndex        int       `json:"chunk_index"`
	TotalChunks       int       `json:"total_chunks"`
	StartOffset       int       `json:"start_offset"`
	EndOffset         int       `json:"end_offset"`
	FullContentLength int       `json:"full_content_length,omitempty"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	Summary           string    `json:"summary,omitempty"`
	TitleVector       []float32 `json:"title_vector,omitempty"`
	ContentVector     []float32 `json:"content_vector,omitempty"`
}

// ParentID returns the parent document id of a file: {kbId}_{fileId}.
func ParentID(kbID, fileID string) string {
	return fmt.Sprintf("%s_%s", kbID, fileID)
}

// ChildID returns the id of the index-th child of a parent document.
func ChildID(parentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, index)
}

// IndexInput is the text of one file to be indexed.
type IndexInput struct {
	KnowledgeID string
	FileID      string
	UserID      string
	Visibility  schema.Visibility
	Title       string
	Summary     string
	Content     string
}

// IndexFile writes one parent document and its chunked children. The parent
// is written first; if the children bulk fails afterwards, the parent is
// deleted so no orphan remains — the pair is atomic from the caller's view.
func (c *Client) IndexFile(ctx context.Context, in IndexInput, embedder Embedder) error {
	if !c.enabled {
		return nil
	}

	title := in.Title
	if title == "" {
		title = firstLine(in.Content)
	}

	spans := SplitText(in.Content, childChunkSize, childChunkOverlap)
	parentID := ParentID(in.KnowledgeID, in.FileID)
	contentLength := len([]rune(in.Content))

	titleVector, err := embedder.EmbedQuery(ctx, title)
	if err != nil {
		return fmt.Errorf("inverted: embedding title: %w", err)
	}

	parent := Document{
		KnowledgeID:       in.KnowledgeID,
		FileID:            in.FileID,
		UserID:            in.UserID,
		PermissionLevel:   string(in.Visibility),
		DocType:           DocParent,
		TotalChunks:       len(spans),
		FullContentLength: contentLength,
		Title:             title,
		Content:           in.Content,
		Summary:           in.Summary,
		TitleVector:       titleVector,
	}
	if err := c.do(ctx, http.MethodPut, "/"+c.index+"/_doc/"+url.PathEscape(parentID), parent, nil); err != nil {
		return err
	}

	if len(spans) == 0 {
		return nil
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	contentVectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		c.deleteParent(ctx, parentID)
		return fmt.Errorf("inverted: embedding children: %w", err)
	}

	lines := make([]string, 0, len(spans)*2)
	for i, s := range spans {
		child := Document{
			KnowledgeID:     in.KnowledgeID,
			FileID:          in.FileID,
			UserID:          in.UserID,
			PermissionLevel: string(in.Visibility),
			DocType:         DocChild,
			ParentID:        parentID,
			ChunkIndex:      i,
			TotalChunks:     len(spans),
			StartOffset:     s.Start,
			EndOffset:       s.End,
			Title:           title,
			Content:         s.Text,
			TitleVector:     titleVector,
			ContentVector:   contentVectors[i],
		}
		action, _ := json.Marshal(map[string]any{
			"index": map[string]any{"_index": c.index, "_id": ChildID(parentID, i)},
		})
		source, err := json.Marshal(child)
		if err != nil {
			c.deleteParent(ctx, parentID)
			return fmt.Errorf("inverted: encoding child %d: %w", i, err)
		}
		lines = append(lines, string(action), string(source))
	}

	if err := c.bulk(ctx, lines); err != nil {
		// The parent must not outlive a failed children write.
		c.deleteParent(ctx, parentID)
		return err
	}
	return c.do(ctx, http.MethodPost, "/"+c.index+"/_refresh", nil, nil)
}

func (c *Client) deleteParent(ctx context.Context, parentID string) {
	if err := c.do(ctx, http.MethodDelete, "/"+c.index+"/_doc/"+url.PathEscape(parentID), nil, nil); err != nil {
		c.logger.Warn(ctx, "orphan parent cleanup failed", "parent_id", parentID, "error", err)
	}
}

// GetParent fetches a parent document by id.
func (c *Client) GetParent(ctx context.Context, parentID string) (*Document, error) {
	if !c.enabled {
		return nil, nil
	}
	var out struct {
		Found  bool     `json:"found"`
		Source Document `json:"_source"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+c.index+"/_doc/"+url.PathEscape(parentID), nil, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, nil
	}
	return &out.Source, nil
}

// DeleteByFile removes the parent and every child of a file: a match query
// on file_id, then one delete per hit.
func (c *Client) DeleteByFile(ctx context.Context, fileID string) error {
	return c.deleteByTerm(ctx, "file_id", fileID)
}

// DeleteByKnowledge removes every document of a knowledge base.
func (c *Client) DeleteByKnowledge(ctx context.Context, kbID string) error {
	return c.deleteByTerm(ctx, "knowledge_id", kbID)
}

func (c *Client) deleteByTerm(ctx context.Context, field, value string) error {
	if !c.enabled {
		return nil
	}
	query := map[string]any{
		"size":    10000,
		"_source": false,
		"query":   map[string]any{"match": map[string]any{field: value}},
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.index+"/_search", query, &out); err != nil {
		return err
	}
	for _, hit := range out.Hits.Hits {
		if err := c.do(ctx, http.MethodDelete, "/"+c.index+"/_doc/"+url.PathEscape(hit.ID), nil, nil); err != nil {
			return err
		}
	}
	return c.do(ctx, http.MethodPost, "/"+c.index+"/_refresh", nil, nil)
}

// CountByFile counts documents of a file, split into parents and children.
func (c *Client) CountByFile(ctx context.Context, fileID string) (parents, children int, err error) {
	if !c.enabled {
		return 0, 0, nil
	}
	for _, docType := range []DocType{DocParent, DocChild} {
		query := map[string]any{
			"query": map[string]any{
				"bool": map[string]any{
					"must": []any{
						map[string]any{"term": map[string]any{"file_id": fileID}},
						map[string]any{"term": map[string]any{"doc_type": string(docType)}},
					},
				},
			},
		}
		var out struct {
			Count int `json:"count"`
		}
		if err := c.do(ctx, http.MethodPost, "/"+c.index+"/_count", query, &out); err != nil {
			return 0, 0, err
		}
		if docType == DocParent {
			parents = out.Count
		} else {
			children = out.Count
		}
	}
	return parents, children, nil
}
