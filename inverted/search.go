package inverted

import (
	"context"
	"net/http"

	"github.com/praxisworks/tabula/schema"
)

// SearchHit is one result of a hybrid search, enriched with parent context
// when the hit is a child document.
type SearchHit struct {
	ID                string  `json:"id"`
	KnowledgeID       string  `json:"knowledge_id"`
	FileID            string  `json:"file_id"`
	DocType           DocType `json:"doc_type"`
	ParentID          string  `json:"parent_id,omitempty"`
	ChunkIndex        int     `json:"chunk_index"`
	Title             string  `json:"title"`
	Content           string  `json:"content"`
	Summary           string  `json:"summary,omitempty"`
	Score             float64 `json:"score"`
	IsParentDoc       bool    `json:"is_parent_doc,omitempty"`
	ParentTitle       string  `json:"parent_title,omitempty"`
	ParentSummary     string  `json:"parent_summary,omitempty"`
	FullContentLength int     `json:"full_content_length,omitempty"`
}

// SearchRequest is the input of a hybrid search.
type SearchRequest struct {
	KnowledgeID string
	Query       string
	QueryVector []float32
	// Owner widens the permission filter to private documents.
	Owner bool
	Size  int
}

// searchResponse mirrors the Elasticsearch hits envelope.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func hitFrom(id string, score float64, d Document) SearchHit {
	return SearchHit{
		ID:          id,
		KnowledgeID: d.KnowledgeID,
		FileID:      d.FileID,
		DocType:     d.DocType,
		ParentID:    d.ParentID,
		ChunkIndex:  d.ChunkIndex,
		Title:       d.Title,
		Content:     d.Content,
		Summary:     d.Summary,
		Score:       score,
	}
}

// baseFilter builds the boolean filter every sub-query shares: knowledge id,
// permission level, and doc type.
func baseFilter(kbID string, owner bool, docType DocType) []any {
	permissions := []string{string(schema.VisibilityPublic)}
	if owner {
		permissions = append(permissions, string(schema.VisibilityPrivate))
	}
	return []any{
		map[string]any{"term": map[string]any{"knowledge_id": kbID}},
		map[string]any{"terms": map[string]any{"permission_level": permissions}},
		map[string]any{"term": map[string]any{"doc_type": string(docType)}},
	}
}

// Search runs the hybrid retrieval: a full-text ranking and a dual-kNN
// vector ranking, fused client-side by Reciprocal Rank Fusion with k = 60.
// When fewer than size children match, parent documents top the list up,
// marked is_parent_doc. Child hits are enriched with their parent's title,
// summary, and full content length.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	if !c.enabled {
		return nil, nil
	}
	size := req.Size
	if size <= 0 {
		size = 10
	}
	filter := baseFilter(req.KnowledgeID, req.Owner, DocChild)

	// Text ranking: multi_match over title, content, summary.
	textRanking, err := c.searchText(ctx, filter, req.Query, size)
	if err != nil {
		return nil, err
	}

	// Vector ranking: both stored vectors in a single request; scores are
	// summed by the engine, producing one ranking.
	vectorRanking, err := c.searchVectors(ctx, filter, req.QueryVector, size)
	if err != nil {
		return nil, err
	}

	results := fuseRRF(size, textRanking, vectorRanking)

	// Parent top-up when children are scarce.
	if len(results) < size {
		parents, err := c.searchParents(ctx, req, size-len(results))
		if err != nil {
			return nil, err
		}
		results = append(results, parents...)
	}

	// Parent enrichment for child hits.
	for i := range results {
		if results[i].DocType != DocChild || results[i].ParentID == "" {
			continue
		}
		parent, err := c.GetParent(ctx, results[i].ParentID)
		if err != nil || parent == nil {
			continue
		}
		results[i].ParentTitle = parent.Title
		results[i].ParentSummary = parent.Summary
		results[i].FullContentLength = parent.FullContentLength
	}
	return results, nil
}

func (c *Client) searchText(ctx context.Context, filter []any, query string, size int) ([]ranked, error) {
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": filter,
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     query,
							"fields":    []string{"title^3", "content^2", "summary"},
							"operator":  "or",
							"fuzziness": "AUTO",
						},
					},
				},
			},
		},
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.index+"/_search", body, &out); err != nil {
		return nil, err
	}
	ranking := make([]ranked, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		ranking = append(ranking, ranked{id: h.ID, doc: hitFrom(h.ID, h.Score, h.Source)})
	}
	return ranking, nil
}

func (c *Client) searchVectors(ctx context.Context, filter []any, vector []float32, size int) ([]ranked, error) {
	knn := func(field string) map[string]any {
		return map[string]any{
			"field":          field,
			"query_vector":   vector,
			"k":              size * 2,
			"num_candidates": size * 4,
			"filter":         map[string]any{"bool": map[string]any{"filter": filter}},
		}
	}
	body := map[string]any{
		"size": size * 2,
		"knn":  []any{knn("title_vector"), knn("content_vector")},
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.index+"/_search", body, &out); err != nil {
		return nil, err
	}
	ranking := make([]ranked, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		ranking = append(ranking, ranked{id: h.ID, doc: hitFrom(h.ID, h.Score, h.Source)})
	}
	return ranking, nil
}

func (c *Client) searchParents(ctx context.Context, req SearchRequest, remaining int) ([]SearchHit, error) {
	body := map[string]any{
		"size": remaining,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilter(req.KnowledgeID, req.Owner, DocParent),
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     req.Query,
							"fields":    []string{"title^3", "content^2", "summary"},
							"operator":  "or",
							"fuzziness": "AUTO",
						},
					},
				},
			},
		},
	}
	var out searchResponse
	if err := c.do(ctx, http.MethodPost, "/"+c.index+"/_search", body, &out); err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hit := hitFrom(h.ID, h.Score, h.Source)
		hit.IsParentDoc = true
		hits = append(hits, hit)
	}
	return hits, nil
}
