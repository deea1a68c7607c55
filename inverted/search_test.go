package inverted

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/schema"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithIndex("test_idx"), WithDimension(3), WithHTTPClient(srv.Client()))
}

// stubEmbedder returns fixed-size zero vectors.
type stubEmbedder struct{ dim int }

func (s stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

func (s stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

func TestNew_Defaults(t *testing.T) {
	c := New("http://localhost:9200")
	assert.Equal(t, DefaultIndex, c.index)
	assert.True(t, c.Enabled())
}

func TestClient_Disabled(t *testing.T) {
	c := New("http://localhost:9200", WithDisabled())
	hits, err := c.Search(context.Background(), SearchRequest{KnowledgeID: "kb1", Query: "q"})
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestParentAndChildIDs(t *testing.T) {
	assert.Equal(t, "kb1_f1", ParentID("kb1", "f1"))
	assert.Equal(t, "kb1_f1_chunk_0", ChildID("kb1_f1", 0))
	assert.Equal(t, "kb1_f1_chunk_7", ChildID("kb1_f1", 7))
}

func TestIndexFile_ParentThenChildren(t *testing.T) {
	var parentPut bool
	var bulkBody string

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/test_idx/_doc/"):
			parentPut = true
			assert.Equal(t, "/test_idx/_doc/kb1_f1", r.URL.Path)
			var doc Document
			json.NewDecoder(r.Body).Decode(&doc)
			assert.Equal(t, DocParent, doc.DocType)
			assert.Equal(t, len([]rune("The scheduler coordinates retries and backpressure.")), doc.FullContentLength)
			w.Write([]byte(`{"result":"created"}`))
		case r.URL.Path == "/_bulk":
			assert.True(t, parentPut, "parent is written before children")
			assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
			raw, _ := io.ReadAll(r.Body)
			bulkBody = string(raw)
			w.Write([]byte(`{"errors":false,"items":[]}`))
		case r.URL.Path == "/test_idx/_refresh":
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	err := c.IndexFile(context.Background(), IndexInput{
		KnowledgeID: "kb1",
		FileID:      "f1",
		UserID:      "u1",
		Visibility:  schema.VisibilityPublic,
		Title:       "intro",
		Content:     "The scheduler coordinates retries and backpressure.",
	}, stubEmbedder{dim: 3})
	require.NoError(t, err)

	assert.Contains(t, bulkBody, `"_id":"kb1_f1_chunk_0"`)
	assert.Contains(t, bulkBody, `"doc_type":"child"`)
	assert.Contains(t, bulkBody, `"parent_id":"kb1_f1"`)
}

func TestIndexFile_ChildrenFailureDeletesParent(t *testing.T) {
	var parentDeleted bool

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"result":"created"}`))
		case r.URL.Path == "/_bulk":
			w.Write([]byte(`{"errors":true,"items":[{"index":{"status":500,"error":{"reason":"shard failure"}}}]}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/test_idx/_doc/kb1_f1":
			parentDeleted = true
			w.Write([]byte(`{"result":"deleted"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	err := c.IndexFile(context.Background(), IndexInput{
		KnowledgeID: "kb1", FileID: "f1", Visibility: schema.VisibilityPublic,
		Title: "t", Content: "some content",
	}, stubEmbedder{dim: 3})
	require.Error(t, err)
	assert.True(t, parentDeleted, "a failed children bulk must remove the parent")
}

func TestSearch_HybridRequestShape(t *testing.T) {
	var textBody, knnBody map[string]any

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test_idx/_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, isKNN := body["knn"]; isKNN {
			knnBody = body
		} else {
			textBody = body
		}
		w.Write([]byte(`{"hits":{"hits":[]}}`))
	})

	_, err := c.Search(context.Background(), SearchRequest{
		KnowledgeID: "kb1",
		Query:       "scheduler retries",
		QueryVector: []float32{0.1, 0.2, 0.3},
		Owner:       false,
		Size:        5,
	})
	require.NoError(t, err)

	// Text sub-query: multi_match with boosts and fuzziness.
	must := textBody["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	mm := must[0].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "scheduler retries", mm["query"])
	assert.ElementsMatch(t, []any{"title^3", "content^2", "summary"}, mm["fields"].([]any))
	assert.Equal(t, "AUTO", mm["fuzziness"])

	// Non-owner permission filter restricts to public only.
	filter := textBody["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	var permTerms []any
	for _, f := range filter {
		if terms, ok := f.(map[string]any)["terms"]; ok {
			permTerms = terms.(map[string]any)["permission_level"].([]any)
		}
	}
	assert.Equal(t, []any{"public"}, permTerms)

	// Two kNN sub-queries with k = 2*size and num_candidates = 4*size.
	knn := knnBody["knn"].([]any)
	require.Len(t, knn, 2)
	for _, k := range knn {
		km := k.(map[string]any)
		assert.Equal(t, float64(10), km["k"])
		assert.Equal(t, float64(20), km["num_candidates"])
	}
	assert.Equal(t, "title_vector", knn[0].(map[string]any)["field"])
	assert.Equal(t, "content_vector", knn[1].(map[string]any)["field"])
}

func TestSearch_ParentTopUpAndEnrichment(t *testing.T) {
	searchCalls := 0

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/test_idx/_search":
			searchCalls++
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			switch searchCalls {
			case 1: // text over children: one hit
				w.Write([]byte(`{"hits":{"hits":[
					{"_id":"kb1_f1_chunk_0","_score":2.1,"_source":{"knowledge_id":"kb1","file_id":"f1","doc_type":"child","parent_id":"kb1_f1","title":"intro","content":"chunk text"}}
				]}}`))
			case 2: // vector over children: same hit
				w.Write([]byte(`{"hits":{"hits":[
					{"_id":"kb1_f1_chunk_0","_score":0.9,"_source":{"knowledge_id":"kb1","file_id":"f1","doc_type":"child","parent_id":"kb1_f1","title":"intro","content":"chunk text"}}
				]}}`))
			default: // parent top-up
				w.Write([]byte(`{"hits":{"hits":[
					{"_id":"kb1_f2","_score":1.0,"_source":{"knowledge_id":"kb1","file_id":"f2","doc_type":"parent","title":"other doc","content":"full text"}}
				]}}`))
			}
		case r.Method == http.MethodGet && r.URL.Path == "/test_idx/_doc/kb1_f1":
			w.Write([]byte(`{"found":true,"_source":{"doc_type":"parent","title":"Intro Doc","summary":"about scheduling","full_content_length":5120}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	hits, err := c.Search(context.Background(), SearchRequest{
		KnowledgeID: "kb1", Query: "q", QueryVector: []float32{0, 0, 0}, Size: 3,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	child := hits[0]
	assert.Equal(t, DocChild, child.DocType)
	assert.Equal(t, "Intro Doc", child.ParentTitle)
	assert.Equal(t, "about scheduling", child.ParentSummary)
	assert.Equal(t, 5120, child.FullContentLength)
	// Fused score of a doc ranked 1 in both lists.
	assert.InDelta(t, 2.0/61, child.Score, 1e-12)

	parent := hits[1]
	assert.True(t, parent.IsParentDoc)
	assert.Equal(t, DocParent, parent.DocType)
}

func TestDeleteByFile(t *testing.T) {
	var deleted []string

	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/test_idx/_search":
			w.Write([]byte(`{"hits":{"hits":[{"_id":"kb1_f1"},{"_id":"kb1_f1_chunk_0"},{"_id":"kb1_f1_chunk_1"}]}}`))
		case r.Method == http.MethodDelete:
			deleted = append(deleted, strings.TrimPrefix(r.URL.Path, "/test_idx/_doc/"))
			w.Write([]byte(`{"result":"deleted"}`))
		case r.URL.Path == "/test_idx/_refresh":
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, c.DeleteByFile(context.Background(), "f1"))
	assert.ElementsMatch(t, []string{"kb1_f1", "kb1_f1_chunk_0", "kb1_f1_chunk_1"}, deleted)
}
