// Package retrieval is the unified query-time search surface. It composes
// the capabilities that are actually enabled — dense vectors, the inverted
// index, and the graph store — guards them with the catalog's permission
// model, and returns one uniformly-shaped result list per engine. Ranks are
// never merged across engines.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/praxisworks/tabula/graph"
	"github.com/praxisworks/tabula/inverted"
	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

// Catalog is the slice of the metadata store the orchestrator needs.
type Catalog interface {
	IsKnowledgeBaseOwner(ctx context.Context, kbID, userID string) (bool, error)
	GetFileDetail(ctx context.Context, fileID string) (schema.FileDetail, error)
	GetGraphChunk(ctx context.Context, chunkID string) (string, error)
}

// VectorIndex is the dense-vector capability.
type VectorIndex interface {
	Enabled() bool
	SearchDocuments(ctx context.Context, kbID string, queryVector []float32, topK int, publicOnly bool) ([]vector.DocumentHit, error)
}

// InvertedIndex is the hybrid text+vector capability.
type InvertedIndex interface {
	Enabled() bool
	Search(ctx context.Context, req inverted.SearchRequest) ([]inverted.SearchHit, error)
}

// GraphIndex is the graph-expansion capability.
type GraphIndex interface {
	Enabled() bool
	Neighborhood(ctx context.Context, name string, publicOnly bool) (graph.QueryResult, error)
}

// Orchestrator fans a query out to every requested engine.
type Orchestrator struct {
	catalog  Catalog
	vectors  VectorIndex
	texts    InvertedIndex
	graphs   GraphIndex
	embedder llm.Embedder
	chat     llm.ChatModel
	logger   *o11y.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator over the given capabilities. Any index may be
// nil or disabled; it simply contributes no results.
func New(cat Catalog, vectors VectorIndex, texts InvertedIndex, graphs GraphIndex, embedder llm.Embedder, chat llm.ChatModel, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:  cat,
		vectors:  vectors,
		texts:    texts,
		graphs:   graphs,
		embedder: embedder,
		chat:     chat,
		logger:   o11y.NewLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Request is one retrieval call.
type Request struct {
	Query       string
	KnowledgeID string
	UserID      string
	TopK        int
	// Engines selects which indexes to consult. Empty means all enabled.
	Engines []schema.SearchEngine
}

// Results holds one ranked list per engine that ran.
type Results map[schema.SearchEngine][]schema.SearchItem

// Search runs the retrieval flow: resolve the permission flag, embed the
// query once, then fan out to every requested engine in parallel. Disabled
// engines contribute no list and no error.
func (o *Orchestrator) Search(ctx context.Context, req Request) (Results, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	owner, err := o.catalog.IsKnowledgeBaseOwner(ctx, req.KnowledgeID, req.UserID)
	if err != nil {
		return nil, err
	}
	publicOnly := !owner

	wanted := func(engine schema.SearchEngine) bool {
		if len(req.Engines) == 0 {
			return true
		}
		for _, e := range req.Engines {
			if e == engine {
				return true
			}
		}
		return false
	}

	var queryVector []float32
	needsEmbedding := (wanted(schema.EngineMilvus) && o.vectors != nil && o.vectors.Enabled()) ||
		(wanted(schema.EngineElasticsearch) && o.texts != nil && o.texts.Enabled())
	if needsEmbedding {
		queryVector, err = o.embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			return nil, err
		}
	}

	results := Results{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	if wanted(schema.EngineMilvus) && o.vectors != nil && o.vectors.Enabled() {
		g.Go(func() error {
			items, err := o.searchVectors(gctx, req.KnowledgeID, queryVector, topK, publicOnly)
			if err != nil {
				return err
			}
			mu.Lock()
			results[schema.EngineMilvus] = items
			mu.Unlock()
			o11y.SearchPerformed(gctx, string(schema.EngineMilvus))
			return nil
		})
	}

	if wanted(schema.EngineElasticsearch) && o.texts != nil && o.texts.Enabled() {
		g.Go(func() error {
			items, err := o.searchInverted(gctx, req, queryVector, topK, owner)
			if err != nil {
				return err
			}
			mu.Lock()
			results[schema.EngineElasticsearch] = items
			mu.Unlock()
			o11y.SearchPerformed(gctx, string(schema.EngineElasticsearch))
			return nil
		})
	}

	if wanted(schema.EngineGraph) && o.graphs != nil && o.graphs.Enabled() {
		g.Go(func() error {
			items, err := o.searchGraph(gctx, req.Query, publicOnly)
			if err != nil {
				return err
			}
			mu.Lock()
			results[schema.EngineGraph] = items
			mu.Unlock()
			o11y.SearchPerformed(gctx, string(schema.EngineGraph))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) searchVectors(ctx context.Context, kbID string, queryVector []float32, topK int, publicOnly bool) ([]schema.SearchItem, error) {
	hits, err := o.vectors.SearchDocuments(ctx, kbID, queryVector, topK, publicOnly)
	if err != nil {
		return nil, err
	}
	items := make([]schema.SearchItem, 0, len(hits))
	for _, h := range hits {
		item := schema.SearchItem{
			Title:        h.Title,
			Content:      h.Content,
			Score:        h.Score,
			Source:       h.FileID,
			SearchEngine: schema.EngineMilvus,
			Metadata:     map[string]any{"file_id": h.FileID, "chunk_id": h.ID},
		}
		if detail, err := o.catalog.GetFileDetail(ctx, h.FileID); err == nil {
			item.FileDetail = &detail
		}
		items = append(items, item)
	}
	return items, nil
}

func (o *Orchestrator) searchInverted(ctx context.Context, req Request, queryVector []float32, topK int, owner bool) ([]schema.SearchItem, error) {
	hits, err := o.texts.Search(ctx, inverted.SearchRequest{
		KnowledgeID: req.KnowledgeID,
		Query:       req.Query,
		QueryVector: queryVector,
		Owner:       owner,
		Size:        topK,
	})
	if err != nil {
		return nil, err
	}
	items := make([]schema.SearchItem, 0, len(hits))
	for _, h := range hits {
		item := schema.SearchItem{
			Title:        h.Title,
			Content:      h.Content,
			Score:        h.Score,
			Source:       h.FileID,
			SearchEngine: schema.EngineElasticsearch,
			Metadata: map[string]any{
				"file_id":       h.FileID,
				"doc_id":        h.ID,
				"doc_type":      string(h.DocType),
				"is_parent_doc": h.IsParentDoc,
			},
		}
		if h.ParentTitle != "" {
			item.Metadata["parent_title"] = h.ParentTitle
			item.Metadata["parent_summary"] = h.ParentSummary
			item.Metadata["full_content_length"] = h.FullContentLength
		}
		if detail, err := o.catalog.GetFileDetail(ctx, h.FileID); err == nil {
			item.FileDetail = &detail
		}
		items = append(items, item)
	}
	return items, nil
}

// extraction is the JSON shape the entity-extraction sub-agent returns.
type extraction struct {
	Entities []string `json:"entities"`
	Keywords []string `json:"keywords"`
}

// searchGraph extracts entities and keywords from the query, expands one hop
// around every matched node, enriches nodes with their source chunks, and
// scores each result by term overlap with the query.
func (o *Orchestrator) searchGraph(ctx context.Context, query string, publicOnly bool) ([]schema.SearchItem, error) {
	extracted := o.extractEntities(ctx, query)

	queryTerms := termSet(query)
	var items []schema.SearchItem
	seen := map[string]bool{}

	for _, name := range append(extracted.Entities, extracted.Keywords...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		result, err := o.graphs.Neighborhood(ctx, name, publicOnly)
		if err != nil {
			o.logger.Warn(ctx, "graph expansion failed", "entity", name, "error", err)
			continue
		}
		for _, node := range result.Nodes {
			content := nodeContent(node)
			if sourceID := getStringProp(node.Props, "source_id"); sourceID != "" {
				if chunk, err := o.catalog.GetGraphChunk(ctx, sourceID); err == nil && chunk != "" {
					content = chunk
				}
			}
			items = append(items, schema.SearchItem{
				Title:        getStringProp(node.Props, "name"),
				Content:      content,
				Score:        overlapScore(queryTerms, content),
				Source:       getStringProp(node.Props, "source_id"),
				SearchEngine: schema.EngineGraph,
				Metadata: map[string]any{
					"node_id": node.ID,
					"label":   node.Label,
				},
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items, nil
}

// extractEntities asks the chat model for entities and keywords; the
// documented fallback is a plain whitespace tokenisation of the query.
func (o *Orchestrator) extractEntities(ctx context.Context, query string) extraction {
	fallback := func() extraction {
		return extraction{Keywords: strings.Fields(query)}
	}
	if o.chat == nil {
		return fallback()
	}
	result, err := llm.GenerateJSON(ctx, o.chat, []llm.Message{
		llm.System(`Extract the entities and keywords of the user's question. Respond with JSON: {"entities": [...], "keywords": [...]}.`),
		llm.User(query),
	}, fallback)
	if err != nil {
		return fallback()
	}
	return result
}

func nodeContent(n graph.Node) string {
	if d := getStringProp(n.Props, "description"); d != "" {
		return d
	}
	return getStringProp(n.Props, "name")
}

func getStringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

// termSet lower-cases and splits text into a set of terms.
func termSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, t := range strings.Fields(strings.ToLower(text)) {
		set[t] = true
	}
	return set
}

// overlapScore is the fraction of the content's terms that appear in the
// query term set.
func overlapScore(queryTerms map[string]bool, content string) float64 {
	terms := strings.Fields(strings.ToLower(content))
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range terms {
		if queryTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
