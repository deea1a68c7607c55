// Package schema defines the shared data types of the knowledge-base backend:
// retrieval documents, streaming chunk envelopes, conversation sessions,
// SQL-schema metadata, and schema-analysis elements. Every wire and store shape
// in the system is an explicit struct from this package; internal code never
// reaches into untyped maps.
package schema

// Document is a piece of text with metadata, as stored in or returned by an
// index. Score is populated on search results; Embedding on ingestion.
type Document struct {
	ID        string         `json:"id,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// NewDocument creates a Document with content and metadata.
func NewDocument(content string, metadata map[string]any) Document {
	return Document{Content: content, Metadata: metadata}
}

// SearchEngine identifies which index produced a search result.
type SearchEngine string

const (
	EngineMilvus        SearchEngine = "milvus"
	EngineElasticsearch SearchEngine = "elasticsearch"
	EngineGraph         SearchEngine = "graph_data"
)

// SearchItem is the uniform result shape the retrieval orchestrator returns
// for every engine. Per-engine lists are never rank-merged; callers receive
// one list per engine, each item tagged with its SearchEngine.
type SearchItem struct {
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	Source       string         `json:"source"`
	SearchEngine SearchEngine   `json:"search_engine"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	FileDetail   *FileDetail    `json:"file_detail,omitempty"`
}

// Visibility controls who may retrieve a file's derived index entries.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)
