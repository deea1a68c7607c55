// Package ingest coordinates file ingestion across every store — catalog
// record, vector partition, inverted-index parent and children, and document
// graph — and drives the compensating cascades on deletion. The catalog is
// the source of truth; the indexes follow it.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxisworks/tabula/catalog"
	"github.com/praxisworks/tabula/inverted"
	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

// Vector-chunk geometry for the dense index; the inverted index has its own
// larger chunks.
const (
	vectorChunkSize    = 512
	vectorChunkOverlap = 128
)

// VectorIndex is the dense-index capability the service writes to.
type VectorIndex interface {
	Enabled() bool
	EnsureDocumentCollection(ctx context.Context, kbID string, dim int) error
	InsertDocuments(ctx context.Context, kbID, fileID string, rows []vector.DocumentRow) error
	DeleteFilePartition(ctx context.Context, kbID, fileID string) error
	DropCollection(ctx context.Context, collection string) error
}

// InvertedIndex is the inverted-index capability.
type InvertedIndex interface {
	Enabled() bool
	IndexFile(ctx context.Context, in inverted.IndexInput, embedder inverted.Embedder) error
	DeleteByFile(ctx context.Context, fileID string) error
	DeleteByKnowledge(ctx context.Context, kbID string) error
}

// GraphStore is the graph capability.
type GraphStore interface {
	Enabled() bool
	DeleteBySourceContains(ctx context.Context, chunkID string) error
}

// Service ingests and deletes files. One ingestion per file id runs at a
// time; other files proceed concurrently.
type Service struct {
	catalog   *catalog.Store
	vectors   VectorIndex
	texts     InvertedIndex
	graphs    GraphStore
	embedder  llm.Embedder
	dim       int
	fileDir   string
	logger    *o11y.Logger

	mu        sync.Mutex
	ingesting map[string]chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithFileDir sets the root of per-file working trees.
func WithFileDir(dir string) Option {
	return func(s *Service) { s.fileDir = dir }
}

// New creates the ingestion service.
func New(cat *catalog.Store, vectors VectorIndex, texts InvertedIndex, graphs GraphStore, embedder llm.Embedder, dim int, opts ...Option) *Service {
	s := &Service{
		catalog:   cat,
		vectors:   vectors,
		texts:     texts,
		graphs:    graphs,
		embedder:  embedder,
		dim:       dim,
		fileDir:   "conf/file",
		logger:    o11y.NewLogger(),
		ingesting: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// acquireFile serialises work per file id without refusing other files.
func (s *Service) acquireFile(ctx context.Context, fileID string) (release func(), err error) {
	for {
		s.mu.Lock()
		ch, busy := s.ingesting[fileID]
		if !busy {
			done := make(chan struct{})
			s.ingesting[fileID] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.ingesting, fileID)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Input is one file's already-extracted text plus its identity. The raw
// parsers are external; ingestion starts from text.
type Input struct {
	KnowledgeID string
	OwnerID     string
	Visibility  schema.Visibility
	SourceURL   string
	Title       string
	Summary     string
	Content     string
}

// IngestFile writes the file through every store and returns the new file
// record. Any store failure aborts the ingestion; writes already made to
// earlier stores are not rolled back, and every call mints a new file id.
func (s *Service) IngestFile(ctx context.Context, in Input) (schema.File, error) {
	fileID := uuid.NewString()

	release, err := s.acquireFile(ctx, fileID)
	if err != nil {
		return schema.File{}, err
	}
	defer release()

	file := schema.File{
		ID:          fileID,
		KnowledgeID: in.KnowledgeID,
		OwnerID:     in.OwnerID,
		Visibility:  in.Visibility,
		SourceURL:   in.SourceURL,
		Size:        int64(len(in.Content)),
		UploadedAt:  time.Now().UTC(),
	}

	// Working tree: the extracted text, written once as content.md. The
	// original upload is not stored here.
	dir := filepath.Join(s.fileDir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return schema.File{}, fmt.Errorf("ingest: creating working tree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "content.md"), []byte(in.Content), 0o644); err != nil {
		return schema.File{}, fmt.Errorf("ingest: writing content: %w", err)
	}
	file.LocalPath = dir

	if err := s.catalog.InsertFile(ctx, file); err != nil {
		return schema.File{}, err
	}
	if err := s.catalog.UpsertFileDetail(ctx, schema.FileDetail{
		FileID:  fileID,
		Title:   in.Title,
		Summary: in.Summary,
	}); err != nil {
		return schema.File{}, err
	}

	if err := s.indexVectors(ctx, file, in); err != nil {
		return schema.File{}, err
	}

	if s.texts != nil && s.texts.Enabled() {
		err := s.texts.IndexFile(ctx, inverted.IndexInput{
			KnowledgeID: in.KnowledgeID,
			FileID:      fileID,
			UserID:      in.OwnerID,
			Visibility:  in.Visibility,
			Title:       in.Title,
			Summary:     in.Summary,
			Content:     in.Content,
		}, s.embedder)
		if err != nil {
			return schema.File{}, err
		}
	}

	s.logger.Info(ctx, "file ingested", "file_id", fileID, "knowledge_id", in.KnowledgeID)
	return file, nil
}

// indexVectors splits the content into dense chunks and writes them into the
// file's partition of the KB collection.
func (s *Service) indexVectors(ctx context.Context, file schema.File, in Input) error {
	if s.vectors == nil || !s.vectors.Enabled() {
		return nil
	}
	spans := inverted.SplitText(in.Content, vectorChunkSize, vectorChunkOverlap)
	if len(spans) == 0 {
		return nil
	}
	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("ingest: embedding chunks: %w", err)
	}

	if err := s.vectors.EnsureDocumentCollection(ctx, in.KnowledgeID, s.dim); err != nil {
		return err
	}
	rows := make([]vector.DocumentRow, len(spans))
	for i, span := range spans {
		rows[i] = vector.DocumentRow{
			ID:         fmt.Sprintf("%s_chunk_%d", file.ID, i),
			FileID:     file.ID,
			Title:      in.Title,
			Content:    span.Text,
			Visibility: string(in.Visibility),
			Vector:     embeddings[i],
		}
	}
	return s.vectors.InsertDocuments(ctx, in.KnowledgeID, file.ID, rows)
}

// DeleteFile removes the file everywhere: catalog records (basic, detail,
// graph bookkeeping, side tables), the vector partition, the inverted-index
// parent with all children, and graph nodes whose source id contains the
// file id.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	release, err := s.acquireFile(ctx, fileID)
	if err != nil {
		return err
	}
	defer release()

	file, err := s.catalog.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	if s.vectors != nil && s.vectors.Enabled() {
		if err := s.vectors.DeleteFilePartition(ctx, file.KnowledgeID, fileID); err != nil {
			return err
		}
	}
	if s.texts != nil && s.texts.Enabled() {
		if err := s.texts.DeleteByFile(ctx, fileID); err != nil {
			return err
		}
	}
	if s.graphs != nil && s.graphs.Enabled() {
		if err := s.graphs.DeleteBySourceContains(ctx, fileID); err != nil {
			return err
		}
	}
	if err := s.catalog.DeleteFileRecords(ctx, fileID); err != nil {
		return err
	}

	if file.LocalPath != "" {
		if err := os.RemoveAll(file.LocalPath); err != nil {
			s.logger.Warn(ctx, "working tree removal failed", "path", file.LocalPath, "error", err)
		}
	}
	s.logger.Info(ctx, "file deleted", "file_id", fileID)
	return nil
}

// DeleteKnowledgeBase deletes every file of the KB, the KB's collection, and
// finally the KB record.
func (s *Service) DeleteKnowledgeBase(ctx context.Context, kbID string) error {
	files, err := s.catalog.ListFilesByKnowledgeBase(ctx, kbID)
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := s.DeleteFile(ctx, file.ID); err != nil {
			return err
		}
	}
	if s.vectors != nil && s.vectors.Enabled() {
		if err := s.vectors.DropCollection(ctx, kbID); err != nil {
			return err
		}
	}
	if s.texts != nil && s.texts.Enabled() {
		if err := s.texts.DeleteByKnowledge(ctx, kbID); err != nil {
			return err
		}
	}
	return s.catalog.DeleteKnowledgeBase(ctx, kbID)
}

// DeleteUser deletes every knowledge base and SQL database record the user
// owns, then the user record itself. Sessions are the conversation
// service's to sweep.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	kbs, err := s.catalog.ListKnowledgeBasesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, kb := range kbs {
		if err := s.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
			return err
		}
	}
	dbs, err := s.catalog.ListSQLDatabasesByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, db := range dbs {
		if err := s.catalog.DeleteSQLDatabase(ctx, db.ID); err != nil {
			return err
		}
	}
	return s.catalog.DeleteUser(ctx, userID)
}
