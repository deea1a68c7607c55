package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/catalog"
	"github.com/praxisworks/tabula/inverted"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/vector"
)

// fakeVectors records partitions per (kb, file).
type fakeVectors struct {
	mu         sync.Mutex
	partitions map[string][]vector.DocumentRow
	dropped    []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{partitions: map[string][]vector.DocumentRow{}}
}

func (f *fakeVectors) key(kbID, fileID string) string { return kbID + "/" + fileID }

func (f *fakeVectors) Enabled() bool { return true }

func (f *fakeVectors) EnsureDocumentCollection(ctx context.Context, kbID string, dim int) error {
	return nil
}

func (f *fakeVectors) InsertDocuments(ctx context.Context, kbID, fileID string, rows []vector.DocumentRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[f.key(kbID, fileID)] = append(f.partitions[f.key(kbID, fileID)], rows...)
	return nil
}

func (f *fakeVectors) DeleteFilePartition(ctx context.Context, kbID, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.partitions, f.key(kbID, fileID))
	return nil
}

func (f *fakeVectors) DropCollection(ctx context.Context, collection string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, collection)
	for key := range f.partitions {
		if filepath.Dir(key) == collection {
			delete(f.partitions, key)
		}
	}
	return nil
}

// fakeInverted tracks parent/children documents per file.
type fakeInverted struct {
	mu    sync.Mutex
	files map[string]inverted.IndexInput
}

func newFakeInverted() *fakeInverted {
	return &fakeInverted{files: map[string]inverted.IndexInput{}}
}

func (f *fakeInverted) Enabled() bool { return true }

func (f *fakeInverted) IndexFile(ctx context.Context, in inverted.IndexInput, embedder inverted.Embedder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[in.FileID] = in
	return nil
}

func (f *fakeInverted) DeleteByFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, fileID)
	return nil
}

func (f *fakeInverted) DeleteByKnowledge(ctx context.Context, kbID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, in := range f.files {
		if in.KnowledgeID == kbID {
			delete(f.files, id)
		}
	}
	return nil
}

type fakeGraph struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeGraph) Enabled() bool { return true }

func (f *fakeGraph) DeleteBySourceContains(ctx context.Context, chunkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, chunkID)
	return nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (fixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func newTestService(t *testing.T) (*Service, *catalog.Store, *fakeVectors, *fakeInverted, *fakeGraph) {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	vectors := newFakeVectors()
	texts := newFakeInverted()
	graphs := &fakeGraph{}

	svc := New(cat, vectors, texts, graphs, fixedEmbedder{}, 2,
		WithFileDir(filepath.Join(t.TempDir(), "files")))
	return svc, cat, vectors, texts, graphs
}

func TestIngestFile_WritesEverywhere(t *testing.T) {
	svc, cat, vectors, texts, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, cat.InsertKnowledgeBase(ctx, schema.KnowledgeBase{ID: "kb1", OwnerID: "u1", Name: "docs"}))

	file, err := svc.IngestFile(ctx, Input{
		KnowledgeID: "kb1",
		OwnerID:     "u1",
		Visibility:  schema.VisibilityPublic,
		Title:       "intro",
		Content:     "The scheduler coordinates retries and backpressure.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, file.ID)

	// Catalog record exists.
	got, err := cat.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "kb1", got.KnowledgeID)

	// Vector partition named by the file id, chunk ids derived from it.
	rows := vectors.partitions["kb1/"+file.ID]
	require.NotEmpty(t, rows)
	assert.Equal(t, file.ID+"_chunk_0", rows[0].ID)
	assert.Equal(t, file.ID, rows[0].FileID)

	// Inverted index received the file.
	_, indexed := texts.files[file.ID]
	assert.True(t, indexed)
}

func TestDeleteFile_CascadesEverywhere(t *testing.T) {
	svc, cat, vectors, texts, graphs := newTestService(t)
	ctx := context.Background()

	require.NoError(t, cat.InsertKnowledgeBase(ctx, schema.KnowledgeBase{ID: "kb1", OwnerID: "u1", Name: "docs"}))
	file, err := svc.IngestFile(ctx, Input{
		KnowledgeID: "kb1", OwnerID: "u1", Visibility: schema.VisibilityPrivate,
		Title: "doc", Content: "some content to index",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, file.ID))

	// Catalog: zero records of any kind.
	basic, detail, err := cat.CountFileRecords(ctx, file.ID)
	require.NoError(t, err)
	assert.Zero(t, basic)
	assert.Zero(t, detail)

	graphCount, err := cat.CountGraphNodesByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Zero(t, graphCount)

	// Vector partition gone.
	assert.Empty(t, vectors.partitions["kb1/"+file.ID])

	// Inverted documents gone.
	_, still := texts.files[file.ID]
	assert.False(t, still)

	// Graph swept by source id.
	assert.Contains(t, graphs.deleted, file.ID)
}

func TestDeleteKnowledgeBase_DeletesFilesThenRecord(t *testing.T) {
	svc, cat, vectors, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, cat.InsertKnowledgeBase(ctx, schema.KnowledgeBase{ID: "kb1", OwnerID: "u1", Name: "docs"}))
	for i := 0; i < 3; i++ {
		_, err := svc.IngestFile(ctx, Input{
			KnowledgeID: "kb1", OwnerID: "u1", Visibility: schema.VisibilityPublic,
			Title: "doc", Content: "content body",
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteKnowledgeBase(ctx, "kb1"))

	_, err := cat.GetKnowledgeBase(ctx, "kb1")
	assert.True(t, catalog.IsNotFound(err))

	files, err := cat.ListFilesByKnowledgeBase(ctx, "kb1")
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Contains(t, vectors.dropped, "kb1")
}

func TestDeleteUser_Cascades(t *testing.T) {
	svc, cat, _, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, cat.InsertUser(ctx, schema.User{ID: "u1", Name: "alice", Password: "pw"}))
	require.NoError(t, cat.InsertKnowledgeBase(ctx, schema.KnowledgeBase{ID: "kb1", OwnerID: "u1", Name: "docs"}))
	require.NoError(t, cat.InsertSQLDatabase(ctx, schema.SQLDatabase{
		ID: "d1", OwnerID: "u1", Host: "h", Port: 3306, Dialect: "mysql", Name: "db",
	}))

	require.NoError(t, svc.DeleteUser(ctx, "u1"))

	_, err := cat.GetUserByName(ctx, "alice")
	assert.True(t, catalog.IsNotFound(err))
	_, err = cat.GetKnowledgeBase(ctx, "kb1")
	assert.True(t, catalog.IsNotFound(err))
	_, err = cat.GetSQLDatabase(ctx, "d1")
	assert.True(t, catalog.IsNotFound(err))
}

func TestPerFileSerialisation(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	release, err := svc.acquireFile(ctx, "f1")
	require.NoError(t, err)

	// Another file proceeds immediately; no global refusal.
	release2, err := svc.acquireFile(ctx, "f2")
	require.NoError(t, err)
	release2()

	// The same file waits until released.
	acquired := make(chan struct{})
	go func() {
		r, err := svc.acquireFile(ctx, "f1")
		assert.NoError(t, err)
		r()
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second acquisition succeeded while the first was held")
	default:
	}

	release()
	<-acquired
}
