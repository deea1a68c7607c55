package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertUser(ctx, schema.User{ID: "u1", Name: "alice", Password: "pw"}))

	u, err := s.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.VerifyCredentials(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = s.VerifyCredentials(ctx, "alice", "wrong")
	require.Error(t, err)

	_, err = s.GetUserByName(ctx, "bob")
	assert.True(t, IsNotFound(err))
}

func TestFiles_CascadeRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertKnowledgeBase(ctx, schema.KnowledgeBase{ID: "kb1", OwnerID: "u1", Name: "docs"}))
	require.NoError(t, s.InsertFile(ctx, schema.File{
		ID: "f1", KnowledgeID: "kb1", OwnerID: "u1",
		Visibility: schema.VisibilityPrivate, Size: 42, UploadedAt: time.Now(),
	}))
	require.NoError(t, s.UpsertFileDetail(ctx, schema.FileDetail{FileID: "f1", Title: "Intro"}))
	require.NoError(t, s.InsertGraphNode(ctx, schema.GraphElement{
		ID: "n1", FileID: "f1", KnowledgeID: "kb1", SourceID: "f1_chunk_0", Name: "scheduler",
	}))
	require.NoError(t, s.InsertImageFile(ctx, "img1", "f1", "conf/file/f1/fig.png"))

	require.NoError(t, s.DeleteFileRecords(ctx, "f1"))

	basic, detail, err := s.CountFileRecords(ctx, "f1")
	require.NoError(t, err)
	assert.Zero(t, basic)
	assert.Zero(t, detail)

	n, err := s.CountGraphNodesByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountFilesByVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, f := range []schema.File{
		{ID: "f1", KnowledgeID: "kb1", OwnerID: "u1", Visibility: schema.VisibilityPublic, UploadedAt: time.Now()},
		{ID: "f2", KnowledgeID: "kb1", OwnerID: "u1", Visibility: schema.VisibilityPrivate, UploadedAt: time.Now()},
		{ID: "f3", KnowledgeID: "kb1", OwnerID: "u1", Visibility: schema.VisibilityPublic, UploadedAt: time.Now()},
	} {
		require.NoError(t, s.InsertFile(ctx, f))
	}

	all, err := s.CountFilesByKnowledgeBase(ctx, "kb1", "")
	require.NoError(t, err)
	assert.Equal(t, 3, all)

	public, err := s.CountFilesByKnowledgeBase(ctx, "kb1", schema.VisibilityPublic)
	require.NoError(t, err)
	assert.Equal(t, 2, public)
}

func TestSearchByDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSQLDatabase(ctx, schema.SQLDatabase{
		ID: "d1", OwnerID: "u1", Host: "localhost", Port: 3306, Dialect: "mysql", Name: "shop",
	}))
	require.NoError(t, s.InsertSQLTable(ctx, schema.SQLTable{
		ID: "t1", SQLID: "d1", Name: "orders", Description: "customer orders and totals",
	}))
	require.NoError(t, s.InsertSQLTable(ctx, schema.SQLTable{
		ID: "t2", SQLID: "d1", Name: "inventory", Description: "warehouse stock",
	}))
	require.NoError(t, s.InsertSQLColumn(ctx, schema.SQLColumn{
		ID: "c1", TableID: "t1", Name: "amount", Type: "decimal",
		Info: schema.ColumnInfo{Comment: "order amount in yuan", AnaType: schema.AnaNumeric},
	}))

	tables, err := s.SearchTablesByDescription(ctx, "d1", "orders")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "t1", tables[0].ID)

	cols, err := s.SearchColumnsByDescription(ctx, "d1", "amount")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "amount", cols[0].Name)
	assert.Equal(t, schema.AnaNumeric, cols[0].Info.AnaType)

	none, err := s.SearchTablesByDescription(ctx, "d1", "telemetry")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchemaAnalysis_UpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	analysis := schema.SchemaAnalysis{
		SQLID: "d1", TableID: "t1",
		Entity: schema.AnalysisEntity{Name: "orders"},
		Metrics: []schema.AnalysisColumn{
			{Name: "amount", ColumnName: "amount", Description: "order amount"},
		},
	}
	require.NoError(t, s.UpsertSchemaAnalysis(ctx, analysis))
	require.NoError(t, s.UpsertSchemaAnalysis(ctx, analysis))

	n, err := s.CountSchemaAnalyses(ctx, "d1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "two identical analyses leave one row")

	got, err := s.GetSchemaAnalysis(ctx, "d1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Entity.Name)
	require.Len(t, got.Metrics, 1)
}

func TestSessions_And_DiscussionTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSession(ctx, schema.Session{ID: "s1", OwnerID: "u1", Name: "chat"}))

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "chat", sess.Name)

	require.NoError(t, s.RegisterDiscussionTask(ctx, schema.DiscussionTask{
		ID: "disc1", SessionID: "s1", Status: schema.DiscussionActive,
	}))
	require.NoError(t, s.UpdateDiscussionTaskStatus(ctx, "disc1", schema.DiscussionCompleted))

	tasks, err := s.ListDiscussionTasks(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, schema.DiscussionCompleted, tasks[0].Status)

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	_, err = s.GetSession(ctx, "s1")
	assert.True(t, IsNotFound(err))
	tasks, err = s.ListDiscussionTasks(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, tasks, "discussion tasks cascade with the session")
}

func TestDeleteSQLDatabase_Cascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSQLDatabase(ctx, schema.SQLDatabase{
		ID: "d1", OwnerID: "u1", Host: "h", Port: 3306, Dialect: "mysql", Name: "db", Description: "sales",
	}))
	require.NoError(t, s.InsertSQLTable(ctx, schema.SQLTable{ID: "t1", SQLID: "d1", Name: "orders"}))
	require.NoError(t, s.InsertSQLColumn(ctx, schema.SQLColumn{ID: "c1", TableID: "t1", Name: "id"}))
	require.NoError(t, s.InsertSQLRelation(ctx, schema.SQLRelation{
		ID: "r1", SQLID: "d1", FromTable: "orders", FromColumn: "cid", ToTable: "customers", ToColumn: "id",
	}))
	require.NoError(t, s.UpsertSchemaAnalysis(ctx, schema.SchemaAnalysis{SQLID: "d1", TableID: "t1"}))

	require.NoError(t, s.DeleteSQLDatabase(ctx, "d1"))

	_, err := s.GetSQLDatabase(ctx, "d1")
	assert.True(t, IsNotFound(err))

	tables, err := s.ListSQLTables(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, tables)

	cols, err := s.ListSQLColumns(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, cols)

	rels, err := s.ListSQLRelations(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, rels)

	n, err := s.CountSchemaAnalyses(ctx, "d1", "t1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
