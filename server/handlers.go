package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/praxisworks/tabula/ingest"
	"github.com/praxisworks/tabula/retrieval"
	"github.com/praxisworks/tabula/schema"
)

func (s *Server) handleRegister(c *gin.Context) {
	name, password := credentials(c)
	if name == "" || password == "" {
		fail(c, http.StatusBadRequest, "user_name and password are required")
		return
	}
	user := schema.User{ID: uuid.NewString(), Name: name, Password: password}
	if err := s.catalog.InsertUser(c.Request.Context(), user); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"user_id": user.ID})
}

func (s *Server) handleLogin(c *gin.Context) {
	name, password := credentials(c)
	user, err := s.catalog.VerifyCredentials(c.Request.Context(), name, password)
	if err != nil {
		fail(c, http.StatusUnauthorized, "wrong user name or password")
		return
	}
	ok(c, gin.H{"user_id": user.ID, "user_name": user.Name})
}

func (s *Server) handleLogout(c *gin.Context) {
	// Credential-per-request auth holds no server-side session state.
	ok(c, nil)
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	user := currentUser(c)
	sessions, err := s.conversations.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	for _, sess := range sessions {
		if err := s.conversations.DeleteSession(c.Request.Context(), sess.ID); err != nil {
			failErr(c, err)
			return
		}
	}
	if err := s.ingest.DeleteUser(c.Request.Context(), user.ID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleCreateKnowledgeBase(c *gin.Context) {
	var body struct {
		Name        string `json:"knowledge_name"`
		Description string `json:"description"`
	}
	if err := bindJSON(c, &body); err != nil || body.Name == "" {
		fail(c, http.StatusBadRequest, "knowledge_name is required")
		return
	}
	kb := schema.KnowledgeBase{
		ID:          uuid.NewString(),
		OwnerID:     currentUser(c).ID,
		Name:        body.Name,
		Description: body.Description,
	}
	if err := s.catalog.InsertKnowledgeBase(c.Request.Context(), kb); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"knowledge_id": kb.ID})
}

func (s *Server) handleDeleteKnowledgeBase(c *gin.Context) {
	kbID, err := s.ownedKnowledgeBase(c)
	if err != nil {
		return
	}
	if err := s.ingest.DeleteKnowledgeBase(c.Request.Context(), kbID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleGetKnowledgeBase(c *gin.Context) {
	user := currentUser(c)
	kbs, err := s.catalog.ListKnowledgeBasesByUser(c.Request.Context(), user.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"knowledge_bases": kbs})
}

// ownedKnowledgeBase resolves the knowledge_id parameter and enforces
// ownership. On failure the response has already been written.
func (s *Server) ownedKnowledgeBase(c *gin.Context) (string, error) {
	kbID := c.PostForm("knowledge_id")
	if kbID == "" {
		var body struct {
			KnowledgeID string `json:"knowledge_id"`
		}
		if err := bindJSON(c, &body); err == nil {
			kbID = body.KnowledgeID
		}
	}
	if kbID == "" {
		fail(c, http.StatusBadRequest, "knowledge_id is required")
		return "", errMissing
	}
	kb, err := s.catalog.GetKnowledgeBase(c.Request.Context(), kbID)
	if err != nil {
		failErr(c, err)
		return "", err
	}
	if kb.OwnerID != currentUser(c).ID {
		fail(c, http.StatusUnauthorized, "not the owner of this knowledge base")
		return "", errMissing
	}
	return kbID, nil
}

var errMissing = schema.NewError("server", schema.KindValidation, "missing parameter", nil)

func (s *Server) handleAddFile(c *gin.Context) {
	kbID, err := s.ownedKnowledgeBase(c)
	if err != nil {
		return
	}
	user := currentUser(c)

	visibility := schema.Visibility(c.PostForm("permission_level"))
	if visibility != schema.VisibilityPublic {
		visibility = schema.VisibilityPrivate
	}

	var content, title string
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			failErr(c, err)
			return
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			failErr(c, err)
			return
		}
		content = string(raw)
		title = fh.Filename
	} else {
		content = c.PostForm("content")
		title = c.PostForm("title")
	}
	if content == "" {
		fail(c, http.StatusBadRequest, "file or content is required")
		return
	}

	file, err := s.ingest.IngestFile(c.Request.Context(), ingest.Input{
		KnowledgeID: kbID,
		OwnerID:     user.ID,
		Visibility:  visibility,
		SourceURL:   c.PostForm("source_url"),
		Title:       title,
		Summary:     c.PostForm("summary"),
		Content:     content,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"file_id": file.ID})
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	fileID := param(c, "file_id")
	if fileID == "" {
		fail(c, http.StatusBadRequest, "file_id is required")
		return
	}
	file, err := s.catalog.GetFile(c.Request.Context(), fileID)
	if err != nil {
		failErr(c, err)
		return
	}
	if file.OwnerID != currentUser(c).ID {
		fail(c, http.StatusUnauthorized, "not the owner of this file")
		return
	}
	if err := s.ingest.DeleteFile(c.Request.Context(), fileID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleFileList(c *gin.Context) {
	kbID, err := s.ownedKnowledgeBase(c)
	if err != nil {
		return
	}
	files, err := s.catalog.ListFilesByKnowledgeBase(c.Request.Context(), kbID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"files": files})
}

func (s *Server) handleFileContent(c *gin.Context) {
	fileID := c.Query("file_id")
	if fileID == "" {
		fail(c, http.StatusBadRequest, "file_id is required")
		return
	}
	file, err := s.catalog.GetFile(c.Request.Context(), fileID)
	if err != nil {
		failErr(c, err)
		return
	}
	raw, err := os.ReadFile(filepath.Join(file.LocalPath, "content.md"))
	if err != nil {
		fail(c, http.StatusNotFound, "file content not available")
		return
	}
	ok(c, gin.H{"content": string(raw)})
}

func (s *Server) handleLocalFileContent(c *gin.Context) {
	path := param(c, "path")
	if path == "" {
		path = c.Query("path")
	}
	if path == "" {
		fail(c, http.StatusBadRequest, "path is required")
		return
	}
	// Confine reads to the managed file tree.
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(os.PathSeparator) {
		fail(c, http.StatusBadRequest, "path escapes the file tree")
		return
	}
	raw, err := os.ReadFile(filepath.Join(s.cfg.Paths.FileDir, clean))
	if err != nil {
		fail(c, http.StatusNotFound, "file not found")
		return
	}
	ok(c, gin.H{"content": string(raw)})
}

// param reads a string parameter from form or JSON body.
func param(c *gin.Context, name string) string {
	if v := c.PostForm(name); v != "" {
		return v
	}
	var body map[string]any
	if err := bindJSON(c, &body); err == nil {
		if v, okCast := body[name].(string); okCast {
			return v
		}
	}
	return ""
}

func (s *Server) handleQueryMilvus(c *gin.Context) {
	s.handleEngineQuery(c, schema.EngineMilvus)
}

func (s *Server) handleQueryGraph(c *gin.Context) {
	s.handleEngineQuery(c, schema.EngineGraph)
}

func (s *Server) handleEngineQuery(c *gin.Context, engine schema.SearchEngine) {
	query := param(c, "query")
	kbID := param(c, "knowledge_id")
	if query == "" {
		fail(c, http.StatusBadRequest, "query is required")
		return
	}
	results, err := s.retrieval.Search(c.Request.Context(), retrieval.Request{
		Query:       query,
		KnowledgeID: kbID,
		UserID:      currentUser(c).ID,
		Engines:     []schema.SearchEngine{engine},
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"results": results[engine]})
}

func (s *Server) handleExecuteQuery(c *gin.Context) {
	sqlID := param(c, "sql_id")
	query := param(c, "query")
	if sqlID == "" || query == "" {
		fail(c, http.StatusBadRequest, "sql_id and query are required")
		return
	}
	result, err := s.sqlPipeline.Run(c.Request.Context(), sqlID, query, nil)
	if err != nil {
		if result != nil && result.MetadataAnswer != nil {
			c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error(), "metadata_result": result.MetadataAnswer})
			return
		}
		failErr(c, err)
		return
	}
	ok(c, gin.H{"result": result})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	name := param(c, "session_name")
	if name == "" {
		name = "session " + time.Now().Format("2006-01-02 15:04:05")
	}
	sess, err := s.conversations.CreateSession(c.Request.Context(), currentUser(c).ID, name, param(c, "knowledge_name"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"session_id": sess.ID, "session": sess})
}

func (s *Server) handleUserSessions(c *gin.Context) {
	sessions, err := s.conversations.ListSessions(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"sessions": sessions})
}

func (s *Server) handleSessionByID(c *gin.Context) {
	sessionID := param(c, "session_id")
	if sessionID == "" {
		fail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	sess, err := s.conversations.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	turns, err := s.conversations.GetMessages(c.Request.Context(), sessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"session": sess, "messages": turns})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	sessionID := param(c, "session_id")
	if sessionID == "" {
		fail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.conversations.DeleteSession(c.Request.Context(), sessionID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleClearHistory(c *gin.Context) {
	sessionID := param(c, "session_id")
	if sessionID == "" {
		fail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := s.conversations.ClearHistory(c.Request.Context(), sessionID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleInsertSQLInfo(c *gin.Context) {
	var body struct {
		schema.SQLDatabase
		Tables []struct {
			Name        string `json:"table_name"`
			Description string `json:"table_description"`
			Columns     []struct {
				Name    string `json:"col_name"`
				Type    string `json:"col_type"`
				Comment string `json:"comment"`
				AnaType string `json:"ana_type"`
			} `json:"columns"`
		} `json:"tables"`
	}
	if err := bindJSON(c, &body); err != nil || body.Name == "" {
		fail(c, http.StatusBadRequest, "sql database descriptor is required")
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	body.OwnerID = currentUser(c).ID
	ctx := c.Request.Context()
	if err := s.catalog.InsertSQLDatabase(ctx, body.SQLDatabase); err != nil {
		failErr(c, err)
		return
	}
	for _, t := range body.Tables {
		table := schema.SQLTable{ID: uuid.NewString(), SQLID: body.ID, Name: t.Name, Description: t.Description}
		if err := s.catalog.InsertSQLTable(ctx, table); err != nil {
			failErr(c, err)
			return
		}
		for _, col := range t.Columns {
			err := s.catalog.InsertSQLColumn(ctx, schema.SQLColumn{
				ID:      uuid.NewString(),
				TableID: table.ID,
				Name:    col.Name,
				Type:    col.Type,
				Info:    schema.ColumnInfo{Comment: col.Comment, AnaType: schema.AnaType(col.AnaType)},
			})
			if err != nil {
				failErr(c, err)
				return
			}
		}
	}
	// Registered schemas are analysed right away so the schema graph and its
	// vector partition are queryable before the first question arrives.
	if s.analyzer != nil && len(body.Tables) > 0 {
		if err := s.analyzer.AnalyzeDatabase(ctx, body.ID); err != nil {
			s.logger.Warn(ctx, "schema analysis failed", "sql_id", body.ID, "error", err)
		}
	}
	ok(c, gin.H{"sql_id": body.ID})
}

func (s *Server) handleUpdateSQLInfo(c *gin.Context) {
	var body schema.SQLDatabase
	if err := bindJSON(c, &body); err != nil || body.ID == "" {
		fail(c, http.StatusBadRequest, "sql_id is required")
		return
	}
	if err := s.ownSQLDatabase(c, body.ID); err != nil {
		return
	}
	body.OwnerID = currentUser(c).ID
	if err := s.catalog.UpdateSQLDatabase(c.Request.Context(), body); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) ownSQLDatabase(c *gin.Context, sqlID string) error {
	db, err := s.catalog.GetSQLDatabase(c.Request.Context(), sqlID)
	if err != nil {
		failErr(c, err)
		return err
	}
	if db.OwnerID != currentUser(c).ID {
		fail(c, http.StatusUnauthorized, "not the owner of this sql database")
		return errMissing
	}
	return nil
}

func (s *Server) handleDeleteSQLInfo(c *gin.Context) {
	sqlID := param(c, "sql_id")
	if sqlID == "" {
		fail(c, http.StatusBadRequest, "sql_id is required")
		return
	}
	if err := s.ownSQLDatabase(c, sqlID); err != nil {
		return
	}
	if err := s.catalog.DeleteSQLDatabase(c.Request.Context(), sqlID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

func (s *Server) handleSQLInfoList(c *gin.Context) {
	dbs, err := s.catalog.ListSQLDatabasesByUser(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"sql_databases": dbs})
}

func (s *Server) handleTableInfo(c *gin.Context) {
	sqlID := param(c, "sql_id")
	if sqlID == "" {
		fail(c, http.StatusBadRequest, "sql_id is required")
		return
	}
	tables, err := s.catalog.ListSQLTables(c.Request.Context(), sqlID)
	if err != nil {
		failErr(c, err)
		return
	}
	type tableWithColumns struct {
		schema.SQLTable
		Columns []schema.SQLColumn `json:"columns"`
	}
	out := make([]tableWithColumns, 0, len(tables))
	for _, t := range tables {
		cols, err := s.catalog.ListSQLColumns(c.Request.Context(), t.ID)
		if err != nil {
			failErr(c, err)
			return
		}
		out = append(out, tableWithColumns{SQLTable: t, Columns: cols})
	}
	ok(c, gin.H{"tables": out})
}

func (s *Server) handleInsertSQLRel(c *gin.Context) {
	var body schema.SQLRelation
	if err := bindJSON(c, &body); err != nil || body.SQLID == "" {
		fail(c, http.StatusBadRequest, "sql relation is required")
		return
	}
	if body.ID == "" {
		body.ID = uuid.NewString()
	}
	if err := s.catalog.InsertSQLRelation(c.Request.Context(), body); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"rel_id": body.ID})
}

func (s *Server) handleDeleteSQLRel(c *gin.Context) {
	relID := param(c, "rel_id")
	if relID == "" {
		fail(c, http.StatusBadRequest, "rel_id is required")
		return
	}
	if err := s.catalog.DeleteSQLRelation(c.Request.Context(), relID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, nil)
}

// handleDeleteAllData wipes everything the authenticated user owns:
// sessions, knowledge bases (with their files and index entries), and SQL
// database records. The account itself survives.
func (s *Server) handleDeleteAllData(c *gin.Context) {
	user := currentUser(c)
	ctx := c.Request.Context()

	sessions, err := s.conversations.ListSessions(ctx, user.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	for _, sess := range sessions {
		if err := s.conversations.DeleteSession(ctx, sess.ID); err != nil {
			failErr(c, err)
			return
		}
	}
	kbs, err := s.catalog.ListKnowledgeBasesByUser(ctx, user.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	for _, kb := range kbs {
		if err := s.ingest.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
			failErr(c, err)
			return
		}
	}
	dbs, err := s.catalog.ListSQLDatabasesByUser(ctx, user.ID)
	if err != nil {
		failErr(c, err)
		return
	}
	for _, db := range dbs {
		if err := s.catalog.DeleteSQLDatabase(ctx, db.ID); err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, nil)
}

