package server

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxisworks/tabula/catalog"
	"github.com/praxisworks/tabula/config"
	"github.com/praxisworks/tabula/conversation"
	"github.com/praxisworks/tabula/ingest"
	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/retrieval"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/supervisor"
	"github.com/praxisworks/tabula/tablefile"
)

// streamingChat emits a fixed sequence of deltas.
type streamingChat struct {
	deltas []string
}

func (m *streamingChat) Generate(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return strings.Join(m.deltas, ""), nil
}

func (m *streamingChat) Stream(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		for _, d := range m.deltas {
			if !yield(llm.StreamChunk{Delta: d}, nil) {
				return
			}
		}
	}
}

func (m *streamingChat) ModelID() string { return "test-chat" }

type nilEmbedder struct{}

func (nilEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0}
	}
	return out, nil
}

func (nilEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0}, nil
}

func newTestServer(t *testing.T, deltas ...string) (*Server, *conversation.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	mr := miniredis.RunT(t)
	kv := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := config.Default()
	cfg.Paths.FileDir = filepath.Join(t.TempDir(), "files")

	conversations := conversation.New(cat, kv, conversation.WithDiscussionDir(filepath.Join(t.TempDir(), "disc")))
	chat := &streamingChat{deltas: deltas}
	files := ingest.New(cat, nil, nil, nil, nilEmbedder{}, 1, ingest.WithFileDir(cfg.Paths.FileDir))
	search := retrieval.New(cat, nil, nil, nil, nilEmbedder{}, chat)
	tablePipeline := tablefile.New(nil, supervisor.New(nil))

	srv := New(Deps{
		Config:        cfg,
		Catalog:       cat,
		Conversations: conversations,
		Retrieval:     search,
		Ingest:        files,
		TablePipeline: tablePipeline,
		Chat:          chat,
	})
	return srv, conversations
}

func postJSON(t *testing.T, router http.Handler, path string, body gin.H) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})
	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["user_id"])

	w = postJSON(t, router, "/user_login", gin.H{"user_name": "alice", "password": "pw"})
	body = decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])

	w = postJSON(t, router, "/user_login", gin.H{"user_name": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body = decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])
}

func TestAuthRequiredEverywhereElse(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	w := postJSON(t, router, "/create_knowledge_base", gin.H{"knowledge_name": "docs"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, router, "/create_knowledge_base", gin.H{
		"user_name": "ghost", "password": "x", "knowledge_name": "docs",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORS_FrontendOriginFamily(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	for _, origin := range []string{"http://localhost:5173", "http://192.168.0.7:5173"} {
		req := httptest.NewRequest(http.MethodOptions, "/register", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"), "origin %s", origin)
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	}

	req := httptest.NewRequest(http.MethodOptions, "/register", nil)
	req.Header.Set("Origin", "http://evil.example:9999")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})

	w := postJSON(t, router, "/create_knowledge_base", gin.H{
		"user_name": "alice", "password": "pw", "knowledge_name": "docs",
	})
	body := decodeEnvelope(t, w)
	require.Equal(t, true, body["success"])
	kbID := body["knowledge_id"].(string)

	w = postJSON(t, router, "/get_knowledge_base", gin.H{"user_name": "alice", "password": "pw"})
	body = decodeEnvelope(t, w)
	kbs := body["knowledge_bases"].([]any)
	require.Len(t, kbs, 1)

	w = postJSON(t, router, "/delete_knowledge_base", gin.H{
		"user_name": "alice", "password": "pw", "knowledge_id": kbID,
	})
	body = decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
}

func TestAddFile_Multipart(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})
	w := postJSON(t, router, "/create_knowledge_base", gin.H{
		"user_name": "alice", "password": "pw", "knowledge_name": "docs",
	})
	kbID := decodeEnvelope(t, w)["knowledge_id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("user_name", "alice")
	mw.WriteField("password", "pw")
	mw.WriteField("knowledge_id", kbID)
	mw.WriteField("permission_level", "public")
	part, err := mw.CreateFormFile("file", "intro.txt")
	require.NoError(t, err)
	part.Write([]byte("The scheduler coordinates retries and backpressure."))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/add_file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := decodeEnvelope(t, rec)
	require.Equal(t, true, body["success"], "body: %v", body)
	fileID := body["file_id"].(string)

	w = postJSON(t, router, "/get_knowledge_base_file_list", gin.H{
		"user_name": "alice", "password": "pw", "knowledge_id": kbID,
	})
	files := decodeEnvelope(t, w)["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, fileID, files[0].(map[string]any)["file_id"])
}

func TestSessionEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})

	w := postJSON(t, router, "/create_session", gin.H{
		"user_name": "alice", "password": "pw", "session_name": "chat one",
	})
	body := decodeEnvelope(t, w)
	require.Equal(t, true, body["success"])
	sessionID := body["session_id"].(string)

	w = postJSON(t, router, "/get_sessions_by_id", gin.H{
		"user_name": "alice", "password": "pw", "session_id": sessionID,
	})
	body = decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, body["messages"], "fresh session has no messages")

	w = postJSON(t, router, "/delete_sessions_by_session_id", gin.H{
		"user_name": "alice", "password": "pw", "session_id": sessionID,
	})
	assert.Equal(t, true, decodeEnvelope(t, w)["success"])
}

func streamChatRequest(t *testing.T, router http.Handler, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChat_StreamsAndPersists(t *testing.T) {
	srv, conversations := newTestServer(t, "The ", "answer ", "is ", "forty ", "two.")
	router := srv.Router()

	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})
	w := postJSON(t, router, "/create_session", gin.H{
		"user_name": "alice", "password": "pw", "session_name": "chat",
	})
	sessionID := decodeEnvelope(t, w)["session_id"].(string)

	rec := streamChatRequest(t, router, map[string]string{
		"user_name":  "alice",
		"password":   "pw",
		"session_id": sessionID,
		"query":      "what is the answer?",
	})

	bodyText := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, bodyText, `"object":"chat.completion.chunk"`)
	assert.Contains(t, bodyText, "data: [DONE]\n\n", "terminal frame always present")

	// Persistence: one user turn, one assistant turn, text concatenated.
	turns, err := conversations.GetMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, schema.RoleUser, turns[0].Role)
	require.NotEmpty(t, turns[1].Content)
	assert.Equal(t, "The answer is forty two.", turns[1].Content[0].Content)
}

func TestChat_TableFileDispatch_NoValidData(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})
	w := postJSON(t, router, "/create_session", gin.H{
		"user_name": "alice", "password": "pw", "session_name": "table",
	})
	sessionID := decodeEnvelope(t, w)["session_id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("user_name", "alice")
	mw.WriteField("password", "pw")
	mw.WriteField("session_id", sessionID)
	part, err := mw.CreateFormFile("file", "empty.csv")
	require.NoError(t, err)
	part.Write([]byte("void\n\n\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	bodyText := rec.Body.String()
	assert.Contains(t, bodyText, "no_valid_data")
	assert.NotContains(t, bodyText, `"type":"echarts"`, "no chart chunks for empty statistics")
	assert.Contains(t, bodyText, "data: [DONE]\n\n")
}

func TestChat_RequiresSession(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	postJSON(t, router, "/register", gin.H{"user_name": "alice", "password": "pw"})

	rec := streamChatRequest(t, router, map[string]string{
		"user_name": "alice", "password": "pw", "query": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
