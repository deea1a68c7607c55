package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/praxisworks/tabula/llm"
	"github.com/praxisworks/tabula/retrieval"
	"github.com/praxisworks/tabula/schema"
	"github.com/praxisworks/tabula/stream"
	"github.com/praxisworks/tabula/tablefile"
)

// handleChat is the central streaming entrypoint. Dispatch is by the shape
// of the multipart request: an attached file runs the table-file pipeline, a
// sql_id runs the agentic SQL pipeline, a knowledge_id runs a
// retrieval-augmented chat, and a bare query is a plain model chat. The
// discussion choice flag registers a discussion task alongside the chat.
func (s *Server) handleChat(c *gin.Context) {
	user := currentUser(c)
	query := c.PostForm("query")
	sessionID := c.PostForm("session_id")
	kbID := c.PostForm("knowledge_id")
	sqlID := c.PostForm("sql_id")
	choice := c.PostForm("choice")

	if sessionID == "" {
		fail(c, http.StatusBadRequest, "session_id is required")
		return
	}
	if !s.locks.Acquire(sessionID) {
		fail(c, http.StatusConflict, "a streaming response is already active for this session")
		return
	}
	defer s.locks.Release(sessionID)

	if choice == "discussion" {
		if _, err := s.conversations.RegisterDiscussionTask(c.Request.Context(), sessionID); err != nil {
			s.logger.Warn(c.Request.Context(), "discussion task registration failed", "error", err)
		}
	}

	var producer stream.Producer
	model := s.cfg.LLM.ChatModel

	switch {
	case hasFile(c):
		fh, _ := c.FormFile("file")
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "cannot read uploaded file")
			return
		}
		defer f.Close()
		producer = s.tableFileProducer(fh.Filename, f, query)
		model = "tabula-table"

	case sqlID != "":
		producer = s.sqlProducer(sqlID, query)
		model = "tabula-sql"

	default:
		producer = s.chatProducer(user.ID, kbID, query)
	}

	opts := stream.Options{
		Model:             model,
		SessionID:         sessionID,
		UserText:          query,
		History:           s.conversations,
		HeartbeatInterval: s.cfg.Pipeline.HeartbeatInterval,
		Logger:            s.logger,
	}
	ctx, cancel := s.streamContext(c)
	defer cancel()
	if err := stream.Serve(ctx, c.Writer, opts, producer); err != nil {
		s.logger.Debug(c.Request.Context(), "stream ended with error", "session_id", sessionID, "error", err)
	}
}

// streamContext bounds a streaming response by the generation idle timeout.
func (s *Server) streamContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Pipeline.IdleTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.cfg.Pipeline.IdleTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// handleStreamChat is the plain streaming chat endpoint without dispatch.
func (s *Server) handleStreamChat(c *gin.Context) {
	user := currentUser(c)
	query := param(c, "query")
	sessionID := param(c, "session_id")
	kbID := param(c, "knowledge_id")
	if query == "" || sessionID == "" {
		fail(c, http.StatusBadRequest, "query and session_id are required")
		return
	}
	if !s.locks.Acquire(sessionID) {
		fail(c, http.StatusConflict, "a streaming response is already active for this session")
		return
	}
	defer s.locks.Release(sessionID)

	opts := stream.Options{
		Model:             s.cfg.LLM.ChatModel,
		SessionID:         sessionID,
		UserText:          query,
		History:           s.conversations,
		HeartbeatInterval: s.cfg.Pipeline.HeartbeatInterval,
		Logger:            s.logger,
	}
	ctx, cancel := s.streamContext(c)
	defer cancel()
	if err := stream.Serve(ctx, c.Writer, opts, s.chatProducer(user.ID, kbID, query)); err != nil {
		s.logger.Debug(c.Request.Context(), "stream ended with error", "session_id", sessionID, "error", err)
	}
}

func hasFile(c *gin.Context) bool {
	_, err := c.FormFile("file")
	return err == nil
}

// sqlProducer runs the agentic SQL pipeline, relaying step events and the
// final result through the stream.
func (s *Server) sqlProducer(sqlID, query string) stream.Producer {
	return func(ctx context.Context, em *stream.Emitter) error {
		notify := func(step string, status schema.StepStatus, payload any) {
			if err := em.Step(schema.StepEvent{Step: step, Status: status, Payload: payload}); err != nil {
				s.logger.Debug(ctx, "step emission dropped", "step", step, "error", err)
			}
		}
		result, err := s.sqlPipeline.Run(ctx, sqlID, query, notify)
		if err != nil {
			return err
		}
		if result.MetadataAnswer != nil {
			return em.Content(schema.ContentToolDirectAnswer, result.MetadataAnswer.Message)
		}
		return em.Text(fmt.Sprintf("SQL: %s\nsatisfaction: %.2f", result.SQL, result.SatisfactionScore))
	}
}

// tableFileProducer runs the table-file pipeline, streaming step events, the
// interpretation text, and each chart as its own echarts chunk.
func (s *Server) tableFileProducer(name string, file io.Reader, query string) stream.Producer {
	return func(ctx context.Context, em *stream.Emitter) error {
		cb := tablefile.Callbacks{
			Step: func(step string, status schema.StepStatus, payload any) {
				if err := em.Step(schema.StepEvent{Step: step, Status: status, Payload: payload}); err != nil {
					s.logger.Debug(ctx, "step emission dropped", "step", step, "error", err)
				}
			},
			Chart: func(option string) {
				if err := em.Content(schema.ContentECharts, option); err != nil {
					s.logger.Debug(ctx, "chart emission dropped", "error", err)
				}
			},
			Text: func(markdown string) {
				if err := em.Text(markdown); err != nil {
					s.logger.Debug(ctx, "text emission dropped", "error", err)
				}
			},
		}
		_, err := s.tablePipeline.Run(ctx, name, file, query, cb)
		return err
	}
}

// chatProducer is the retrieval-augmented plain chat: search the knowledge
// base (when one is bound), then stream the model's answer over the
// evidence.
func (s *Server) chatProducer(userID, kbID, query string) stream.Producer {
	return func(ctx context.Context, em *stream.Emitter) error {
		var evidence strings.Builder
		if kbID != "" && s.retrieval != nil {
			results, err := s.retrieval.Search(ctx, retrieval.Request{
				Query:       query,
				KnowledgeID: kbID,
				UserID:      userID,
				TopK:        5,
			})
			if err != nil {
				s.logger.Warn(ctx, "retrieval failed, answering without evidence", "error", err)
			} else {
				for engine, items := range results {
					for _, item := range items {
						fmt.Fprintf(&evidence, "[%s] %s: %s\n", engine, item.Title, item.Content)
					}
				}
			}
		}

		msgs := []llm.Message{}
		if evidence.Len() > 0 {
			msgs = append(msgs, llm.System("Answer using the retrieved evidence below. Cite nothing that is not in it.\n\n"+evidence.String()))
		}
		msgs = append(msgs, llm.User(query))

		for chunk, err := range s.chat.Stream(ctx, msgs) {
			if err != nil {
				return err
			}
			if chunk.Delta == "" {
				continue
			}
			if err := em.Text(chunk.Delta); err != nil {
				return err
			}
		}
		return nil
	}
}
