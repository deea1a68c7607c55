// Package conversation manages session lifecycle, the discussion-task
// registry, and turn-by-turn history assembly. Structured metadata lives in
// the catalog; the ordered message list of each session lives in Redis keyed
// by session id, which keeps the write-after-every-chunk persistence cheap.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/praxisworks/tabula/catalog"
	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
)

// Service is the conversation service. It implements stream.HistoryStore.
type Service struct {
	catalog       *catalog.Store
	kv            *redis.Client
	discussionDir string
	logger        *o11y.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *o11y.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDiscussionDir sets the on-disk root of discussion task folders.
func WithDiscussionDir(dir string) Option {
	return func(s *Service) { s.discussionDir = dir }
}

// New creates a Service over the catalog and the key-value store.
func New(cat *catalog.Store, kv *redis.Client, opts ...Option) *Service {
	s := &Service{
		catalog:       cat,
		kv:            kv,
		discussionDir: "discussion",
		logger:        o11y.NewLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func messagesKey(sessionID string) string {
	return "session:" + sessionID + ":messages"
}

// CreateSession registers a new session for a user.
func (s *Service) CreateSession(ctx context.Context, userID, name, knowledgeName string) (schema.Session, error) {
	sess := schema.Session{
		ID:            uuid.NewString(),
		OwnerID:       userID,
		Name:          name,
		KnowledgeName: knowledgeName,
	}
	if err := s.catalog.InsertSession(ctx, sess); err != nil {
		return schema.Session{}, err
	}
	return sess, nil
}

// ListSessions returns every session of a user.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]schema.Session, error) {
	return s.catalog.ListSessionsByUser(ctx, userID)
}

// GetSession fetches one session's metadata.
func (s *Service) GetSession(ctx context.Context, sessionID string) (schema.Session, error) {
	return s.catalog.GetSession(ctx, sessionID)
}

// GetMessages returns the ordered turn list of a session. A session with no
// messages yet returns an empty list.
func (s *Service) GetMessages(ctx context.Context, sessionID string) ([]schema.Turn, error) {
	if _, err := s.catalog.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	raw, err := s.kv.LRange(ctx, messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conversation: reading messages: %w", err)
	}
	turns := make([]schema.Turn, 0, len(raw))
	for _, item := range raw {
		var turn schema.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("conversation: decoding turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// AppendTurns appends a user turn and an assistant turn to the session's
// message list. Part of the stream.HistoryStore contract.
func (s *Service) AppendTurns(ctx context.Context, sessionID string, user, assistant schema.Turn) error {
	for _, turn := range []schema.Turn{user, assistant} {
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("conversation: encoding turn: %w", err)
		}
		if err := s.kv.RPush(ctx, messagesKey(sessionID), payload).Err(); err != nil {
			return fmt.Errorf("conversation: appending turn: %w", err)
		}
	}
	if err := s.catalog.TouchSession(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "session touch failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// RewriteLastTurn replaces the last turn of the session in place. Earlier
// turns are immutable; only the tail may change while a response streams.
func (s *Service) RewriteLastTurn(ctx context.Context, sessionID string, assistant schema.Turn) error {
	key := messagesKey(sessionID)
	length, err := s.kv.LLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conversation: reading list length: %w", err)
	}
	if length == 0 {
		return fmt.Errorf("conversation: session %s has no turns", sessionID)
	}
	payload, err := json.Marshal(assistant)
	if err != nil {
		return fmt.Errorf("conversation: encoding turn: %w", err)
	}
	if err := s.kv.LSet(ctx, key, length-1, payload).Err(); err != nil {
		return fmt.Errorf("conversation: rewriting turn: %w", err)
	}
	return nil
}

// ClearHistory drops a session's message list without deleting the session.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	if err := s.kv.Del(ctx, messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("conversation: clearing history: %w", err)
	}
	return nil
}

// DeleteSession removes the session's metadata, its message list, and the
// on-disk folders of its discussion tasks.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	tasks, err := s.catalog.ListDiscussionTasks(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.catalog.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("conversation: deleting messages: %w", err)
	}
	for _, task := range tasks {
		dir := filepath.Join(s.discussionDir, task.ID)
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn(ctx, "discussion folder removal failed", "dir", dir, "error", err)
		}
	}
	return nil
}

// RegisterDiscussionTask creates a discussion task and its working folder.
func (s *Service) RegisterDiscussionTask(ctx context.Context, sessionID string) (schema.DiscussionTask, error) {
	task := schema.DiscussionTask{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Status:    schema.DiscussionActive,
	}
	if err := s.catalog.RegisterDiscussionTask(ctx, task); err != nil {
		return schema.DiscussionTask{}, err
	}
	if err := os.MkdirAll(filepath.Join(s.discussionDir, task.ID), 0o755); err != nil {
		return schema.DiscussionTask{}, fmt.Errorf("conversation: creating discussion folder: %w", err)
	}
	return task, nil
}

// CompleteDiscussionTask marks a discussion task completed.
func (s *Service) CompleteDiscussionTask(ctx context.Context, discussionID string) error {
	return s.catalog.UpdateDiscussionTaskStatus(ctx, discussionID, schema.DiscussionCompleted)
}

// ListDiscussionTasks returns every discussion task of a session.
func (s *Service) ListDiscussionTasks(ctx context.Context, sessionID string) ([]schema.DiscussionTask, error) {
	return s.catalog.ListDiscussionTasks(ctx, sessionID)
}

// DeleteDiscussionTask removes one discussion task and its folder.
func (s *Service) DeleteDiscussionTask(ctx context.Context, discussionID string) error {
	if err := s.catalog.DeleteDiscussionTask(ctx, discussionID); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.discussionDir, discussionID)); err != nil {
		return fmt.Errorf("conversation: removing discussion folder: %w", err)
	}
	return nil
}
