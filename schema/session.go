package schema

import "time"

// Role distinguishes the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentItem is one typed element of a turn's content list. Adjacent text
// chunks of a streaming response are concatenated into a single text item;
// every non-text chunk becomes its own item, in emission order.
type ContentItem struct {
	Type    ContentType `json:"type"`
	Content string      `json:"content"`
}

// Turn is one entry of a session's ordered history. Within a session the last
// turn may be rewritten in place while a streaming response is being produced;
// earlier turns are immutable.
type Turn struct {
	Role    Role          `json:"role"`
	Content []ContentItem `json:"content"`
}

// Session is an ordered conversation owned by a user, optionally bound to a
// knowledge base.
type Session struct {
	ID            string    `json:"session_id"`
	OwnerID       string    `json:"user_id"`
	Name          string    `json:"session_name"`
	KnowledgeName string    `json:"knowledge_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DiscussionStatus is the lifecycle state of a discussion task.
type DiscussionStatus string

const (
	DiscussionActive    DiscussionStatus = "active"
	DiscussionCompleted DiscussionStatus = "completed"
)

// DiscussionTask is a named sub-activity within a session. Multiple tasks may
// exist per session and each is independently resumable.
type DiscussionTask struct {
	ID        string           `json:"discussion_id"`
	SessionID string           `json:"session_id"`
	Status    DiscussionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
