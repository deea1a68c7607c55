package stream

import (
	"context"

	"github.com/praxisworks/tabula/schema"
)

// HistoryStore persists conversation turns. The conversation service
// implements it; the transport only ever appends one user/assistant pair and
// rewrites the assistant half in place while streaming.
type HistoryStore interface {
	// AppendTurns appends a user turn and an (initially empty) assistant
	// turn to the session.
	AppendTurns(ctx context.Context, sessionID string, user, assistant schema.Turn) error

	// RewriteLastTurn replaces the session's last turn.
	RewriteLastTurn(ctx context.Context, sessionID string, assistant schema.Turn) error
}

// Accumulator folds a response's chunks into the structured content list
// persisted with the assistant turn: adjacent text chunks concatenate into a
// single text item, every non-text chunk becomes its own item in order, and
// heartbeats are dropped.
type Accumulator struct {
	items []schema.ContentItem
}

// Add folds one chunk in.
func (a *Accumulator) Add(c schema.Chunk) {
	if c.IsHeartbeat() || len(c.Choices) == 0 {
		return
	}
	delta := c.Choices[0].Delta
	if delta.Content == "" {
		return
	}
	if delta.Type == schema.ContentText && len(a.items) > 0 && a.items[len(a.items)-1].Type == schema.ContentText {
		a.items[len(a.items)-1].Content += delta.Content
		return
	}
	a.items = append(a.items, schema.ContentItem{Type: delta.Type, Content: delta.Content})
}

// Items returns the current content list.
func (a *Accumulator) Items() []schema.ContentItem {
	return a.items
}

// Turn wraps the accumulated items as an assistant turn.
func (a *Accumulator) Turn() schema.Turn {
	return schema.Turn{Role: schema.RoleAssistant, Content: a.items}
}
