// Package llm defines the opaque chat and embedding service the pipelines
// depend on. The backend never carries prompt-engineering concerns of its own
// sub-agents beyond requiring JSON responses; providers live in subpackages
// and are injected at the composition root.
//
// Streaming uses iter.Seq2 (Go 1.23+):
//
//	for chunk, err := range model.Stream(ctx, msgs) {
//	    if err != nil { break }
//	    fmt.Print(chunk.Delta)
//	}
package llm

import (
	"context"
	"iter"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to or received from the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// StreamChunk is one incremental piece of a streamed response.
type StreamChunk struct {
	Delta string
}

// ChatModel is the interface every language-model provider implements. The
// pipelines treat calls as blocking I/O; a worker may park during one.
type ChatModel interface {
	// Generate sends messages and returns the complete response text.
	Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (string, error)

	// Stream sends messages and returns an iterator of response chunks.
	// A non-nil error terminates the stream.
	Stream(ctx context.Context, msgs []Message, opts ...GenerateOption) iter.Seq2[StreamChunk, error]

	// ModelID returns the identifier of the underlying model.
	ModelID() string
}

// Embedder generates dense vector embeddings from text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
