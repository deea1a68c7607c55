// Package openai provides an OpenAI-compatible ChatModel and Embedder over
// any endpoint speaking the OpenAI API (OpenAI itself, vLLM, DashScope and
// friends).
package openai

import (
	"context"
	"errors"
	"io"
	"iter"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/praxisworks/tabula/llm"
)

// Model is an OpenAI-compatible chat model.
type Model struct {
	client *goopenai.Client
	model  string
}

// Option configures a Model or Embedder.
type Option func(*settings)

type settings struct {
	baseURL string
	apiKey  string
}

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

func newClient(opts []Option) *goopenai.Client {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	cfg := goopenai.DefaultConfig(s.apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

// NewModel creates a chat model for the given model id.
func NewModel(model string, opts ...Option) *Model {
	return &Model{client: newClient(opts), model: model}
}

// ModelID returns the configured model identifier.
func (m *Model) ModelID() string { return m.model }

func (m *Model) request(msgs []llm.Message, o llm.GenerateOptions) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{Model: m.model}
	for _, msg := range msgs {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}
	if o.MaxTokens > 0 {
		req.MaxTokens = o.MaxTokens
	}
	if o.JSONMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// Generate sends messages and returns the full response text.
func (m *Model) Generate(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) (string, error) {
	req := m.request(msgs, llm.ApplyOptions(opts...))
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends messages and yields response chunks as they arrive.
func (m *Model) Stream(ctx context.Context, msgs []llm.Message, opts ...llm.GenerateOption) iter.Seq2[llm.StreamChunk, error] {
	return func(yield func(llm.StreamChunk, error) bool) {
		req := m.request(msgs, llm.ApplyOptions(opts...))
		req.Stream = true

		stream, err := m.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield(llm.StreamChunk{}, err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(llm.StreamChunk{}, err)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !yield(llm.StreamChunk{Delta: resp.Choices[0].Delta.Content}, nil) {
				return
			}
		}
	}
}

// Embedder generates embeddings through the OpenAI embeddings endpoint.
type Embedder struct {
	client *goopenai.Client
	model  string
}

// NewEmbedder creates an Embedder for the given embedding model id.
func NewEmbedder(model string, opts ...Option) *Embedder {
	return &Embedder{client: newClient(opts), model: model}
}

// EmbedDocuments embeds a batch of texts, one vector per input, in order.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("openai: empty embedding response")
	}
	return vectors[0], nil
}
