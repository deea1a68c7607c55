package llm

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockModel returns canned responses in sequence.
type mockModel struct {
	responses []string
	err       error
	calls     int
	lastMsgs  []Message
}

func (m *mockModel) Generate(ctx context.Context, msgs []Message, opts ...GenerateOption) (string, error) {
	m.lastMsgs = msgs
	if m.err != nil {
		return "", m.err
	}
	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *mockModel) Stream(ctx context.Context, msgs []Message, opts ...GenerateOption) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {}
}

func (m *mockModel) ModelID() string { return "mock" }

type plan struct {
	Techniques []string `json:"techniques"`
}

func TestGenerateJSON_FirstTry(t *testing.T) {
	model := &mockModel{responses: []string{`{"techniques":["descriptive"]}`}}

	got, err := GenerateJSON[plan](context.Background(), model, []Message{User("plan")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"descriptive"}, got.Techniques)
	assert.Equal(t, 1, model.calls)
}

func TestGenerateJSON_RetryOnce(t *testing.T) {
	model := &mockModel{responses: []string{
		"```json\n{\"techniques\":[]}\n```", // fenced, not bare JSON
		`{"techniques":["frequency"]}`,
	}}

	got, err := GenerateJSON[plan](context.Background(), model, []Message{User("plan")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"frequency"}, got.Techniques)
	assert.Equal(t, 2, model.calls)
	// The retry carries the failed response and a correction instruction.
	assert.GreaterOrEqual(t, len(model.lastMsgs), 3)
}

func TestGenerateJSON_FallbackAfterRetry(t *testing.T) {
	model := &mockModel{responses: []string{"not json", "still not json"}}

	got, err := GenerateJSON(context.Background(), model, []Message{User("plan")}, func() plan {
		return plan{Techniques: []string{"descriptive", "correlation"}}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"descriptive", "correlation"}, got.Techniques)
	assert.Equal(t, 2, model.calls, "exactly one retry before falling back")
}

func TestGenerateJSON_NoFallbackErrors(t *testing.T) {
	model := &mockModel{responses: []string{"nope", "nope"}}

	_, err := GenerateJSON[plan](context.Background(), model, []Message{User("plan")}, nil)
	require.Error(t, err)
}

func TestGenerateJSON_ModelError(t *testing.T) {
	model := &mockModel{err: errors.New("upstream down")}

	_, err := GenerateJSON[plan](context.Background(), model, []Message{User("plan")}, func() plan { return plan{} })
	require.Error(t, err, "a hard model error propagates even with a fallback")
}
