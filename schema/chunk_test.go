package schema

import (
	"encoding/json"
	"testing"
)

func TestNewChunk(t *testing.T) {
	c := NewChunk("resp-1", "tabula-chat", 1700000000, "hello", ContentText)

	if c.ID != "resp-1" {
		t.Errorf("ID = %q, want %q", c.ID, "resp-1")
	}
	if c.Object != ChunkObject {
		t.Errorf("Object = %q, want %q", c.Object, ChunkObject)
	}
	if len(c.Choices) != 1 {
		t.Fatalf("len(Choices) = %d, want 1", len(c.Choices))
	}
	if c.Choices[0].Index != 0 {
		t.Errorf("Index = %d, want 0", c.Choices[0].Index)
	}
	if c.Choices[0].FinishReason != nil {
		t.Errorf("FinishReason = %v, want nil", *c.Choices[0].FinishReason)
	}
	if c.IsFinal() {
		t.Error("IsFinal() = true for non-terminal chunk")
	}
}

func TestNewFinalChunk(t *testing.T) {
	c := NewFinalChunk("resp-1", "tabula-chat", 1700000000, "", ContentText)

	if !c.IsFinal() {
		t.Fatal("IsFinal() = false for terminal chunk")
	}
	if got := *c.Choices[0].FinishReason; got != FinishStop {
		t.Errorf("FinishReason = %q, want %q", got, FinishStop)
	}
}

func TestChunk_IsHeartbeat(t *testing.T) {
	tests := []struct {
		name string
		typ  ContentType
		want bool
	}{
		{"heartbeat", ContentHeartbeat, true},
		{"text", ContentText, false},
		{"echarts", ContentECharts, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChunk("id", "m", 0, "", tt.typ)
			if got := c.IsHeartbeat(); got != tt.want {
				t.Errorf("IsHeartbeat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChunk_JSONShape(t *testing.T) {
	c := NewChunk("resp-9", "tabula-sql", 1700000001, "SELECT 1", ContentText)
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	if m["object"] != "chat.completion.chunk" {
		t.Errorf("object = %v, want chat.completion.chunk", m["object"])
	}
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) != 1 {
		t.Fatalf("choices = %v, want one-element list", m["choices"])
	}
	choice := choices[0].(map[string]any)
	if choice["finish_reason"] != nil {
		t.Errorf("finish_reason = %v, want null", choice["finish_reason"])
	}
	delta := choice["delta"].(map[string]any)
	if delta["content"] != "SELECT 1" || delta["type"] != "text" {
		t.Errorf("delta = %v", delta)
	}
}

func TestNodeIDs(t *testing.T) {
	if got := ColumnNodeID("tbl1", "amount"); got != "tbl1_amount" {
		t.Errorf("ColumnNodeID = %q, want tbl1_amount", got)
	}
	if got := EntityNodeID("tbl1", "orders"); got != "tbl1_orders" {
		t.Errorf("EntityNodeID = %q, want tbl1_orders", got)
	}
}
