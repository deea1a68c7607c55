// Package stream is the streaming transport every pipeline produces its
// output through: OpenAI-style chunk envelopes framed as server-sent events,
// with keepalive heartbeats, total per-response ordering, and durable
// conversation persistence.
//
// Pipelines are written as Producers against an Emitter; the transport pulls
// chunks directly, so a slow client blocks the pipeline at the next emission
// (single-chunk handoff, no internal queueing).
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/praxisworks/tabula/schema"
)

// Producer generates a response by emitting chunks. Returning an error ends
// the stream with a terminal error chunk; returning nil ends it normally.
type Producer func(ctx context.Context, em *Emitter) error

// Emitter hands chunks from a pipeline to the transport. Every emission is a
// suspension point: it blocks until the transport has consumed the chunk or
// the context is cancelled.
type Emitter struct {
	id      string
	model   string
	ch      chan<- schema.Chunk
	ctx     context.Context
}

// ResponseID returns the chunk id shared by every chunk of this response.
func (e *Emitter) ResponseID() string { return e.id }

func (e *Emitter) emit(c schema.Chunk) error {
	select {
	case e.ch <- c:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// Text emits a text delta.
func (e *Emitter) Text(content string) error {
	return e.emit(schema.NewChunk(e.id, e.model, time.Now().Unix(), content, schema.ContentText))
}

// Content emits a delta of an arbitrary content type.
func (e *Emitter) Content(typ schema.ContentType, content string) error {
	return e.emit(schema.NewChunk(e.id, e.model, time.Now().Unix(), content, typ))
}

// Step emits a pipeline step event as a text chunk carrying the serialised
// event payload.
func (e *Emitter) Step(ev schema.StepEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stream: encoding step event: %w", err)
	}
	return e.emit(schema.NewChunk(e.id, e.model, time.Now().Unix(), string(payload), schema.ContentText))
}

// NewResponseID mints the opaque id shared by all chunks of one response.
func NewResponseID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
