package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/praxisworks/tabula/o11y"
	"github.com/praxisworks/tabula/schema"
)

// DefaultHeartbeatInterval is how long the transport waits for a real chunk
// before emitting a keepalive.
const DefaultHeartbeatInterval = 3 * time.Second

// Options configures one streaming response.
type Options struct {
	// ResponseID is the opaque id stamped on every chunk. Minted if empty.
	ResponseID string
	// Model is the logical model name carried by each chunk.
	Model string
	// SessionID and UserText drive conversation persistence; persistence is
	// skipped when History is nil or SessionID is empty.
	SessionID string
	UserText  string
	History   HistoryStore
	// HeartbeatInterval overrides the keepalive cadence.
	HeartbeatInterval time.Duration
	Logger            *o11y.Logger
}

// Serve runs producer and frames its chunks as server-sent events onto w.
//
// Contracts honored here:
//   - chunks are delivered in emission order, sharing one response id;
//   - a heartbeat is framed after ~3s without a real chunk, and heartbeats
//     never reach persisted history;
//   - before the first pipeline chunk, a user turn and an empty assistant
//     turn are appended; after every chunk the assistant turn is rewritten
//     in place; a final write happens on completion, error, or disconnect;
//   - the terminal "[DONE]" frame is always written, even on error.
func Serve(ctx context.Context, w http.ResponseWriter, opts Options, producer Producer) error {
	logger := opts.Logger
	if logger == nil {
		logger = o11y.FromContext(ctx)
	}
	if opts.ResponseID == "" {
		opts.ResponseID = NewResponseID("chat")
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	sw, err := NewSSEWriter(w)
	if err != nil {
		return err
	}

	persisting := opts.History != nil && opts.SessionID != ""
	var acc Accumulator
	if persisting {
		userTurn := schema.Turn{
			Role:    schema.RoleUser,
			Content: []schema.ContentItem{{Type: schema.ContentText, Content: opts.UserText}},
		}
		if err := opts.History.AppendTurns(ctx, opts.SessionID, userTurn, acc.Turn()); err != nil {
			return err
		}
	}

	// Single-chunk handoff: the producer blocks on each emission until this
	// loop consumes it, so a slow client backpressures the pipeline.
	ch := make(chan schema.Chunk)
	prodCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	em := &Emitter{id: opts.ResponseID, model: opts.Model, ch: ch, ctx: prodCtx}

	var prodErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(ch)
		prodErr = producer(prodCtx, em)
	}()

	writeChunk := func(c schema.Chunk) {
		payload, err := json.Marshal(c)
		if err != nil {
			logger.Error(ctx, "chunk encoding failed", "error", err)
			return
		}
		if err := sw.WriteData(string(payload)); err != nil {
			logger.Debug(ctx, "client write failed", "error", err)
		}
		o11y.ChunkEmitted(ctx, string(c.Choices[0].Delta.Type))
	}

	persist := func() {
		if !persisting {
			return
		}
		if err := opts.History.RewriteLastTurn(ctx, opts.SessionID, acc.Turn()); err != nil {
			logger.Warn(ctx, "history rewrite failed", "session_id", opts.SessionID, "error", err)
		}
	}

	timer := time.NewTimer(heartbeat)
	defer timer.Stop()

	done := false
	for !done {
		select {
		case c, open := <-ch:
			if !open {
				done = true
				break
			}
			writeChunk(c)
			acc.Add(c)
			// Write-after-emit: readers of the session store may observe
			// partial assistant replies during streaming.
			persist()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(heartbeat)

		case <-timer.C:
			hb := schema.NewChunk(opts.ResponseID, opts.Model, time.Now().Unix(), "", schema.ContentHeartbeat)
			writeChunk(hb)
			timer.Reset(heartbeat)

		case <-ctx.Done():
			// Client disconnect: stop pulling; the producer is cancelled and
			// may abandon in-flight sub-calls. Close the turn with whatever
			// accumulated.
			cancel()
			go func() {
				for range ch {
					// Drain so the producer can observe cancellation.
				}
			}()
			wg.Wait()
			if persisting {
				if err := opts.History.RewriteLastTurn(context.WithoutCancel(ctx), opts.SessionID, acc.Turn()); err != nil {
					logger.Warn(ctx, "final history write failed", "session_id", opts.SessionID, "error", err)
				}
			}
			return ctx.Err()
		}
	}
	wg.Wait()

	if prodErr != nil {
		// Streaming errors surface as a terminal chunk, then [DONE].
		final := schema.NewFinalChunk(opts.ResponseID, opts.Model, time.Now().Unix(), prodErr.Error(), schema.ContentText)
		writeChunk(final)
		acc.Add(final)
	} else {
		writeChunk(schema.NewFinalChunk(opts.ResponseID, opts.Model, time.Now().Unix(), "", schema.ContentText))
	}

	persist()
	if err := sw.WriteDone(); err != nil {
		logger.Debug(ctx, "done frame write failed", "error", err)
	}
	return prodErr
}

// SessionLocks serialises streaming responses per session: only one may be
// active at a time. This is deliberately per-session, not global.
type SessionLocks struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewSessionLocks creates an empty lock table.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{active: make(map[string]bool)}
}

// Acquire marks the session as streaming. It reports false when a response
// is already active — the caller must reject the overlapping request.
func (l *SessionLocks) Acquire(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[sessionID] {
		return false
	}
	l.active[sessionID] = true
	return true
}

// Release ends the session's active response.
func (l *SessionLocks) Release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, sessionID)
}
