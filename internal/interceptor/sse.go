// Package interceptor implements the Streaming Interceptor (§4.3): it turns
// a provider-specific server-sent-event stream into the neutral
// {sub_queries, citations, answer_text} triple the Result Normalizer
// consumes. It recovers structure from an incremental patch protocol; it
// does not transform semantics.
//
// Per the channel-per-session re-architecture guidance (§9), a Session
// pushes parsed events into a bounded channel that a single goroutine
// drains into an accumulator — no shared-mutable state behind callbacks.
package interceptor

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

// Event is one fully-decoded SSE payload dispatched to a Session's
// consumer goroutine.
type Event struct {
	Raw []byte
}

// Session aggregates the events from a single provider conversation turn.
// Create with NewSession, feed raw SSE chunks via Feed, and read the final
// snapshot with Close.
type Session struct {
	logger *zap.Logger
	events chan []byte
	done   chan struct{}
	acc    *Accumulator
}

// NewSession starts a Session's consumer goroutine. The caller must call
// Close exactly once to drain the channel and retrieve the accumulated
// result; ctx cancellation stops the consumer early.
func NewSession(ctx context.Context, logger *zap.Logger) *Session {
	s := &Session{
		logger: logger,
		events: make(chan []byte, 256),
		done:   make(chan struct{}),
		acc:    NewAccumulator(),
	}
	go s.consume(ctx)
	return s
}

func (s *Session) consume(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-s.events:
			if !ok {
				return
			}
			s.acc.Ingest(payload, s.logger)
		}
	}
}

// FeedSSE parses a raw chunk of server-sent-event text and pushes each
// complete event's data payload onto the session's channel. Chunks may
// split events arbitrarily; pass a *bufio.Scanner-backed reader over the
// full response body instead of per-TCP-frame chunks where possible.
func (s *Session) FeedSSE(body []byte) {
	for _, payload := range SplitSSE(body) {
		select {
		case s.events <- payload:
		default:
			// Channel full: drop rather than block the network callback.
			s.logger.Warn("interceptor: event channel full, dropping payload")
		}
	}
}

// Close stops accepting new events, waits for the consumer to drain, and
// returns the accumulated result.
func (s *Session) Close() Result {
	close(s.events)
	<-s.done
	return s.acc.Result()
}

// SplitSSE parses a complete server-sent-event stream into the sequence of
// `data:` payloads it carries, per §4.3's platform-agnostic parsing rules:
// events are blank-line delimited, multiple `data:` continuation lines are
// joined with a newline, `event:`/`id:`/`retry:` lines are discarded, and a
// payload of "[DONE]" or "null" terminates/skips the event.
func SplitSSE(body []byte) [][]byte {
	var out [][]byte
	var dataLines []string

	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		trimmed := strings.TrimSpace(payload)
		if trimmed == "" || trimmed == "[DONE]" || trimmed == "null" {
			return
		}
		out = append(out, []byte(trimmed))
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			// discarded per §4.3
		default:
			// Some providers omit the blank-line terminator between frames
			// and start the next "data:" line directly; anything else is
			// noise and is ignored.
		}
	}
	flush()
	return out
}

// decodeJSON parses payload with sonic first; on failure it falls back to
// jsonrepair to salvage a truncated or malformed fragment (common with
// providers that cut a chunk mid-object) before giving up.
func decodeJSON(payload []byte, out interface{}) error {
	if err := sonic.Unmarshal(payload, out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(string(payload))
	if err != nil {
		return err
	}
	return sonic.Unmarshal([]byte(repaired), out)
}
