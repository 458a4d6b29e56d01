package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const doneToken = "[DONE]"

// StreamEvent is one decoded event of a streaming completion. It is a
// closed set: TextEvent or UsageEvent.
type StreamEvent interface {
	streamEvent()
}

// TextEvent carries the cumulative assistant text decoded so far. Each
// successive event's Content is a prefix-extension of the previous one.
type TextEvent struct {
	Content string
}

// UsageEvent carries the token accounting included in a chunk,
// typically the final one.
type UsageEvent struct {
	Usage Usage
}

func (TextEvent) streamEvent()  {}
func (UsageEvent) streamEvent() {}

// StreamParser decodes an SSE-framed completion stream into Text and
// Usage events.
//
// Lines are read one at a time; `data:` payloads are buffered until
// they parse as a complete chunk, so one logical event may span
// several lines (rejoined with '\n'). Comment lines starting with ':'
// are ignored, a blank line flushes the buffered payload and the
// `[DONE]` sentinel ends the stream. Payloads still unparsable at end
// of stream are discarded.
type StreamParser struct{}

// NewStreamParser creates a new stream parser
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Parse consumes body until end of stream, calling emit for each
// decoded event. The body is always closed before returning. A read
// failure or context cancellation is returned as-is; emitted Text
// events carry cumulative content, never deltas.
func (p *StreamParser) Parse(ctx context.Context, body io.ReadCloser, emit func(StreamEvent)) error {
	defer body.Close()

	reader := bufio.NewReader(body)
	var accumulated strings.Builder
	var pending strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		done := false
		if line != "" || readErr == nil {
			done = p.consumeLine(line, &pending, &accumulated, emit)
		}
		if done {
			break
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return readErr
		}
	}

	// One last attempt at whatever is still buffered.
	p.consumeBufferedPayload(&pending, &accumulated, emit)
	return nil
}

// consumeLine handles a single SSE line and reports whether the
// terminal sentinel was reached.
func (p *StreamParser) consumeLine(line string, pending, accumulated *strings.Builder, emit func(StreamEvent)) bool {
	if strings.HasPrefix(line, ":") {
		return false
	}

	if line == "" {
		p.consumeBufferedPayload(pending, accumulated, emit)
		return false
	}

	if !strings.HasPrefix(line, "data:") {
		return false
	}
	dataPart := strings.TrimLeft(strings.TrimPrefix(line, "data:"), " \t")

	if dataPart == doneToken {
		return true
	}

	if p.consumePayloadIfComplete(dataPart, accumulated, emit) {
		pending.Reset()
		return false
	}

	if pending.Len() > 0 {
		pending.WriteByte('\n')
	}
	pending.WriteString(dataPart)

	p.consumeBufferedPayload(pending, accumulated, emit)
	return false
}

func (p *StreamParser) consumeBufferedPayload(pending, accumulated *strings.Builder, emit func(StreamEvent)) {
	payload := strings.TrimSpace(pending.String())
	if payload == "" || payload == doneToken {
		pending.Reset()
		return
	}

	if p.consumePayloadIfComplete(payload, accumulated, emit) {
		pending.Reset()
	}
}

// consumePayloadIfComplete parses payload as a chunk and emits its
// events, returning false when the payload is not yet complete JSON.
func (p *StreamParser) consumePayloadIfComplete(payload string, accumulated *strings.Builder, emit func(StreamEvent)) bool {
	var chunk ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return false
	}

	var piece strings.Builder
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != nil {
			piece.WriteString(*choice.Delta.Content)
		}
	}

	if piece.Len() > 0 {
		accumulated.WriteString(piece.String())
		emit(TextEvent{Content: accumulated.String()})
	}

	if chunk.Usage != nil {
		emit(UsageEvent{Usage: *chunk.Usage})
	}

	return true
}
