package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, stream string) []StreamEvent {
	t.Helper()

	var events []StreamEvent
	err := NewStreamParser().Parse(context.Background(), io.NopCloser(strings.NewReader(stream)), func(e StreamEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	return events
}

func textContents(events []StreamEvent) []string {
	var texts []string
	for _, e := range events {
		if text, ok := e.(TextEvent); ok {
			texts = append(texts, text.Content)
		}
	}
	return texts
}

func TestStreamParser_CumulativeText(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"

	texts := textContents(collectEvents(t, stream))

	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, texts)

	// Each event extends the previous one.
	for i := 1; i < len(texts); i++ {
		assert.True(t, strings.HasPrefix(texts[i], texts[i-1]))
	}
}

func TestStreamParser_EmptyDeltaEmitsNothing(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 1)
	assert.Equal(t, TextEvent{Content: "hi"}, events[0])
}

func TestStreamParser_UsageChunk(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3,\"total_tokens\":15,\"prompt_cache_hit_tokens\":8,\"prompt_cache_miss_tokens\":4}}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 2)
	assert.Equal(t, TextEvent{Content: "ok"}, events[0])
	assert.Equal(t, UsageEvent{Usage: Usage{
		PromptTokens:          12,
		CompletionTokens:      3,
		TotalTokens:           15,
		PromptCacheHitTokens:  8,
		PromptCacheMissTokens: 4,
	}}, events[1])
}

func TestStreamParser_TextAndUsageInOneChunk(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"done\"}}],\"usage\":{\"total_tokens\":7}}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 2)
	assert.Equal(t, TextEvent{Content: "done"}, events[0])
	assert.Equal(t, UsageEvent{Usage: Usage{TotalTokens: 7}}, events[1])
}

func TestStreamParser_CommentsIgnored(t *testing.T) {
	stream := ": keep-alive\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		": another comment\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 1)
	assert.Equal(t, TextEvent{Content: "a"}, events[0])
}

func TestStreamParser_MultiLinePayloadRejoined(t *testing.T) {
	// A JSON payload split across two data: lines is rejoined with a
	// newline before parsing.
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\n" +
		"data: \"joined\"}}]}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 1)
	assert.Equal(t, TextEvent{Content: "joined"}, events[0])
}

func TestStreamParser_EOFWithoutDone(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" text\"}}]}\n\n"

	texts := textContents(collectEvents(t, stream))

	assert.Equal(t, []string{"partial", "partial text"}, texts)
}

func TestStreamParser_FinalLineWithoutNewline(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}"

	events := collectEvents(t, stream)

	require.Len(t, events, 1)
	assert.Equal(t, TextEvent{Content: "tail"}, events[0])
}

func TestStreamParser_GarbageAfterDoneIgnored(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"never\"}}]}\n\n"

	texts := textContents(collectEvents(t, stream))

	assert.Equal(t, []string{"x"}, texts)
}

func TestStreamParser_UnparsablePayloadDiscardedAtEOF(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"good\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"cont\n"

	texts := textContents(collectEvents(t, stream))

	assert.Equal(t, []string{"good"}, texts)
}

func TestStreamParser_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := io.NopCloser(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"))
	err := NewStreamParser().Parse(ctx, body, func(StreamEvent) {
		t.Fatal("no events expected after cancellation")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

type closeTrackingReader struct {
	io.Reader
	closed bool
}

func (r *closeTrackingReader) Close() error {
	r.closed = true
	return nil
}

func TestStreamParser_ClosesBody(t *testing.T) {
	body := &closeTrackingReader{Reader: strings.NewReader("data: [DONE]\n\n")}

	err := NewStreamParser().Parse(context.Background(), body, func(StreamEvent) {})

	require.NoError(t, err)
	assert.True(t, body.closed)
}

func TestStreamParser_MultipleChoicesConcatenated(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}},{\"delta\":{\"content\":\"b\"}}]}\n\n" +
		"data: [DONE]\n\n"

	events := collectEvents(t, stream)

	require.Len(t, events, 1)
	assert.Equal(t, TextEvent{Content: "ab"}, events[0])
}
