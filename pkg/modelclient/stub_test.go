package modelclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var got []Chunk
	for c := range ch {
		got = append(got, c)
	}
	return got
}

func TestStubReplaysScriptedChunksInOrder(t *testing.T) {
	stub := NewStub(
		[]Chunk{TextChunk{Text: "hello"}, ToolCallChunk{Call: ToolCall{Name: "file_write"}}},
		[]Chunk{TextChunk{Text: "done"}},
	)

	ch, err := stub.Generate(context.Background(), GenerateInput{})
	require.NoError(t, err)
	got := drain(t, ch)
	require.Len(t, got, 3)
	assert.Equal(t, TextChunk{Text: "hello"}, got[0])
	assert.IsType(t, CompleteChunk{}, got[2])

	ch2, err := stub.Generate(context.Background(), GenerateInput{})
	require.NoError(t, err)
	got2 := drain(t, ch2)
	require.Len(t, got2, 2)
	assert.Equal(t, TextChunk{Text: "done"}, got2[0])

	assert.Equal(t, 2, stub.CallCount())
}

func TestStubCancelledContextEmitsError(t *testing.T) {
	stub := NewStub([]Chunk{TextChunk{Text: "x"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := stub.Generate(ctx, GenerateInput{})
	require.NoError(t, err)
	got := drain(t, ch)
	require.Len(t, got, 1)
	errChunk, ok := got[0].(ErrorChunk)
	require.True(t, ok)
	assert.ErrorIs(t, errChunk.Err, context.Canceled)
}
