package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-insight-go/internal/query"
)

func msg(id int64, content string) query.HistoryMessage {
	return query.HistoryMessage{
		MessageID: id,
		CreatedAt: time.Date(2024, 1, 15, 14, 32, 0, 0, time.UTC),
		Author:    "alice",
		Content:   content,
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hi"))
	// 10 words at 1.3 tokens per word.
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("word ", 10)))
}

func TestChunkMessagesRespectsBudget(t *testing.T) {
	var messages []query.HistoryMessage
	for i := 0; i < 20; i++ {
		messages = append(messages, msg(int64(i+1), strings.Repeat("word ", 10)))
	}

	// Each message estimates to 13 tokens; a 30-token budget fits two.
	chunks := ChunkMessages(messages, 30)
	require.Len(t, chunks, 10)
	for _, chunk := range chunks {
		assert.Len(t, chunk, 2)
	}

	// Order and completeness survive chunking.
	var total int
	next := int64(1)
	for _, chunk := range chunks {
		for _, m := range chunk {
			assert.Equal(t, next, m.MessageID)
			next++
			total++
		}
	}
	assert.Equal(t, 20, total)
}

func TestChunkMessagesNeverSplitsOne(t *testing.T) {
	oversized := msg(1, strings.Repeat("word ", 200))
	small := msg(2, "short")

	chunks := ChunkMessages([]query.HistoryMessage{oversized, small}, 50)
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(1), chunks[0][0].MessageID, "an oversized message gets its own chunk")
	assert.Equal(t, int64(2), chunks[1][0].MessageID)
}

func TestChunkMessagesEmpty(t *testing.T) {
	assert.Nil(t, ChunkMessages(nil, 100))
}

func TestFormatMessages(t *testing.T) {
	messages := []query.HistoryMessage{
		msg(1, "Hello, how do I use malloc?"),
		msg(2, ""),
		msg(3, "  trimmed  "),
	}

	out := FormatMessages(messages, true)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2, "empty content is skipped")
	assert.Equal(t, "[2024-01-15 14:32] alice: Hello, how do I use malloc?", lines[0])
	assert.Equal(t, "[2024-01-15 14:32] alice: trimmed", lines[1])

	out = FormatMessages(messages, false)
	assert.Equal(t, "alice: Hello, how do I use malloc?\nalice: trimmed", out)
}

func TestFormatMessagesUnknownAuthor(t *testing.T) {
	m := msg(1, "orphan")
	m.Author = ""
	out := FormatMessages([]query.HistoryMessage{m}, false)
	assert.Equal(t, "unknown: orphan", out)
}
