package report

import (
	"strings"

	"discord-insight-go/internal/query"
)

// DefaultMaxTokens is the per-chunk token budget handed to downstream
// consumers with bounded context windows.
const DefaultMaxTokens = 8000

// tokensPerWord is a conservative estimate covering punctuation and subword
// splitting of technical terms.
const tokensPerWord = 1.3

// EstimateTokens estimates the token count of a string from its word count.
// Fast and accurate enough for chunking without a tokenizer.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(strings.Fields(text))) * tokensPerWord)
	if n < 1 {
		return 1
	}
	return n
}

// ChunkMessages splits messages into chunks whose combined content stays
// within the token budget. Messages are never split: one that exceeds the
// budget on its own gets its own chunk rather than being dropped.
func ChunkMessages(messages []query.HistoryMessage, maxTokens int) [][]query.HistoryMessage {
	if len(messages) == 0 {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	var chunks [][]query.HistoryMessage
	var current []query.HistoryMessage
	currentTokens := 0

	for _, msg := range messages {
		tokens := EstimateTokens(msg.Content)
		if currentTokens+tokens > maxTokens && len(current) > 0 {
			chunks = append(chunks, current)
			current = []query.HistoryMessage{msg}
			currentTokens = tokens
		} else {
			current = append(current, msg)
			currentTokens += tokens
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// FormatMessages renders messages as readable conversation text, one line
// per message:
//
//	[2024-01-15 14:32] alice: Hello, how do I use malloc?
//
// Messages with empty content (attachment-only posts) are skipped.
func FormatMessages(messages []query.HistoryMessage, includeTimestamps bool) string {
	var lines []string
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		author := msg.Author
		if author == "" {
			author = "unknown"
		}
		if includeTimestamps {
			lines = append(lines, "["+msg.CreatedAt.Format("2006-01-02 15:04")+"] "+author+": "+content)
		} else {
			lines = append(lines, author+": "+content)
		}
	}
	return strings.Join(lines, "\n")
}
