package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HistoryMessage is one row of a channel history page.
type HistoryMessage struct {
	MessageID        int64     `json:"message_id"`
	CreatedAt        time.Time `json:"created_at"`
	Author           string    `json:"author"`
	Content          string    `json:"content"`
	ReplyToMessageID *int64    `json:"reply_to_message_id,omitempty"`
	ThreadID         *int64    `json:"thread_id,omitempty"`
}

// HistoryCursor marks a position in a channel history scan. The (created_at,
// message_id) pair is a stable total order over messages, so a cursor can be
// stored and resumed later without duplicating or skipping rows, even while
// new messages are being merged concurrently.
type HistoryCursor struct {
	CreatedAt time.Time `json:"created_at"`
	MessageID int64     `json:"message_id"`
}

// String encodes the cursor as "<RFC3339Nano>:<message_id>" for use as an
// opaque pagination token.
func (c HistoryCursor) String() string {
	return fmt.Sprintf("%s:%d", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.MessageID)
}

// ParseCursor decodes a token produced by HistoryCursor.String.
func ParseCursor(token string) (HistoryCursor, error) {
	sep := strings.LastIndex(token, ":")
	if sep < 0 {
		return HistoryCursor{}, fmt.Errorf("malformed cursor %q", token)
	}
	ts, err := time.Parse(time.RFC3339Nano, token[:sep])
	if err != nil {
		return HistoryCursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	id, err := strconv.ParseInt(token[sep+1:], 10, 64)
	if err != nil {
		return HistoryCursor{}, fmt.Errorf("malformed cursor id: %w", err)
	}
	return HistoryCursor{CreatedAt: ts, MessageID: id}, nil
}

// HistoryPager pages through a channel's history in bounded chunks. The
// consumer pulls each chunk explicitly with Next; nothing is prefetched, so
// memory stays bounded regardless of channel size.
type HistoryPager struct {
	q              *Queries
	serverID       int64
	channelID      int64
	window         Window
	chunkSize      int
	includeDeleted bool
	cursor         HistoryCursor
	done           bool
}

// ChannelHistory creates a pager over the non-deleted messages of a channel
// within a window, ordered oldest first by (created_at, message_id).
func (q *Queries) ChannelHistory(serverID, channelID int64, w Window, chunkSize int) *HistoryPager {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &HistoryPager{
		q:         q,
		serverID:  serverID,
		channelID: channelID,
		window:    w,
		chunkSize: chunkSize,
	}
}

// IncludeDeleted opts the pager into returning soft-deleted messages too.
func (p *HistoryPager) IncludeDeleted() *HistoryPager {
	p.includeDeleted = true
	return p
}

// Resume positions the pager just after a previously returned cursor.
func (p *HistoryPager) Resume(cursor HistoryCursor) *HistoryPager {
	p.cursor = cursor
	p.done = false
	return p
}

// Cursor returns the position after the last row returned by Next. Valid to
// persist and hand to Resume on a fresh pager.
func (p *HistoryPager) Cursor() HistoryCursor {
	return p.cursor
}

// Next returns the next chunk, at most chunkSize rows. A nil slice means the
// scan is exhausted.
func (p *HistoryPager) Next(ctx context.Context) ([]HistoryMessage, error) {
	if p.done {
		return nil, nil
	}

	sql := `
		SELECT m.message_id, m.created_at, u.current_username AS author,
		       m.content, m.reply_to_message_id, m.thread_id
		FROM messages m
		JOIN users u ON m.user_id = u.user_id
		WHERE m.server_id = ? AND m.channel_id = ?
		  AND m.created_at >= ? AND m.created_at < ?`
	args := []interface{}{p.serverID, p.channelID, p.window.From, p.window.To}

	if !p.includeDeleted {
		sql += " AND m.is_deleted = ?"
		args = append(args, false)
	}
	if !p.cursor.CreatedAt.IsZero() {
		sql += " AND (m.created_at > ? OR (m.created_at = ? AND m.message_id > ?))"
		args = append(args, p.cursor.CreatedAt, p.cursor.CreatedAt, p.cursor.MessageID)
	}
	sql += " ORDER BY m.created_at ASC, m.message_id ASC LIMIT ?"
	args = append(args, p.chunkSize)

	var rows []HistoryMessage
	if err := p.q.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history chunk: %w", err)
	}

	if len(rows) == 0 {
		p.done = true
		return nil, nil
	}

	last := rows[len(rows)-1]
	p.cursor = HistoryCursor{CreatedAt: last.CreatedAt, MessageID: last.MessageID}
	if len(rows) < p.chunkSize {
		p.done = true
	}
	return rows, nil
}
