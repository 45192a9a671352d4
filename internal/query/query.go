package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"discord-insight-go/internal/models"
)

// Window is an explicit half-open time range [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// LastDays returns a window covering the last n days up to now.
func LastDays(n int) Window {
	now := time.Now().UTC()
	return Window{From: now.AddDate(0, 0, -n), To: now}
}

// Queries exposes the parameterized read operations over the normalized
// store. Soft-deleted messages are excluded everywhere unless a method
// offers an explicit opt-in.
type Queries struct {
	db *gorm.DB
}

// New creates a new query layer
func New(db *gorm.DB) *Queries {
	return &Queries{db: db}
}

// Contributor is one user's activity within a window.
type Contributor struct {
	UserID          int64     `json:"user_id"`
	DiscordID       int64     `json:"discord_id"`
	CurrentUsername string    `json:"current_username"`
	MessageCount    int64     `json:"message_count"`
	LastActive      time.Time `json:"last_active"`
	ChannelsUsed    int64     `json:"channels_used"`
}

// ChannelActivity is one channel's message count within a window.
type ChannelActivity struct {
	ChannelID    int64  `json:"channel_id"`
	ChannelName  string `json:"channel_name"`
	MessageCount int64  `json:"message_count"`
}

// ServerSummary is the high-level activity picture for one server.
type ServerSummary struct {
	ServerID       int64         `json:"server_id"`
	ServerName     string        `json:"server_name"`
	TotalMessages  int64         `json:"total_messages"`
	ActiveUsers    int64         `json:"active_users"`
	ActiveChannels int64         `json:"active_channels"`
	ThreadMessages int64         `json:"thread_messages"`
	TopUsers       []Contributor `json:"top_users"`
	Window         Window        `json:"window"`
}

// ServerSummary returns activity totals and the top ten contributors for a
// server over a window.
func (q *Queries) ServerSummary(ctx context.Context, serverID int64, w Window) (*ServerSummary, error) {
	summary := ServerSummary{ServerID: serverID, Window: w}

	var server models.Server
	if err := q.db.WithContext(ctx).Where("server_id = ?", serverID).First(&server).Error; err != nil {
		return nil, fmt.Errorf("failed to look up server %d: %w", serverID, err)
	}
	summary.ServerName = server.ServerName

	row := q.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(message_id)                                          AS total_messages,
			COUNT(DISTINCT user_id)                                    AS active_users,
			COUNT(DISTINCT channel_id)                                 AS active_channels,
			COUNT(CASE WHEN thread_id IS NOT NULL THEN message_id END) AS thread_messages
		FROM messages
		WHERE server_id = ?
		  AND created_at >= ? AND created_at < ?
		  AND is_deleted = ?`,
		serverID, w.From, w.To, false).Row()
	if err := row.Scan(&summary.TotalMessages, &summary.ActiveUsers,
		&summary.ActiveChannels, &summary.ThreadMessages); err != nil {
		return nil, fmt.Errorf("failed to compute summary for server %d: %w", serverID, err)
	}

	top, err := q.TopContributors(ctx, serverID, w, 10)
	if err != nil {
		return nil, err
	}
	summary.TopUsers = top
	return &summary, nil
}

// TopContributors returns the most active users in a server over a window,
// together with each user's last activity and distinct channel count.
func (q *Queries) TopContributors(ctx context.Context, serverID int64, w Window, limit int) ([]Contributor, error) {
	rows, err := q.db.WithContext(ctx).Raw(`
		SELECT u.user_id, u.discord_id, u.current_username,
		       COUNT(m.message_id)          AS message_count,
		       MAX(m.created_at)            AS last_active,
		       COUNT(DISTINCT m.channel_id) AS channels_used
		FROM messages m
		JOIN users u ON m.user_id = u.user_id
		WHERE m.server_id = ?
		  AND m.created_at >= ? AND m.created_at < ?
		  AND m.is_deleted = ?
		GROUP BY u.user_id, u.discord_id, u.current_username
		ORDER BY message_count DESC, u.user_id ASC
		LIMIT ?`,
		serverID, w.From, w.To, false, limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query top contributors: %w", err)
	}
	defer rows.Close()

	var result []Contributor
	for rows.Next() {
		var c Contributor
		var lastActive interface{}
		if err := rows.Scan(&c.UserID, &c.DiscordID, &c.CurrentUsername,
			&c.MessageCount, &lastActive, &c.ChannelsUsed); err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		c.LastActive = asTime(lastActive)
		result = append(result, c)
	}
	return result, rows.Err()
}

// asTime normalizes a timestamp read from an aggregate expression. Aggregates
// lose their declared column type on some drivers, so the value can arrive as
// time.Time, text, or raw bytes depending on the store.
func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []byte:
		return parseStoredTime(string(t))
	case string:
		return parseStoredTime(t)
	}
	return time.Time{}
}

func parseStoredTime(s string) time.Time {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// TopChannels returns the most active non-thread channels in a server over a
// window.
func (q *Queries) TopChannels(ctx context.Context, serverID int64, w Window, limit int) ([]ChannelActivity, error) {
	var rows []ChannelActivity
	err := q.db.WithContext(ctx).Raw(`
		SELECT channel_id, channel_name, COUNT(message_id) AS message_count
		FROM messages
		WHERE server_id = ?
		  AND created_at >= ? AND created_at < ?
		  AND is_deleted = ?
		  AND thread_id IS NULL
		GROUP BY channel_id, channel_name
		ORDER BY message_count DESC, channel_id ASC
		LIMIT ?`,
		serverID, w.From, w.To, false, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top channels: %w", err)
	}
	return rows, nil
}

// UserInfo identifies one account.
type UserInfo struct {
	UserID          int64  `json:"user_id"`
	DiscordID       int64  `json:"discord_id"`
	CurrentUsername string `json:"current_username"`
}

// NewUsers returns accounts first seen within the window that have activity
// in the given server.
func (q *Queries) NewUsers(ctx context.Context, serverID int64, w Window) ([]UserInfo, error) {
	var rows []UserInfo
	err := q.db.WithContext(ctx).Raw(`
		SELECT u.user_id, u.discord_id, u.current_username
		FROM users u
		WHERE u.created_at >= ? AND u.created_at < ?
		  AND EXISTS (
			SELECT 1 FROM messages m
			WHERE m.user_id = u.user_id AND m.server_id = ?
			  AND m.is_deleted = ?
		  )
		ORDER BY u.created_at ASC`,
		w.From, w.To, serverID, false).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query new users: %w", err)
	}
	return rows, nil
}

// CrossServerUser is an account active in several monitored servers.
type CrossServerUser struct {
	DiscordID       int64  `json:"discord_id"`
	CurrentUsername string `json:"current_username"`
	ServerCount     int64  `json:"server_count"`
	Servers         string `json:"servers"`
}

// UsersAcrossServers returns accounts with an active membership in at least
// minServers servers.
func (q *Queries) UsersAcrossServers(ctx context.Context, minServers int) ([]CrossServerUser, error) {
	var rows []CrossServerUser
	err := q.db.WithContext(ctx).Raw(`
		SELECT
			u.discord_id,
			u.current_username,
			COUNT(DISTINCT sm.server_id)          AS server_count,
			GROUP_CONCAT(DISTINCT s.server_name)  AS servers
		FROM users u
		JOIN server_members sm ON u.user_id = sm.user_id
		JOIN servers s         ON sm.server_id = s.server_id
		WHERE sm.is_active = ?
		GROUP BY u.user_id, u.discord_id, u.current_username
		HAVING COUNT(DISTINCT sm.server_id) >= ?
		ORDER BY server_count DESC, u.user_id ASC`,
		true, minServers).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query cross-server users: %w", err)
	}
	return rows, nil
}

// SearchResult is one message matched by a content search.
type SearchResult struct {
	MessageID   int64     `json:"message_id"`
	CreatedAt   time.Time `json:"created_at"`
	ServerName  string    `json:"server_name"`
	ChannelName string    `json:"channel_name"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	IsDeleted   bool      `json:"is_deleted"`
}

// SearchOptions narrows a content search.
type SearchOptions struct {
	ServerID       *int64
	Limit          int
	IncludeDeleted bool
}

// SearchMessages runs a case-insensitive substring search over message
// content, newest first.
func (q *Queries) SearchMessages(ctx context.Context, term string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	sql := `
		SELECT m.message_id, m.created_at, s.server_name, m.channel_name,
		       u.current_username AS author, m.content, m.is_deleted
		FROM messages m
		JOIN servers s ON m.server_id = s.server_id
		JOIN users u   ON m.user_id = u.user_id
		WHERE LOWER(m.content) LIKE LOWER(?)`
	args := []interface{}{"%" + term + "%"}

	if !opts.IncludeDeleted {
		sql += " AND m.is_deleted = ?"
		args = append(args, false)
	}
	if opts.ServerID != nil {
		sql += " AND m.server_id = ?"
		args = append(args, *opts.ServerID)
	}
	sql += " ORDER BY m.created_at DESC, m.message_id DESC LIMIT ?"
	args = append(args, limit)

	var rows []SearchResult
	if err := q.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return rows, nil
}

// UserMessage is one of a user's messages with its server and channel
// context.
type UserMessage struct {
	MessageID     int64     `json:"message_id"`
	CreatedAt     time.Time `json:"created_at"`
	ServerName    string    `json:"server_name"`
	ChannelName   string    `json:"channel_name"`
	Content       string    `json:"content"`
	ReactionCount int64     `json:"reaction_count"`
}

// UserMessageContext returns all of one user's messages across servers with
// context and per-message reaction counts, newest first. A nil window fetches
// the full history, which can be large.
func (q *Queries) UserMessageContext(ctx context.Context, userID int64, w *Window) ([]UserMessage, error) {
	sql := `
		SELECT m.message_id, m.created_at, s.server_name, m.channel_name,
		       m.content, COUNT(r.id) AS reaction_count
		FROM messages m
		JOIN servers s        ON m.server_id = s.server_id
		LEFT JOIN reactions r ON m.message_id = r.message_id
		WHERE m.user_id = ?
		  AND m.is_deleted = ?`
	args := []interface{}{userID, false}

	if w != nil {
		sql += " AND m.created_at >= ? AND m.created_at < ?"
		args = append(args, w.From, w.To)
	}
	sql += `
		GROUP BY m.message_id, m.created_at, s.server_name, m.channel_name, m.content
		ORDER BY m.created_at DESC, m.message_id DESC`

	var rows []UserMessage
	if err := q.db.WithContext(ctx).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query messages for user %d: %w", userID, err)
	}
	return rows, nil
}

// MonthlyChange is one month of membership churn for a server.
type MonthlyChange struct {
	Month       string `json:"month"`
	NewMembers  int64  `json:"new_members"`
	LeftMembers int64  `json:"left_members"`
	NetChange   int64  `json:"net_change"`
}

// ServerHealth returns per-month join/leave counts for a server, newest
// month first. Bucketing happens in Go to stay portable across stores.
func (q *Queries) ServerHealth(ctx context.Context, serverID int64) ([]MonthlyChange, error) {
	var members []models.ServerMember
	if err := q.db.WithContext(ctx).Where("server_id = ?", serverID).Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to query memberships for server %d: %w", serverID, err)
	}

	buckets := make(map[string]*MonthlyChange)
	bucket := func(month string) *MonthlyChange {
		if b, ok := buckets[month]; ok {
			return b
		}
		b := &MonthlyChange{Month: month}
		buckets[month] = b
		return b
	}
	for _, m := range members {
		bucket(m.JoinedAt.UTC().Format("2006-01")).NewMembers++
		if m.LeftAt != nil {
			bucket(m.LeftAt.UTC().Format("2006-01")).LeftMembers++
		}
	}

	months := make([]string, 0, len(buckets))
	for month := range buckets {
		months = append(months, month)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	result := make([]MonthlyChange, 0, len(months))
	for _, month := range months {
		b := buckets[month]
		b.NetChange = b.NewMembers - b.LeftMembers
		result = append(result, *b)
	}
	return result, nil
}

// FindUsers finds accounts by username, case-insensitive partial match over
// both the current name and the rename history.
func (q *Queries) FindUsers(ctx context.Context, name string) ([]UserInfo, error) {
	pattern := "%" + name + "%"
	var rows []UserInfo
	err := q.db.WithContext(ctx).Raw(`
		SELECT DISTINCT u.user_id, u.discord_id, u.current_username
		FROM users u
		LEFT JOIN username_history h ON h.user_id = u.user_id
		WHERE LOWER(u.current_username) LIKE LOWER(?)
		   OR LOWER(h.username) LIKE LOWER(?)
		ORDER BY u.current_username ASC`,
		pattern, pattern).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	return rows, nil
}

// AllServers returns every server in the store, active or not.
func (q *Queries) AllServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	if err := q.db.WithContext(ctx).Order("server_name ASC").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}
