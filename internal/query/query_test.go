package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"discord-insight-go/internal/database"
	"discord-insight-go/internal/models"
)

var dbSeq int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:query%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

// seedFixture builds a small two-server world:
//
//	server 1 "Gopher Hangout": alice (3 msgs in #general), bob (2 msgs in
//	#random, one of them deleted), carol (1 msg in a thread)
//	server 2 "Side Project": bob (1 msg)
func seedFixture(t *testing.T, db *gorm.DB) {
	t.Helper()

	servers := []models.Server{
		{ServerID: 1, ServerName: "Gopher Hangout", FirstSeen: at(1, 0), MonitoredFrom: at(1, 0), IsActive: true},
		{ServerID: 2, ServerName: "Side Project", FirstSeen: at(1, 0), MonitoredFrom: at(1, 0), IsActive: true},
	}
	require.NoError(t, db.Create(&servers).Error)

	users := []models.User{
		{UserID: 1, DiscordID: 1001, CurrentUsername: "alice", CreatedAt: at(1, 0), LastSeen: at(9, 0)},
		{UserID: 2, DiscordID: 1002, CurrentUsername: "bob", CreatedAt: at(2, 0), LastSeen: at(9, 0)},
		{UserID: 3, DiscordID: 1003, CurrentUsername: "carol", CreatedAt: at(20, 0), LastSeen: at(20, 0)},
	}
	require.NoError(t, db.Create(&users).Error)

	threadID := int64(99)
	messages := []models.Message{
		{MessageID: 1, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 1, Content: "morning", CreatedAt: at(3, 9)},
		{MessageID: 2, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 1, Content: "deploy done", CreatedAt: at(3, 10)},
		{MessageID: 3, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 1, Content: "Deploy FAILED", CreatedAt: at(4, 9)},
		{MessageID: 4, ServerID: 1, ChannelID: 11, ChannelName: "random", UserID: 2, Content: "lunch?", CreatedAt: at(3, 12)},
		{MessageID: 5, ServerID: 1, ChannelID: 11, ChannelName: "random", UserID: 2, Content: "oops", CreatedAt: at(3, 13), IsDeleted: true, DeletedAt: timePtr(at(3, 14))},
		{MessageID: 6, ServerID: 1, ChannelID: 12, ChannelName: "thread-talk", UserID: 3, Content: "in thread", CreatedAt: at(20, 9), ThreadID: &threadID},
		{MessageID: 7, ServerID: 2, ChannelID: 20, ChannelName: "dev", UserID: 2, Content: "pushed a fix", CreatedAt: at(5, 9)},
	}
	require.NoError(t, db.Create(&messages).Error)

	members := []models.ServerMember{
		{ServerID: 1, UserID: 1, JoinedAt: at(1, 0), IsActive: true},
		{ServerID: 1, UserID: 2, JoinedAt: at(2, 0), IsActive: true},
		{ServerID: 1, UserID: 3, JoinedAt: at(20, 0), IsActive: true},
		{ServerID: 2, UserID: 2, JoinedAt: at(2, 0), IsActive: true},
	}
	require.NoError(t, db.Create(&members).Error)
}

func march() Window {
	return Window{From: at(1, 0), To: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
}

func TestServerSummary(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	summary, err := q.ServerSummary(context.Background(), 1, march())
	require.NoError(t, err)

	assert.Equal(t, "Gopher Hangout", summary.ServerName)
	assert.Equal(t, int64(5), summary.TotalMessages, "deleted messages are excluded")
	assert.Equal(t, int64(3), summary.ActiveUsers)
	assert.Equal(t, int64(3), summary.ActiveChannels)
	assert.Equal(t, int64(1), summary.ThreadMessages)
	require.NotEmpty(t, summary.TopUsers)
	assert.Equal(t, "alice", summary.TopUsers[0].CurrentUsername)
}

func TestTopContributorsOrderAndWindow(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	top, err := q.TopContributors(context.Background(), 1, march(), 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "alice", top[0].CurrentUsername)
	assert.Equal(t, int64(3), top[0].MessageCount)
	assert.True(t, top[0].LastActive.Equal(at(4, 9)), "last_active is alice's newest message, got %v", top[0].LastActive)
	assert.Equal(t, int64(1), top[0].ChannelsUsed)
	assert.Equal(t, "bob", top[1].CurrentUsername)
	assert.Equal(t, int64(1), top[1].MessageCount, "deleted message does not count")
	assert.True(t, top[1].LastActive.Equal(at(3, 12)))

	// Narrow window: only March 3rd.
	narrow := Window{From: at(3, 0), To: at(4, 0)}
	top, err = q.TopContributors(context.Background(), 1, narrow, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].MessageCount)
}

func TestTopChannelsExcludesThreads(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	channels, err := q.TopChannels(context.Background(), 1, march(), 10)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].ChannelName)
	assert.Equal(t, int64(3), channels[0].MessageCount)
	assert.Equal(t, "random", channels[1].ChannelName)
	assert.Equal(t, int64(1), channels[1].MessageCount)
}

func TestNewUsers(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	// Second half of March: only carol is new.
	w := Window{From: at(15, 0), To: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	users, err := q.NewUsers(context.Background(), 1, w)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].CurrentUsername)

	// carol never posted in server 2.
	users, err = q.NewUsers(context.Background(), 2, w)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestNewUsersIgnoresDeletedActivity(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	// dave's only message in server 1 was deleted.
	require.NoError(t, db.Create(&models.User{
		UserID: 4, DiscordID: 1004, CurrentUsername: "dave", CreatedAt: at(16, 0), LastSeen: at(16, 0),
	}).Error)
	require.NoError(t, db.Create(&models.Message{
		MessageID: 8, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 4,
		Content: "hello", CreatedAt: at(16, 9), IsDeleted: true, DeletedAt: timePtr(at(16, 10)),
	}).Error)

	w := Window{From: at(15, 0), To: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	users, err := q.NewUsers(context.Background(), 1, w)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].CurrentUsername)
}

func TestUserMessageContext(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	reactions := []models.Reaction{
		{MessageID: 1, Emoji: "👍", UserID: 2},
		{MessageID: 1, Emoji: "🎉", UserID: 3},
		{MessageID: 2, Emoji: "👍", UserID: 2},
	}
	require.NoError(t, db.Create(&reactions).Error)

	// Full history, newest first, with reaction counts.
	messages, err := q.UserMessageContext(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, int64(3), messages[0].MessageID)
	assert.Equal(t, int64(2), messages[1].MessageID)
	assert.Equal(t, int64(1), messages[2].MessageID)
	assert.Equal(t, "Gopher Hangout", messages[0].ServerName)
	assert.Equal(t, "general", messages[0].ChannelName)
	assert.Zero(t, messages[0].ReactionCount)
	assert.Equal(t, int64(1), messages[1].ReactionCount)
	assert.Equal(t, int64(2), messages[2].ReactionCount)

	// Messages from every server the user posts in; deleted ones excluded.
	messages, err = q.UserMessageContext(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Side Project", messages[0].ServerName)
	assert.Equal(t, "Gopher Hangout", messages[1].ServerName)

	// Window narrows the history.
	w := Window{From: at(4, 0), To: at(5, 0)}
	messages, err = q.UserMessageContext(context.Background(), 1, &w)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(3), messages[0].MessageID)
}

func TestUsersAcrossServers(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	users, err := q.UsersAcrossServers(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].CurrentUsername)
	assert.Equal(t, int64(2), users[0].ServerCount)

	users, err = q.UsersAcrossServers(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestSearchMessages(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	// Case-insensitive, newest first.
	results, err := q.SearchMessages(context.Background(), "deploy", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Deploy FAILED", results[0].Content)
	assert.Equal(t, "deploy done", results[1].Content)

	// Deleted messages are hidden unless asked for.
	results, err = q.SearchMessages(context.Background(), "oops", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = q.SearchMessages(context.Background(), "oops", SearchOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsDeleted)

	// Server filter.
	serverID := int64(2)
	results, err = q.SearchMessages(context.Background(), "fix", SearchOptions{ServerID: &serverID})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Side Project", results[0].ServerName)
}

func TestServerHealthBucketsByMonth(t *testing.T) {
	db := openTestDB(t)
	q := New(db)

	require.NoError(t, db.Create(&models.Server{ServerID: 1, ServerName: "S", FirstSeen: at(1, 0), MonitoredFrom: at(1, 0), IsActive: true}).Error)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	left := at(12, 0)
	members := []models.ServerMember{
		{ServerID: 1, UserID: 1, JoinedAt: feb, IsActive: true},
		{ServerID: 1, UserID: 2, JoinedAt: at(5, 0), LeftAt: &left, IsActive: false},
		{ServerID: 1, UserID: 3, JoinedAt: at(8, 0), IsActive: true},
	}
	require.NoError(t, db.Create(&members).Error)

	changes, err := q.ServerHealth(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "2024-03", changes[0].Month)
	assert.Equal(t, int64(2), changes[0].NewMembers)
	assert.Equal(t, int64(1), changes[0].LeftMembers)
	assert.Equal(t, int64(1), changes[0].NetChange)

	assert.Equal(t, "2024-02", changes[1].Month)
	assert.Equal(t, int64(1), changes[1].NewMembers)
	assert.Equal(t, int64(1), changes[1].NetChange)
}

func TestFindUsersIncludesHistory(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	require.NoError(t, db.Create(&models.UsernameHistory{
		UserID: 2, Username: "bob", ChangedFrom: "bobby_tables", ChangedAt: at(2, 0),
	}).Error)
	require.NoError(t, db.Create(&models.UsernameHistory{
		UserID: 2, Username: "bobby_tables", ChangedFrom: "robert", ChangedAt: at(1, 0),
	}).Error)

	users, err := q.FindUsers(context.Background(), "BOBBY")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].CurrentUsername, "historical name resolves to the current account")

	users, err = q.FindUsers(context.Background(), "ali")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].CurrentUsername)
}

func TestAllServers(t *testing.T) {
	db := openTestDB(t)
	seedFixture(t, db)
	q := New(db)

	servers, err := q.AllServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "Gopher Hangout", servers[0].ServerName)
}
