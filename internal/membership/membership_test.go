package membership

import (
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
	dsn := fmt.Sprintf("file:membership%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func fetch(t *testing.T, db *gorm.DB, serverID, userID int64) models.ServerMember {
	t.Helper()
	var m models.ServerMember
	require.NoError(t, db.Where("server_id = ? AND user_id = ?", serverID, userID).First(&m).Error)
	return m
}

func TestJoinThenLeave(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(1)))
	m := fetch(t, db, 1, 100)
	assert.True(t, m.IsActive)
	assert.Equal(t, day(1), m.JoinedAt.UTC())
	assert.Nil(t, m.LeftAt)

	require.NoError(t, tr.RecordEvent(1, 100, EventLeft, day(5)))
	m = fetch(t, db, 1, 100)
	assert.False(t, m.IsActive)
	require.NotNil(t, m.LeftAt)
	assert.Equal(t, day(5), m.LeftAt.UTC())
}

func TestOutOfOrderEventIgnored(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(1)))
	require.NoError(t, tr.RecordEvent(1, 100, EventLeft, day(10)))

	// A join observation from before the leave arrives late.
	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(3)))

	m := fetch(t, db, 1, 100)
	assert.False(t, m.IsActive, "stale join must not reopen the interval")
	require.NotNil(t, m.LeftAt)
	assert.Equal(t, day(10), m.LeftAt.UTC())
}

func TestRejoinReopensInterval(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(1)))
	require.NoError(t, tr.RecordEvent(1, 100, EventLeft, day(5)))
	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(8)))

	m := fetch(t, db, 1, 100)
	assert.True(t, m.IsActive)
	assert.Equal(t, day(8), m.JoinedAt.UTC())
	assert.Nil(t, m.LeftAt)
}

func TestLeaveWithoutJoin(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventLeft, day(4)))

	m := fetch(t, db, 1, 100)
	assert.False(t, m.IsActive)
	assert.Equal(t, day(4), m.JoinedAt.UTC(), "unknown join is bounded by the leave")
	require.NotNil(t, m.LeftAt)
	assert.Equal(t, day(4), m.LeftAt.UTC())
}

func TestUnknownEventRejected(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	assert.Error(t, tr.RecordEvent(1, 100, Event("banned"), day(1)))
}

func TestTouchActiveCreates(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.TouchActive(1, 100, day(2)))
	m := fetch(t, db, 1, 100)
	assert.True(t, m.IsActive)
	assert.Equal(t, day(2), m.JoinedAt.UTC())
}

func TestTouchActiveDoesNotDisturbJoin(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(1)))
	require.NoError(t, tr.TouchActive(1, 100, day(6)))

	m := fetch(t, db, 1, 100)
	assert.Equal(t, day(1), m.JoinedAt.UTC(), "activity must not move the recorded join")
	assert.True(t, m.IsActive)
}

func TestTouchActiveKeepsLaterLeave(t *testing.T) {
	db := openTestDB(t)
	tr := New(db)

	require.NoError(t, tr.RecordEvent(1, 100, EventJoined, day(1)))
	require.NoError(t, tr.RecordEvent(1, 100, EventLeft, day(10)))

	// Activity from before the leave: the member still left afterwards.
	require.NoError(t, tr.TouchActive(1, 100, day(7)))
	m := fetch(t, db, 1, 100)
	assert.False(t, m.IsActive)
	require.NotNil(t, m.LeftAt)

	// Activity after the leave means the member is back.
	require.NoError(t, tr.TouchActive(1, 100, day(12)))
	m = fetch(t, db, 1, 100)
	assert.True(t, m.IsActive)
	assert.Nil(t, m.LeftAt)
}
