package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"discord-insight-go/internal/database"
	"discord-insight-go/internal/metrics"
	"discord-insight-go/internal/models"
	"discord-insight-go/internal/query"
)

var dbSeq int64

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics()

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	gin.SetMode(gin.TestMode)
	h := NewHandlers(db, query.New(db), nil, nil, nil, nil, testMetrics)
	router := gin.New()
	h.SetupRoutes(router)
	return router, db
}

func seedUserActivity(t *testing.T, db *gorm.DB) {
	t.Helper()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&models.Server{
		ServerID: 1, ServerName: "Gopher Hangout",
		FirstSeen: base, MonitoredFrom: base, IsActive: true,
	}).Error)
	require.NoError(t, db.Create(&models.User{
		UserID: 1, DiscordID: 1001, CurrentUsername: "alice",
		CreatedAt: base, LastSeen: base,
	}).Error)
	messages := []models.Message{
		{MessageID: 1, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 1, Content: "first", CreatedAt: base},
		{MessageID: 2, ServerID: 1, ChannelID: 10, ChannelName: "general", UserID: 1, Content: "second", CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, db.Create(&messages).Error)
	require.NoError(t, db.Create(&models.Reaction{MessageID: 1, Emoji: "👍", UserID: 1}).Error)
}

func TestGetUserMessages(t *testing.T) {
	router, db := newTestRouter(t)
	seedUserActivity(t, db)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/1/messages", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []query.UserMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, int64(2), messages[0].MessageID, "newest first")
	assert.Equal(t, "Gopher Hangout", messages[0].ServerName)
	assert.Equal(t, int64(1), messages[1].ReactionCount)
}

func TestGetUserMessagesBadID(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/nope/messages", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIRequestsFeedDurationHistogram(t *testing.T) {
	router, _ := newTestRouter(t)
	before := durationSamples(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, before+1, durationSamples(t))
}

func durationSamples(t *testing.T) uint64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, testMetrics.QueryDuration.Write(&pb))
	return pb.GetHistogram().GetSampleCount()
}
