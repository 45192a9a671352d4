package membership

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"discord-insight-go/internal/models"
)

// Event is a membership observation type.
type Event string

const (
	EventJoined Event = "joined"
	EventLeft   Event = "left"
)

// Tracker maintains the single join/leave interval kept per (server, user)
// pair. Out-of-order observations are resolved by timestamp: the row always
// reflects the chronologically latest event seen so far, not the latest
// arrival.
type Tracker struct {
	db *gorm.DB
}

// New creates a new membership tracker
func New(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// RecordEvent applies a join/leave observation. A `joined` creates or
// reactivates the pair's row; a `left` closes it. Observations older than
// the latest recorded event are no-ops.
func (t *Tracker) RecordEvent(serverID, userID int64, event Event, ts time.Time) error {
	if event != EventJoined && event != EventLeft {
		return fmt.Errorf("unknown membership event %q", event)
	}

	var member models.ServerMember
	err := t.db.Where("server_id = ? AND user_id = ?", serverID, userID).First(&member).Error
	if err == gorm.ErrRecordNotFound {
		member = models.ServerMember{
			ServerID: serverID,
			UserID:   userID,
			JoinedAt: ts,
			IsActive: event == EventJoined,
		}
		if event == EventLeft {
			// A leave with no recorded join: the join instant is unknown,
			// so the observation timestamp bounds the interval on both ends.
			left := ts
			member.LeftAt = &left
		}
		res := t.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&member)
		if res.Error != nil {
			return fmt.Errorf("failed to create membership (%d,%d): %w", serverID, userID, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// Lost the insert race; re-read and update the surviving row.
		if err := t.db.Where("server_id = ? AND user_id = ?", serverID, userID).First(&member).Error; err != nil {
			return fmt.Errorf("failed to re-read membership (%d,%d): %w", serverID, userID, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up membership (%d,%d): %w", serverID, userID, err)
	}

	if ts.Before(latestEvent(&member)) {
		return nil
	}

	updates := map[string]interface{}{}
	switch event {
	case EventJoined:
		updates["joined_at"] = ts
		updates["left_at"] = nil
		updates["is_active"] = true
	case EventLeft:
		updates["left_at"] = ts
		updates["is_active"] = false
	}

	if err := t.db.Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update membership (%d,%d): %w", serverID, userID, err)
	}
	return nil
}

// TouchActive records that a user was observed active in a server (e.g.
// posted a message) without disturbing an explicitly recorded join. The
// membership is marked active unless a leave after ts is on record.
func (t *Tracker) TouchActive(serverID, userID int64, ts time.Time) error {
	member := models.ServerMember{
		ServerID: serverID,
		UserID:   userID,
		JoinedAt: ts,
		IsActive: true,
	}
	res := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&member)
	if res.Error != nil {
		return fmt.Errorf("failed to touch membership (%d,%d): %w", serverID, userID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var stored models.ServerMember
	if err := t.db.Where("server_id = ? AND user_id = ?", serverID, userID).First(&stored).Error; err != nil {
		return fmt.Errorf("failed to re-read membership (%d,%d): %w", serverID, userID, err)
	}
	if stored.IsActive {
		return nil
	}
	if stored.LeftAt != nil && stored.LeftAt.After(ts) {
		// The recorded leave postdates this observation; keep it.
		return nil
	}
	if err := t.db.Model(&models.ServerMember{}).
		Where("server_id = ? AND user_id = ?", serverID, userID).
		Updates(map[string]interface{}{"is_active": true, "left_at": nil}).Error; err != nil {
		return fmt.Errorf("failed to reactivate membership (%d,%d): %w", serverID, userID, err)
	}
	return nil
}

// latestEvent returns the timestamp of the chronologically latest recorded
// event on the row.
func latestEvent(m *models.ServerMember) time.Time {
	if m.LeftAt != nil && m.LeftAt.After(m.JoinedAt) {
		return *m.LeftAt
	}
	return m.JoinedAt
}
