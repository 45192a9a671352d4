package merger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"discord-insight-go/internal/models"
)

// Snapshot is one exported message observation, with the author already
// resolved to an internal user ID.
type Snapshot struct {
	MessageID        int64
	ServerID         int64
	ChannelID        int64
	ChannelName      string
	UserID           int64
	Content          string
	CreatedAt        time.Time
	EditedAt         *time.Time
	DeletedAt        *time.Time
	IsDeleted        bool
	ReplyToMessageID *int64
	ThreadID         *int64
	Reactions        []ReactionObservation
}

// ReactionObservation is one (emoji, reactor) pair seen on a message.
type ReactionObservation struct {
	Emoji  string
	UserID int64
}

// Stats counts the outcome of a batch merge.
type Stats struct {
	New       int
	Updated   int
	Unchanged int
	Skipped   int
}

// Add accumulates another stats value into s.
func (s *Stats) Add(other Stats) {
	s.New += other.New
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
}

// Merger upserts message snapshots into the normalized store. Merges are
// idempotent: re-running any batch, or overlapping batches, leaves the same
// stored state as running it once.
type Merger struct {
	db *gorm.DB
}

// New creates a new message merger
func New(db *gorm.DB) *Merger {
	return &Merger{db: db}
}

// MergeBatch merges a batch of snapshots. Each message together with its
// reactions is one transaction; there is no batch-wide transaction, so a
// crash mid-batch leaves a prefix merged, which a re-run repairs. Malformed
// snapshots are skipped with a warning and never abort the batch.
func (m *Merger) MergeBatch(ctx context.Context, batch []Snapshot) (Stats, error) {
	var stats Stats
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("merge cancelled: %w", err)
		}

		snap := &batch[i]
		if reason := validate(snap); reason != "" {
			logrus.Warnf("Skipping snapshot (message %d): %s", snap.MessageID, reason)
			stats.Skipped++
			continue
		}

		outcome, err := m.mergeOne(snap)
		if err != nil {
			return stats, fmt.Errorf("failed to merge message %d: %w", snap.MessageID, err)
		}
		switch outcome {
		case outcomeNew:
			stats.New++
		case outcomeUpdated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// validate reports why a snapshot cannot be merged, or "" if it can.
func validate(s *Snapshot) string {
	switch {
	case s.MessageID == 0:
		return "missing message id"
	case s.ServerID == 0:
		return "missing server id"
	case s.ChannelID == 0:
		return "missing channel id"
	case s.UserID == 0:
		return "missing author"
	case s.CreatedAt.IsZero():
		return "missing created timestamp"
	default:
		return ""
	}
}

func (m *Merger) mergeOne(snap *Snapshot) (outcome, error) {
	result := outcomeUnchanged

	err := m.db.Transaction(func(tx *gorm.DB) error {
		var stored models.Message
		err := tx.Where("message_id = ?", snap.MessageID).First(&stored).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			msg := models.Message{
				MessageID:        snap.MessageID,
				ServerID:         snap.ServerID,
				ChannelID:        snap.ChannelID,
				ChannelName:      snap.ChannelName,
				UserID:           snap.UserID,
				Content:          snap.Content,
				CreatedAt:        snap.CreatedAt,
				EditedAt:         snap.EditedAt,
				DeletedAt:        snap.DeletedAt,
				IsDeleted:        snap.IsDeleted,
				ReplyToMessageID: snap.ReplyToMessageID,
				ThreadID:         snap.ThreadID,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "message_id"}},
				DoNothing: true,
			}).Create(&msg)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				result = outcomeNew
				return m.mergeReactions(tx, snap)
			}
			// Lost an insert race; re-read and merge against the winner.
			if err := tx.Where("message_id = ?", snap.MessageID).First(&stored).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		updates := diff(&stored, snap)
		if len(updates) > 0 {
			if err := tx.Model(&models.Message{}).
				Where("message_id = ?", snap.MessageID).
				Updates(updates).Error; err != nil {
				return err
			}
			result = outcomeUpdated
		}
		return m.mergeReactions(tx, snap)
	})

	return result, err
}

// diff computes the column updates a snapshot is allowed to make against the
// stored row. Stale data never overwrites newer data:
//
//   - content follows edited_at, and only a strictly newer edited_at may
//     replace content;
//   - deletion is sticky: a deleted observation always marks the row
//     deleted, and only an undeleted snapshot edited after the recorded
//     deletion may clear it.
func diff(stored *models.Message, snap *Snapshot) map[string]interface{} {
	updates := make(map[string]interface{})

	if editNewer(snap.EditedAt, stored.EditedAt) {
		updates["content"] = snap.Content
		updates["edited_at"] = snap.EditedAt
	}

	if snap.IsDeleted {
		if !stored.IsDeleted {
			updates["is_deleted"] = true
			updates["deleted_at"] = snap.DeletedAt
		} else if snap.DeletedAt != nil &&
			(stored.DeletedAt == nil || snap.DeletedAt.After(*stored.DeletedAt)) {
			updates["deleted_at"] = snap.DeletedAt
		}
	} else if stored.IsDeleted {
		// Undelete only on a genuinely newer observation; a re-export of
		// historical data cannot produce one, so stale batches keep the
		// deletion intact.
		if snap.EditedAt != nil && stored.DeletedAt != nil && snap.EditedAt.After(*stored.DeletedAt) {
			updates["is_deleted"] = false
			updates["deleted_at"] = nil
		}
	}

	return updates
}

// editNewer reports whether incoming is a strictly newer edit than stored.
// A nil edited_at counts as the original, un-edited snapshot.
func editNewer(incoming, stored *time.Time) bool {
	if incoming == nil {
		return false
	}
	if stored == nil {
		return true
	}
	return incoming.After(*stored)
}

// mergeReactions inserts reaction triples additively. A triple once recorded
// is never removed by a merge that omits it; removal fidelity is a known gap
// of the export format.
func (m *Merger) mergeReactions(tx *gorm.DB, snap *Snapshot) error {
	for _, obs := range snap.Reactions {
		if obs.Emoji == "" || obs.UserID == 0 {
			logrus.Warnf("Skipping malformed reaction on message %d", snap.MessageID)
			continue
		}
		reaction := models.Reaction{
			MessageID: snap.MessageID,
			Emoji:     obs.Emoji,
			UserID:    obs.UserID,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "message_id"}, {Name: "emoji"}, {Name: "user_id"},
			},
			DoNothing: true,
		}).Create(&reaction).Error
		if err != nil {
			return fmt.Errorf("failed to merge reaction on message %d: %w", snap.MessageID, err)
		}
	}
	return nil
}
