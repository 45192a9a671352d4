package resolver

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"discord-insight-go/internal/models"
)

// Resolver maps external Discord identifiers to internal surrogate keys and
// maintains the username rename audit trail.
type Resolver struct {
	db *gorm.DB
}

// New creates a new entity resolver
func New(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// ResolveUser returns the internal user ID for a Discord account, creating
// the account on first encounter. When the observed username differs from
// the stored one, the rename is recorded in username_history and the current
// name updated in a single transaction.
//
// Safe to call concurrently for the same discord ID: the insert goes through
// an ON CONFLICT DO NOTHING upsert, so the first writer wins and losers
// re-read the surviving row. The rename update is guarded by the old name,
// so a racing identical rename records history exactly once.
func (r *Resolver) ResolveUser(discordID int64, username string, observedAt time.Time) (int64, error) {
	var user models.User
	err := r.db.Where("discord_id = ?", discordID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = models.User{
			DiscordID:       discordID,
			CurrentUsername: username,
			CreatedAt:       observedAt,
			LastSeen:        observedAt,
		}
		res := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "discord_id"}},
			DoNothing: true,
		}).Create(&user)
		if res.Error != nil {
			return 0, fmt.Errorf("failed to create user %d: %w", discordID, res.Error)
		}
		if res.RowsAffected > 0 {
			return user.UserID, nil
		}
		// Lost the insert race; re-read the winner's row and fall through
		// to the rename check against it.
		if err := r.db.Where("discord_id = ?", discordID).First(&user).Error; err != nil {
			return 0, fmt.Errorf("failed to re-read user %d after conflict: %w", discordID, err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("failed to look up user %d: %w", discordID, err)
	}

	if user.CurrentUsername == username {
		if observedAt.After(user.LastSeen) {
			if err := r.db.Model(&models.User{}).
				Where("user_id = ?", user.UserID).
				Update("last_seen", observedAt).Error; err != nil {
				return 0, fmt.Errorf("failed to touch user %d: %w", user.UserID, err)
			}
		}
		return user.UserID, nil
	}

	if err := r.recordRename(&user, username, observedAt); err != nil {
		return 0, err
	}
	return user.UserID, nil
}

// recordRename appends a username_history row and updates the current name.
// The UPDATE is guarded by the old name so only one of several concurrent
// writers observing the same rename performs it; the rest see zero rows
// affected and skip the history insert.
func (r *Resolver) recordRename(user *models.User, newName string, observedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("user_id = ? AND current_username = ?", user.UserID, user.CurrentUsername).
			Updates(map[string]interface{}{
				"current_username": newName,
				"last_seen":        observedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update username for user %d: %w", user.UserID, res.Error)
		}
		if res.RowsAffected == 0 {
			// A concurrent writer got here first. Nothing to record.
			logrus.Debugf("Rename of user %d to %q already recorded", user.UserID, newName)
			return nil
		}

		history := models.UsernameHistory{
			UserID:      user.UserID,
			Username:    newName,
			ChangedFrom: user.CurrentUsername,
			ChangedAt:   observedAt,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to record rename for user %d: %w", user.UserID, err)
		}

		logrus.Infof("User %d renamed: %q -> %q", user.UserID, user.CurrentUsername, newName)
		return nil
	})
}

// ResolveServer creates or updates a server record. Renames update the
// display name in place; first_seen and monitored_from are set once, on
// first encounter, and never reset.
func (r *Resolver) ResolveServer(serverID int64, name string) error {
	now := time.Now().UTC()
	server := models.Server{
		ServerID:      serverID,
		ServerName:    name,
		FirstSeen:     now,
		MonitoredFrom: now,
		IsActive:      true,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "server_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"server_name"}),
	}).Create(&server).Error
	if err != nil {
		return fmt.Errorf("failed to upsert server %d: %w", serverID, err)
	}
	return nil
}

// DeactivateServer marks a server as no longer monitored. Servers are never
// deleted.
func (r *Resolver) DeactivateServer(serverID int64) error {
	res := r.db.Model(&models.Server{}).
		Where("server_id = ?", serverID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate server %d: %w", serverID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("server %d not found", serverID)
	}
	return nil
}
