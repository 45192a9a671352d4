package models

import (
	"time"
)

// User represents a Discord account. UserID is the internal surrogate key
// and the only FK target; the discord_id mapping is permanent and never
// reassigned once created.
type User struct {
	UserID          int64     `json:"user_id" gorm:"primaryKey;autoIncrement"`
	DiscordID       int64     `json:"discord_id" gorm:"not null;uniqueIndex"`
	CurrentUsername string    `json:"current_username" gorm:"type:varchar(255);not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"not null"`
	LastSeen        time.Time `json:"last_seen" gorm:"not null"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// UsernameHistory is an append-only audit record of a display-name change.
// Rows are never mutated or deleted after creation.
type UsernameHistory struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64     `json:"user_id" gorm:"not null;index"`
	Username    string    `json:"username" gorm:"type:varchar(255);not null"`
	ChangedFrom string    `json:"changed_from" gorm:"type:varchar(255);not null"`
	ChangedAt   time.Time `json:"changed_at" gorm:"not null"`

	User *User `json:"-" gorm:"foreignKey:UserID;references:UserID"`
}

// TableName specifies the table name for UsernameHistory
func (UsernameHistory) TableName() string {
	return "username_history"
}
