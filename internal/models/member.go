package models

import (
	"time"
)

// ServerMember tracks a (server, user) membership interval. The pair is
// unique: a re-join reactivates the existing row rather than opening a new
// interval, so only the latest interval per pair is kept.
type ServerMember struct {
	ID       int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	ServerID int64      `json:"server_id" gorm:"not null;uniqueIndex:ux_server_members_pair,priority:1"`
	UserID   int64      `json:"user_id" gorm:"not null;uniqueIndex:ux_server_members_pair,priority:2"`
	JoinedAt time.Time  `json:"joined_at" gorm:"not null"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
	IsActive bool       `json:"is_active" gorm:"not null;default:true"`
}

// TableName specifies the table name for ServerMember
func (ServerMember) TableName() string {
	return "server_members"
}
