package models

import (
	"time"
)

// Message represents one Discord message. MessageID is the platform's
// immutable snowflake. Messages are never hard-deleted: deletion is recorded
// via IsDeleted/DeletedAt while content is retained.
type Message struct {
	MessageID        int64      `json:"message_id" gorm:"primaryKey;autoIncrement:false"`
	ServerID         int64      `json:"server_id" gorm:"not null;index:idx_messages_server_created,priority:1"`
	ChannelID        int64      `json:"channel_id" gorm:"not null;index:idx_messages_channel_created,priority:1"`
	ChannelName      string     `json:"channel_name" gorm:"type:varchar(255);not null"`
	UserID           int64      `json:"user_id" gorm:"not null;index"`
	Content          string     `json:"content" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at" gorm:"not null;index:idx_messages_server_created,priority:2;index:idx_messages_channel_created,priority:2"`
	EditedAt         *time.Time `json:"edited_at,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	IsDeleted        bool       `json:"is_deleted" gorm:"not null;default:false"`
	ReplyToMessageID *int64     `json:"reply_to_message_id,omitempty"`
	ThreadID         *int64     `json:"thread_id,omitempty"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Reaction represents one (message, emoji, account) reaction. The triple is
// unique and append-only; a reaction absent from a later export is kept.
type Reaction struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID int64  `json:"message_id" gorm:"not null;uniqueIndex:ux_reactions_msg_emoji_user,priority:1"`
	Emoji     string `json:"emoji" gorm:"type:varchar(128);not null;uniqueIndex:ux_reactions_msg_emoji_user,priority:2"`
	UserID    int64  `json:"user_id" gorm:"not null;uniqueIndex:ux_reactions_msg_emoji_user,priority:3"`
}

// TableName specifies the table name for Reaction
func (Reaction) TableName() string {
	return "reactions"
}
