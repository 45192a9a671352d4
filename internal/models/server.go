package models

import (
	"time"
)

// Server represents a monitored Discord server (guild)
type Server struct {
	ServerID      int64     `json:"server_id" gorm:"primaryKey;autoIncrement:false"`
	ServerName    string    `json:"server_name" gorm:"type:varchar(255);not null"`
	FirstSeen     time.Time `json:"first_seen" gorm:"not null"`
	MonitoredFrom time.Time `json:"monitored_from" gorm:"not null"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true"`
}

// TableName specifies the table name for Server
func (Server) TableName() string {
	return "servers"
}
