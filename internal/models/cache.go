package models

import (
	"time"
)

// AnalysisCache stores one memoized query result. Parameters holds the
// canonical JSON serialization of the query's parameter set; uniqueness of
// (query_type, parameters) is logical, enforced by the cache component
// rather than a database key, because parameter sets are open-ended.
type AnalysisCache struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	QueryType  string     `json:"query_type" gorm:"type:varchar(128);not null;index"`
	Parameters string     `json:"parameters" gorm:"type:json;not null"`
	Result     string     `json:"result" gorm:"type:json;not null"`
	CreatedAt  time.Time  `json:"created_at" gorm:"not null"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for AnalysisCache
func (AnalysisCache) TableName() string {
	return "analysis_cache"
}
