package gorm

import "time"

// SyncStatus is the athlete-level view of sync progress
type SyncStatus string

const (
	SyncStatusIdle       SyncStatus = "idle"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusError      SyncStatus = "error"
)

// Athlete represents one tracked person and their upstream credential pair
type Athlete struct {
	ID         string `gorm:"column:id;primaryKey;type:uuid"`
	UpstreamID int64  `gorm:"column:upstream_id;uniqueIndex;not null"`
	FirstName  string `gorm:"column:first_name;type:varchar(100)"`
	LastName   string `gorm:"column:last_name;type:varchar(100)"`

	AccessToken  string    `gorm:"column:access_token;type:text"`
	RefreshToken string    `gorm:"column:refresh_token;type:text"`
	TokenExpiry  time.Time `gorm:"column:token_expiry"`

	SyncStatus    SyncStatus `gorm:"column:sync_status;type:varchar(20);default:idle"`
	SyncSessionID *string    `gorm:"column:sync_session_id;type:uuid"`
	SyncError     *string    `gorm:"column:sync_error;type:text"`
	LastSyncedAt  *time.Time `gorm:"column:last_synced_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Athlete) TableName() string {
	return "athletes"
}
