package gorm

import "time"

// SessionPhase tracks which half of the sync a session is in
type SessionPhase string

const (
	PhaseDiscovery  SessionPhase = "discovery"
	PhaseEnrichment SessionPhase = "enrichment"
	PhaseCompleted  SessionPhase = "completed"
)

// SessionStatus is the lifecycle state of one sync session
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionError, SessionCancelled:
		return true
	}
	return false
}

// SyncSession is the full lifecycle of one sync run for one athlete
type SyncSession struct {
	ID        string `gorm:"column:id;primaryKey;type:uuid"`
	AthleteID string `gorm:"column:athlete_id;type:uuid;not null;index"`

	Phase  SessionPhase  `gorm:"column:phase;type:varchar(20);not null"`
	Status SessionStatus `gorm:"column:status;type:varchar(20);not null;index"`

	FullBackfill         bool    `gorm:"column:full_backfill;default:false"`
	CurrentBatchNumber   int     `gorm:"column:current_batch_number;default:0"`
	TotalBatchesExpected *int    `gorm:"column:total_batches_expected"`
	ErrorMessage         *string `gorm:"column:error_message;type:text"`

	StartedAt   time.Time  `gorm:"column:started_at;autoCreateTime"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	Athlete Athlete `gorm:"foreignKey:AthleteID"`
}

// TableName specifies the table name for GORM
func (SyncSession) TableName() string {
	return "sync_sessions"
}
