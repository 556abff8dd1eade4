package gorm

import (
	"encoding/json"
	"time"
)

// BatchType distinguishes discovery pages from enrichment chunks
type BatchType string

const (
	BatchDiscovery  BatchType = "discovery"
	BatchEnrichment BatchType = "enrichment"
)

// BatchStatus is the lifecycle state of one unit of sync work
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchCancelled:
		return true
	}
	return false
}

// SyncBatch is one bounded, resumable unit of discovery or enrichment work.
// Discovery batches carry a timestamp cursor; enrichment batches carry a
// fixed JSON-encoded set of activity IDs.
type SyncBatch struct {
	ID        string `gorm:"column:id;primaryKey;type:uuid"`
	SessionID string `gorm:"column:session_id;type:uuid;not null;index"`
	AthleteID string `gorm:"column:athlete_id;type:uuid;not null"`

	BatchNumber int       `gorm:"column:batch_number;not null"`
	BatchType   BatchType `gorm:"column:batch_type;type:varchar(20);not null"`

	// Discovery cursor: activities strictly older than Before and newer than After
	Before *time.Time `gorm:"column:before"`
	After  *time.Time `gorm:"column:after"`

	// Enrichment payload: JSON array of upstream activity IDs
	ActivityIDs string `gorm:"column:activity_ids;type:text"`

	Status       BatchStatus `gorm:"column:status;type:varchar(20);not null;index"`
	AttemptCount int         `gorm:"column:attempt_count;default:0"`

	ActivitiesFetched int `gorm:"column:activities_fetched;default:0"`
	RecordsAdded      int `gorm:"column:records_added;default:0"`

	// NotBefore delays retry eligibility after a transient failure
	NotBefore   *time.Time `gorm:"column:not_before"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`

	// Relationships
	Session SyncSession `gorm:"foreignKey:SessionID"`
}

// TableName specifies the table name for GORM
func (SyncBatch) TableName() string {
	return "sync_batches"
}

// DecodeActivityIDs parses the JSON-encoded enrichment ID set
func (b *SyncBatch) DecodeActivityIDs() ([]int64, error) {
	if b.ActivityIDs == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(b.ActivityIDs), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// EncodeActivityIDs stores the enrichment ID set as JSON
func (b *SyncBatch) EncodeActivityIDs(ids []int64) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	b.ActivityIDs = string(raw)
	return nil
}
