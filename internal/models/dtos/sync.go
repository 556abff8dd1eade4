package dtos

import "time"

// DiscoveryResult is the outcome of processing one discovery batch
type DiscoveryResult struct {
	ActivitiesFetched int
	RecordsAdded      int
	NextBefore        *time.Time
	HasMore           bool
}

// EnrichmentResult is the outcome of processing one enrichment batch.
// Failures are tracked per activity and never fail the batch as a whole.
type EnrichmentResult struct {
	Updated   int
	Failed    int
	FailedIDs []int64
}

// TriggerSyncRequest is the admin payload starting a sync run
type TriggerSyncRequest struct {
	AthleteID    string `json:"athlete_id"`
	FullBackfill bool   `json:"full_backfill"`
}

// TriggerSyncResponse returns the created session
type TriggerSyncResponse struct {
	SessionID string `json:"session_id"`
}

// CancelSyncResponse acknowledges a cancellation
type CancelSyncResponse struct {
	OK bool `json:"ok"`
}

// BatchCounts aggregates batches by status for one batch type
type BatchCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// SessionSummary is the progress view exposed to the admin layer
type SessionSummary struct {
	SessionID            string      `json:"session_id"`
	AthleteID            string      `json:"athlete_id"`
	Phase                string      `json:"phase"`
	Status               string      `json:"status"`
	Discovery            BatchCounts `json:"discovery"`
	Enrichment           BatchCounts `json:"enrichment"`
	BatchesTotal         int         `json:"batches_total"`
	BatchesCompleted     int         `json:"batches_completed"`
	TotalBatchesExpected *int        `json:"total_batches_expected,omitempty"`
	RecordsAdded         int         `json:"records_added"`
	ActivitiesFetched    int         `json:"activities_fetched"`
	StartedAt            time.Time   `json:"started_at"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
	Error                string      `json:"error,omitempty"`
}
