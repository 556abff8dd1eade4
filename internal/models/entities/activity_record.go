package entities

import "time"

// ActivityRecord is the persisted activity row. Summary fields are written at
// discovery time; detail fields stay NULL until enrichment fills them in.
// (athlete_id, external_id) is the dedup key.
type ActivityRecord struct {
	AthleteID   string    `db:"athlete_id"`
	ExternalID  int64     `db:"external_id"`
	Name        string    `db:"name"`
	SportType   string    `db:"sport_type"`
	StartDate   time.Time `db:"start_date"`
	DistanceM   float64   `db:"distance_m"`
	MovingTime  int64     `db:"moving_time_s"`
	ElapsedTime int64     `db:"elapsed_time_s"`

	// Detail fields, nullable until enrichment
	Polyline       *string    `db:"polyline"`
	AvgHeartRate   *float64   `db:"avg_heart_rate"`
	Calories       *float64   `db:"calories"`
	RawDetail      *string    `db:"raw_detail"`
	DetailSyncedAt *time.Time `db:"detail_synced_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
