package repositories

import (
	"context"

	"runclub/pacemaker/internal/models/entities"

	"github.com/jmoiron/sqlx"
)

// ActivityRecordSchema creates the activity store. Kept as plain SQL so the
// same statement runs against Postgres and the SQLite test driver.
const ActivityRecordSchema = `
CREATE TABLE IF NOT EXISTS activity_records (
    athlete_id      TEXT NOT NULL,
    external_id     BIGINT NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    sport_type      TEXT NOT NULL DEFAULT '',
    start_date      TIMESTAMP NOT NULL,
    distance_m      DOUBLE PRECISION NOT NULL DEFAULT 0,
    moving_time_s   BIGINT NOT NULL DEFAULT 0,
    elapsed_time_s  BIGINT NOT NULL DEFAULT 0,

    polyline        TEXT,
    avg_heart_rate  DOUBLE PRECISION,
    calories        DOUBLE PRECISION,
    raw_detail      TEXT,
    detail_synced_at TIMESTAMP,

    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL,

    PRIMARY KEY (athlete_id, external_id)
);
CREATE INDEX IF NOT EXISTS idx_activity_records_missing_detail
    ON activity_records (athlete_id, detail_synced_at);
`

// ActivityRecordRepo persists activity rows with idempotent sqlx upserts
type ActivityRecordRepo struct {
	db *sqlx.DB
}

// NewActivityRecordRepo creates a new activity record repository
func NewActivityRecordRepo(db *sqlx.DB) *ActivityRecordRepo {
	return &ActivityRecordRepo{db: db}
}

// EnsureSchema creates the activity table if it does not exist yet
func (r *ActivityRecordRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, ActivityRecordSchema)
	return err
}

// UpsertStub inserts a summary-only row if absent, keyed by the immutable
// external ID. Existing rows get their summary fields refreshed while detail
// fields stay untouched, so re-running a discovery page is safe. Returns
// whether a new row was added.
func (r *ActivityRecordRepo) UpsertStub(ctx context.Context, rec *entities.ActivityRecord) (bool, error) {
	const insert = `
		INSERT INTO activity_records
			(athlete_id, external_id, name, sport_type, start_date, distance_m, moving_time_s, elapsed_time_s, created_at, updated_at)
		VALUES
			(:athlete_id, :external_id, :name, :sport_type, :start_date, :distance_m, :moving_time_s, :elapsed_time_s, :created_at, :updated_at)
		ON CONFLICT (athlete_id, external_id) DO NOTHING
	`

	res, err := r.db.NamedExecContext(ctx, insert, rec)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	const refresh = `
		UPDATE activity_records
		SET name = :name,
		    sport_type = :sport_type,
		    start_date = :start_date,
		    distance_m = :distance_m,
		    moving_time_s = :moving_time_s,
		    elapsed_time_s = :elapsed_time_s,
		    updated_at = :updated_at
		WHERE athlete_id = :athlete_id AND external_id = :external_id
	`
	_, err = r.db.NamedExecContext(ctx, refresh, rec)
	return false, err
}

// UpdateDetail fills in the enrichment fields for one activity
func (r *ActivityRecordRepo) UpdateDetail(ctx context.Context, rec *entities.ActivityRecord) error {
	const query = `
		UPDATE activity_records
		SET polyline = :polyline,
		    avg_heart_rate = :avg_heart_rate,
		    calories = :calories,
		    raw_detail = :raw_detail,
		    detail_synced_at = :detail_synced_at,
		    updated_at = :updated_at
		WHERE athlete_id = :athlete_id AND external_id = :external_id
	`
	_, err := r.db.NamedExecContext(ctx, query, rec)
	return err
}

// ListMissingDetail returns external IDs of rows the enrichment phase still
// has to visit, oldest activity first
func (r *ActivityRecordRepo) ListMissingDetail(ctx context.Context, athleteID string) ([]int64, error) {
	var ids []int64
	const query = `
		SELECT external_id FROM activity_records
		WHERE athlete_id = ? AND detail_synced_at IS NULL
		ORDER BY start_date
	`
	err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query), athleteID)
	return ids, err
}

// CountForAthlete counts distinct persisted activities for one athlete
func (r *ActivityRecordRepo) CountForAthlete(ctx context.Context, athleteID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM activity_records WHERE athlete_id = ?`
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), athleteID)
	return count, err
}

// CountMissingDetail counts rows still awaiting enrichment
func (r *ActivityRecordRepo) CountMissingDetail(ctx context.Context, athleteID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM activity_records WHERE athlete_id = ? AND detail_synced_at IS NULL`
	err := r.db.GetContext(ctx, &count, r.db.Rebind(query), athleteID)
	return count, err
}

// GetByExternalID fetches one activity row
func (r *ActivityRecordRepo) GetByExternalID(ctx context.Context, athleteID string, externalID int64) (*entities.ActivityRecord, error) {
	var rec entities.ActivityRecord
	const query = `SELECT * FROM activity_records WHERE athlete_id = ? AND external_id = ?`
	if err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), athleteID, externalID); err != nil {
		return nil, err
	}
	return &rec, nil
}
