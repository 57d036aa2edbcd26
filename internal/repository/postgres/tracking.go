package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TrackingRepo implements tracking.Recorder against PostgreSQL.
type TrackingRepo struct{ db *sql.DB }

// NewTrackingRepo creates a Postgres-backed open-event recorder.
func NewTrackingRepo(db *sql.DB) *TrackingRepo { return &TrackingRepo{db: db} }

// RecordContactOpen bumps open_count on the contact carrying the token.
// opened_at is only written on the first open.
func (r *TrackingRepo) RecordContactOpen(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET open_count = open_count + 1,
		    opened_at = COALESCE(opened_at, $2),
		    updated_at = NOW()
		WHERE tracking_token = $1
	`, token, at)
	if err != nil {
		return false, fmt.Errorf("record contact open: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordReminderOpen does the same for a reminder queue item.
func (r *TrackingRepo) RecordReminderOpen(ctx context.Context, token string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminder_queue
		SET open_count = open_count + 1,
		    opened_at = COALESCE(opened_at, $2)
		WHERE tracking_token = $1
	`, token, at)
	if err != nil {
		return false, fmt.Errorf("record reminder open: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
