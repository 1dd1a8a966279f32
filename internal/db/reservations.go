package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"adsched/internal/models"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const reservationColumns = `id, location_name, owner_id, start_time, end_time, status, comment, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (*models.Reservation, error) {
	var r models.Reservation
	var status string
	err := row.Scan(&r.ID, &r.LocationName, &r.OwnerID, &r.StartTime, &r.EndTime,
		&status, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	return &r, nil
}

// GetReservation returns a reservation by id, or nil if it does not exist.
func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := getReservation(ctx, db.DB, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

func getReservation(ctx context.Context, q dbtx, id string) (*models.Reservation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// FindOverlapping returns reservations at location whose [start_time, end_time)
// interval overlaps [start, end), restricted to the given statuses and sorted
// ascending by start time. A reservation with id equal to excludeID is skipped,
// so an update never collides with its own stored version.
func (db *DB) FindOverlapping(ctx context.Context, location string, start, end time.Time, statuses []models.Status, excludeID string) ([]models.Reservation, error) {
	return findOverlapping(ctx, db.DB, location, start, end, statuses, excludeID)
}

func findOverlapping(ctx context.Context, q dbtx, location string, start, end time.Time, statuses []models.Status, excludeID string) ([]models.Reservation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := []any{location}
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	// Half-open overlap: existing.start < candidate.end AND candidate.start < existing.end.
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE location_name = ?
		AND status IN (` + strings.Join(placeholders, ",") + `)
		AND start_time < ? AND ? < end_time`
	args = append(args, end.UTC(), start.UTC())

	if excludeID != "" {
		query += ` AND id != ?`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_time ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query overlapping reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateReservationLocked inserts a reservation after re-checking for overlap
// inside a single write-locked transaction. If blocking reservations overlap
// the candidate at commit time, nothing is inserted and the conflicting set is
// returned instead.
func (db *DB) CreateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error) {
	var conflicts []models.Reservation
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		found, err := findOverlapping(ctx, tx, r.LocationName, r.StartTime, r.EndTime, models.BlockingStatuses(), "")
		if err != nil {
			return err
		}
		if len(found) > 0 {
			conflicts = found
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reservations (id, location_name, owner_id, start_time, end_time, status, comment, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.LocationName, r.OwnerID, r.StartTime.UTC(), r.EndTime.UTC(),
			string(r.Status), r.Comment, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return conflicts, nil
}

// UpdateReservationLocked rewrites the mutable fields of a reservation,
// re-checking for overlap inside the same transaction with the reservation
// itself excluded. Returns the conflicting set if the new interval is taken.
func (db *DB) UpdateReservationLocked(ctx context.Context, r *models.Reservation) ([]models.Reservation, error) {
	var conflicts []models.Reservation
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		found, err := findOverlapping(ctx, tx, r.LocationName, r.StartTime, r.EndTime, models.BlockingStatuses(), r.ID)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			conflicts = found
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reservations SET location_name = ?, start_time = ?, end_time = ?, comment = ?, updated_at = ?
			WHERE id = ?`,
			r.LocationName, r.StartTime.UTC(), r.EndTime.UTC(), r.Comment, r.UpdatedAt.UTC(), r.ID,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update reservation %s: %w", r.ID, err)
	}
	return conflicts, nil
}

func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteReservation removes a reservation by id.
func (db *DB) DeleteReservation(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w", id, err)
	}
	return nil
}

// UpdateReservationStatus persists a single status move, guarded by the
// expected current status. A false result means a concurrent writer moved
// the reservation first.
func (db *DB) UpdateReservationStatus(ctx context.Context, id string, from, to models.Status, updatedAt time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), updatedAt.UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByLocation returns every reservation at a location, newest first.
func (db *DB) ListByLocation(ctx context.Context, location string) ([]models.Reservation, error) {
	return db.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE location_name = ? ORDER BY start_time DESC`,
		location)
}

// ListByOwner returns every reservation created by an owner, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]models.Reservation, error) {
	return db.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE owner_id = ? ORDER BY start_time DESC`,
		ownerID)
}

func (db *DB) list(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ActivateDue promotes waiting reservations whose start time has passed.
// The status predicate in the WHERE clause makes the sweep idempotent and
// safe against concurrent single-record transitions.
func (db *DB) ActivateDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?
		WHERE status = ? AND start_time <= ?`,
		string(models.StatusActive), now.UTC(), string(models.StatusWaiting), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("activate due reservations: %w", err)
	}
	return res.RowsAffected()
}

// MarkEndingSoon promotes active reservations whose end time falls within
// the horizon but has not yet passed.
func (db *DB) MarkEndingSoon(ctx context.Context, now time.Time, horizon time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?
		WHERE status = ? AND end_time > ? AND end_time <= ?`,
		string(models.StatusEndingSoon), now.UTC(), string(models.StatusActive),
		now.UTC(), now.Add(horizon).UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark ending soon: %w", err)
	}
	return res.RowsAffected()
}
