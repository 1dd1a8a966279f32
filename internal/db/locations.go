package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"adsched/internal/models"
)

// UpsertLocation creates a location or reactivates an existing one by name.
func (db *DB) UpsertLocation(ctx context.Context, name string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO locations (name, is_active, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET is_active = 1, updated_at = excluded.updated_at`,
		name, time.Now().UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert location %s: %w", name, err)
	}
	return nil
}

// GetLocationByName returns a location, or nil if unknown.
func (db *DB) GetLocationByName(ctx context.Context, name string) (*models.Location, error) {
	var loc models.Location
	err := db.QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM locations WHERE name = ?`,
		name,
	).Scan(&loc.ID, &loc.Name, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location %s: %w", name, err)
	}
	return &loc, nil
}

// ListActiveLocations returns all active locations ordered by name.
func (db *DB) ListActiveLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM locations WHERE is_active = 1 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		var loc models.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.IsActive, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// SetLocationActive flips the active flag of a location.
func (db *DB) SetLocationActive(ctx context.Context, name string, active bool) error {
	res, err := db.ExecContext(ctx,
		`UPDATE locations SET is_active = ?, updated_at = ? WHERE name = ?`,
		active, time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("set location %s active=%v: %w", name, active, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("location %s not found", name)
	}
	return nil
}
