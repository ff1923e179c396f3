package storage

import (
	"context"
	"fmt"

	"github.com/royalfresh/freshbridge/internal/types"
)

// ListSchedules returns all schedule rows ordered by ascending id.
func (p *PostgresClient) ListSchedules(ctx context.Context) ([]types.Schedule, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, time_range, frequency, device_id, grade, is_on
		FROM schedules
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]types.Schedule, 0)
	for rows.Next() {
		var s types.Schedule
		if err := rows.Scan(&s.ID, &s.TimeRange, &s.Frequency, &s.DeviceID, &s.Grade, &s.IsOn); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}

	return schedules, rows.Err()
}

// InsertSchedule inserts a schedule and returns the assigned id. A schedule
// carrying a non-zero id replaces the existing row with that id.
func (p *PostgresClient) InsertSchedule(ctx context.Context, s types.Schedule) (int64, error) {
	if s.ID != 0 {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO schedules (id, time_range, frequency, device_id, grade, is_on)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id)
			DO UPDATE SET
				time_range = EXCLUDED.time_range,
				frequency  = EXCLUDED.frequency,
				device_id  = EXCLUDED.device_id,
				grade      = EXCLUDED.grade,
				is_on      = EXCLUDED.is_on
		`, s.ID, s.TimeRange, s.Frequency, s.DeviceID, s.Grade, s.IsOn)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert schedule: %w", err)
		}
		return s.ID, nil
	}

	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO schedules (time_range, frequency, device_id, grade, is_on)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.TimeRange, s.Frequency, s.DeviceID, s.Grade, s.IsOn).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert schedule: %w", err)
	}

	return id, nil
}

// UpdateSchedule replaces the full row keyed by id. Missing rows are a no-op.
func (p *PostgresClient) UpdateSchedule(ctx context.Context, s types.Schedule) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE schedules
		SET time_range = $2, frequency = $3, device_id = $4, grade = $5, is_on = $6
		WHERE id = $1
	`, s.ID, s.TimeRange, s.Frequency, s.DeviceID, s.Grade, s.IsOn)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes the row with the given id. Missing rows are a no-op.
func (p *PostgresClient) DeleteSchedule(ctx context.Context, id int64) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

// SetScheduleToggle updates only the is_on column.
func (p *PostgresClient) SetScheduleToggle(ctx context.Context, id int64, isOn bool) error {
	_, err := p.pool.Exec(ctx, `UPDATE schedules SET is_on = $2 WHERE id = $1`, id, isOn)
	if err != nil {
		return fmt.Errorf("failed to set toggle state: %w", err)
	}
	return nil
}
