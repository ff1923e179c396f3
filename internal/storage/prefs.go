package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetBoolPref reads a named boolean preference, returning the fallback when
// the preference has never been written.
func (p *PostgresClient) GetBoolPref(ctx context.Context, name string, fallback bool) (bool, error) {
	var value bool
	err := p.pool.QueryRow(ctx, `SELECT value FROM app_prefs WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("failed to read pref %q: %w", name, err)
	}
	return value, nil
}

// SetBoolPref writes a named boolean preference.
func (p *PostgresClient) SetBoolPref(ctx context.Context, name string, value bool) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO app_prefs (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, name, value)
	if err != nil {
		return fmt.Errorf("failed to write pref %q: %w", name, err)
	}
	return nil
}
