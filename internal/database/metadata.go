package database

import (
	"context"
	"database/sql"
	"errors"
)

const (
	metaSchemaVersion     = "schema_version"
	metaLastCompletedScan = "last_completed_scan"
)

// GetMetadata retrieves a metadata value by key.
// Returns sql.ErrNoRows if the key doesn't exist.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value sql.NullString
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// SetMetadata sets a metadata key-value pair.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.setMetadataNoLock(ctx, key, value)
}

func (d *Database) setMetadataNoLock(ctx context.Context, key, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastCompletedScan returns the generation of the last scan that finished
// successfully, or "" if none has.
func (d *Database) LastCompletedScan(ctx context.Context) (string, error) {
	gen, err := d.GetMetadata(ctx, metaLastCompletedScan)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return gen, err
}
