package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ErrRecordNotFound is returned by GetRecord for a path the index does not hold.
var ErrRecordNotFound = errors.New("record not found")

// Emit replaces everything stored for rec's files with rec and its units.
// Records previously stored under one of the sidecar paths (an orphan that
// has since gained a primary) are removed in the same transaction.
func (d *Database) Emit(ctx context.Context, rec *catalog.AssembledRecord, units []catalog.CorpusUnit) (err error) {
	start := time.Now()
	defer func() { recordQuery("emit_record", start, err) }()

	primary := rec.Primary()
	for i := range units {
		if units[i].PrimaryPath != primary.Path {
			return catalog.Errorf(catalog.KindInvariant, "emit", primary.Path,
				"unit %d belongs to %s", i, units[i].PrimaryPath)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, end, err := d.beginTx(ctx)
	if err != nil {
		return err
	}
	err = end(d.replaceRecord(ctx, tx, rec, units))
	return err
}

func (d *Database) replaceRecord(ctx context.Context, tx *sql.Tx, rec *catalog.AssembledRecord, units []catalog.CorpusUnit) error {
	paths := rec.Paths()
	if err := deleteRecords(ctx, tx, paths); err != nil {
		return err
	}

	primary := rec.Primary()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (path, name, extension, category, size_bytes, mod_time, fingerprint, ambiguous_sidecar, generation, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	`, primary.Path, primary.Name, primary.Extension, string(primary.Category), primary.SizeBytes,
		primary.ModifiedTime.UnixNano(), rec.Fingerprint(), rec.AmbiguousSidecar(), rec.Generation())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	for _, s := range rec.Sidecars() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sidecars (primary_path, path, category) VALUES (?, ?, ?)`,
			primary.Path, s.Path, string(s.Category),
		); err != nil {
			return fmt.Errorf("insert sidecar %s: %w", s.Path, err)
		}
	}

	unitStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (primary_path, path, source_type, kind, chunk_index, text, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer unitStmt.Close()

	fieldStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO unit_fields (unit_id, primary_path, path, source_type, key, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer fieldStmt.Close()

	for _, u := range units {
		var chunk sql.NullInt64
		if u.ChunkIndex != nil {
			chunk = sql.NullInt64{Int64: int64(*u.ChunkIndex), Valid: true}
		}
		res, err := unitStmt.ExecContext(ctx, u.PrimaryPath, u.Path, string(u.SourceType), string(u.Kind), chunk, u.Text, u.Generation)
		if err != nil {
			return fmt.Errorf("insert unit for %s: %w", u.Path, err)
		}
		unitID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, f := range u.Fields {
			if _, err := fieldStmt.ExecContext(ctx, unitID, u.PrimaryPath, u.Path, string(u.SourceType), f.Key, f.Value); err != nil {
				return fmt.Errorf("insert field %s for %s: %w", f.Key, u.Path, err)
			}
		}
	}
	return nil
}

// deleteRecords removes the records stored under paths together with their
// sidecar links, units and fields.
func deleteRecords(ctx context.Context, tx *sql.Tx, paths []string) error {
	in, args := inClause(paths)
	for _, q := range []string{
		"DELETE FROM unit_fields WHERE primary_path IN " + in,
		"DELETE FROM units WHERE primary_path IN " + in,
		"DELETE FROM sidecars WHERE primary_path IN " + in,
		"DELETE FROM records WHERE path IN " + in,
	} {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

// Refresh stamps the record stored under path with generation when its
// fingerprint still matches, and reports whether it did. An empty
// fingerprint matches any stored record; the pipeline uses it to keep the
// previous record of a file that failed this pass.
func (d *Database) Refresh(ctx context.Context, path, fingerprint, generation string) (ok bool, err error) {
	start := time.Now()
	defer func() { recordQuery("refresh_record", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, end, err := d.beginTx(ctx)
	if err != nil {
		return false, err
	}

	ok, err = func() (bool, error) {
		res, err := tx.ExecContext(ctx, `
			UPDATE records SET generation = ?, updated_at = strftime('%s', 'now')
			WHERE path = ? AND (? = '' OR fingerprint = ?)
		`, generation, path, fingerprint, fingerprint)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil || n == 0 {
			return false, err
		}
		_, err = tx.ExecContext(ctx, `UPDATE units SET generation = ? WHERE primary_path = ?`, generation, path)
		return err == nil, err
	}()
	err = end(err)
	return ok && err == nil, err
}

// RetireGeneration deletes every record not stamped with generation. It is
// called after a complete pass, so the records left behind belong to files
// that no longer exist.
func (d *Database) RetireGeneration(ctx context.Context, generation string) (retired int, err error) {
	start := time.Now()
	defer func() { recordQuery("retire_generation", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, end, err := d.beginTx(ctx)
	if err != nil {
		return 0, err
	}

	retired, err = func() (int, error) {
		stale := `(SELECT path FROM records WHERE generation != ?)`
		for _, q := range []string{
			"DELETE FROM unit_fields WHERE primary_path IN " + stale,
			"DELETE FROM units WHERE primary_path IN " + stale,
			"DELETE FROM sidecars WHERE primary_path IN " + stale,
		} {
			if _, err := tx.ExecContext(ctx, q, generation); err != nil {
				return 0, err
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM records WHERE generation != ?", generation)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	}()
	if err = end(err); err != nil {
		return 0, err
	}

	if retired > 0 {
		logging.Info("Retired %d records from previous scan generations", retired)
	}
	return retired, nil
}

// DeleteRecord removes the record stored under path, if any.
func (d *Database) DeleteRecord(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_record", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, end, err := d.beginTx(ctx)
	if err != nil {
		return err
	}
	err = end(deleteRecords(ctx, tx, []string{path}))
	return err
}

// GetRecord returns the record stored under path. A sidecar path resolves to
// the record it is linked to.
func (d *Database) GetRecord(ctx context.Context, path string) (rec *StoredRecord, err error) {
	start := time.Now()
	defer func() {
		if errors.Is(err, ErrRecordNotFound) {
			recordQuery("get_record", start, nil)
			return
		}
		recordQuery("get_record", start, err)
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	primary := path
	err = d.db.QueryRowContext(ctx, `SELECT primary_path FROM sidecars WHERE path = ? LIMIT 1`, path).Scan(&primary)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var (
		r       StoredRecord
		modTime int64
	)
	err = d.db.QueryRowContext(ctx, `
		SELECT path, name, extension, category, size_bytes, mod_time, ambiguous_sidecar, generation
		FROM records WHERE path = ?
	`, primary).Scan(&r.Path, &r.Name, &r.Extension, &r.Category, &r.SizeBytes, &modTime, &r.AmbiguousSidecar, &r.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	r.ModifiedTime = time.Unix(0, modTime).UTC()

	if r.Sidecars, err = d.sidecarsNoLock(ctx, r.Path); err != nil {
		return nil, err
	}
	if r.Units, err = d.unitsNoLock(ctx, r.Path); err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Database) sidecarsNoLock(ctx context.Context, primary string) ([]StoredSidecar, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT path, category FROM sidecars WHERE primary_path = ? ORDER BY path`, primary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StoredSidecar{}
	for rows.Next() {
		var s StoredSidecar
		if err := rows.Scan(&s.Path, &s.Category); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *Database) unitsNoLock(ctx context.Context, primary string) ([]catalog.CorpusUnit, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, path, source_type, kind, chunk_index, text, generation
		FROM units WHERE primary_path = ? ORDER BY id
	`, primary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		units []catalog.CorpusUnit
		ids   []int64
	)
	for rows.Next() {
		var (
			id    int64
			u     catalog.CorpusUnit
			chunk sql.NullInt64
		)
		if err := rows.Scan(&id, &u.Path, &u.SourceType, &u.Kind, &chunk, &u.Text, &u.Generation); err != nil {
			return nil, err
		}
		u.PrimaryPath = primary
		if chunk.Valid {
			c := int(chunk.Int64)
			u.ChunkIndex = &c
		}
		units = append(units, u)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fields, err := d.fieldsNoLock(ctx, primary)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		units[i].Fields = fields[id]
	}
	return units, nil
}

func (d *Database) fieldsNoLock(ctx context.Context, primary string) (map[int64][]catalog.Field, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT unit_id, key, value FROM unit_fields WHERE primary_path = ? ORDER BY id`, primary)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]catalog.Field)
	for rows.Next() {
		var (
			id int64
			f  catalog.Field
		)
		if err := rows.Scan(&id, &f.Key, &f.Value); err != nil {
			return nil, err
		}
		out[id] = append(out[id], f)
	}
	return out, rows.Err()
}

// GetStats counts records and units for the metrics collector.
func (d *Database) GetStats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()
	d.UpdateDBMetrics()

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats.RecordsByCategory = make(map[string]int)
	rows, err := d.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM records GROUP BY category`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err = rows.Scan(&category, &n); err != nil {
			return stats, err
		}
		stats.RecordsByCategory[category] = n
		stats.TotalRecords += n
	}
	if err = rows.Err(); err != nil {
		return stats, err
	}

	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&stats.TotalUnits); err != nil {
		return stats, err
	}
	stats.DBFileSizes = d.fileSizes()
	return stats, nil
}

func inClause(values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", len(values)), ",") + ")", args
}
