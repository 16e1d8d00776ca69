package database

import (
	"context"
	"time"

	"media-catalog/internal/catalog"
)

// ExportUnits calls fn for every stored unit, record by record in path
// order, optionally restricted to one source type. The read lock is held
// per record, so a slow consumer does not block scans.
func (d *Database) ExportUnits(ctx context.Context, sourceType catalog.SourceType, fn func(catalog.CorpusUnit) error) (err error) {
	if sourceType != "" && !sourceType.Valid() {
		return catalog.Errorf(catalog.KindConfiguration, "export", "", "unknown source_type %q", sourceType)
	}

	start := time.Now()
	paths, err := d.recordPaths(ctx)
	recordQuery("export_paths", start, err)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.mu.RLock()
		units, err := d.unitsNoLock(ctx, path)
		d.mu.RUnlock()
		if err != nil {
			return err
		}
		for _, u := range units {
			if sourceType != "" && u.SourceType != sourceType {
				continue
			}
			if err := fn(u); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Database) recordPaths(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `SELECT path FROM records ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
