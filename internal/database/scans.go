package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// BeginScan records the start of a scan pass.
func (d *Database) BeginScan(ctx context.Context, generation, rootPath string, startedAt time.Time) (err error) {
	start := time.Now()
	defer func() { recordQuery("begin_scan", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO scans (generation, root_path, started_at, status) VALUES (?, ?, ?, ?)
	`, generation, rootPath, startedAt.Unix(), ScanRunning)
	return err
}

// FinishScan stores the outcome and error summary of a scan pass.
func (d *Database) FinishScan(ctx context.Context, info ScanInfo) (err error) {
	start := time.Now()
	defer func() { recordQuery("finish_scan", start, err) }()

	errs := info.Errors
	if errs == nil {
		errs = map[string]int{}
	}
	summary, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	finished := time.Now()
	if info.FinishedAt != nil {
		finished = *info.FinishedAt
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		UPDATE scans SET finished_at = ?, status = ?, files = ?, records = ?, units = ?,
			retired = ?, dropped_facts = ?, errors = ?
		WHERE generation = ?
	`, finished.Unix(), info.Status, info.Files, info.Records, info.Units,
		info.Retired, info.DroppedFacts, string(summary), info.Generation)
	if err != nil {
		return err
	}
	if info.Status == ScanCompleted {
		return d.setMetadataNoLock(ctx, metaLastCompletedScan, info.Generation)
	}
	return nil
}

// RecentScans returns up to limit scans, newest first.
func (d *Database) RecentScans(ctx context.Context, limit int) (scans []ScanInfo, err error) {
	start := time.Now()
	defer func() { recordQuery("list_scans", start, err) }()

	if limit < 1 {
		limit = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT generation, root_path, started_at, finished_at, status, files, records, units, retired, dropped_facts, errors
		FROM scans ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans = []ScanInfo{}
	for rows.Next() {
		s, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// LastScan returns the most recent scan, or nil when none has run.
func (d *Database) LastScan(ctx context.Context) (*ScanInfo, error) {
	scans, err := d.RecentScans(ctx, 1)
	if err != nil || len(scans) == 0 {
		return nil, err
	}
	return &scans[0], nil
}

func scanInfo(rows *sql.Rows) (ScanInfo, error) {
	var (
		s        ScanInfo
		started  int64
		finished sql.NullInt64
		errs     string
	)
	if err := rows.Scan(&s.Generation, &s.RootPath, &started, &finished, &s.Status,
		&s.Files, &s.Records, &s.Units, &s.Retired, &s.DroppedFacts, &errs); err != nil {
		return s, err
	}
	s.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		s.FinishedAt = &t
	}
	s.Errors = map[string]int{}
	if err := json.Unmarshal([]byte(errs), &s.Errors); err != nil {
		return s, errors.Join(errors.New("corrupt scan error summary"), err)
	}
	return s, nil
}
