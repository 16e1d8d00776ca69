package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// schemaVersion is stored in the metadata table and bumped by migrations.
const schemaVersion = "2"

// Options tunes how the index is opened.
type Options struct {
	// ReadOnly opens an existing index for querying. A missing file is
	// reported as catalog.ErrIndexNotFound instead of being created.
	ReadOnly bool
}

// Database is the SQLite-backed catalog index.
type Database struct {
	db       *sql.DB
	dbPath   string
	readOnly bool
	mu       sync.RWMutex
}

// New opens or creates the index at dbPath. The parent directory must exist
// and be writable unless opts.ReadOnly is set.
func New(ctx context.Context, dbPath string, opts *Options) (*Database, error) {
	if opts == nil {
		opts = &Options{}
	}
	logging.Info("Database path: %s", dbPath)

	if opts.ReadOnly {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", catalog.ErrIndexNotFound, dbPath)
		}
	} else if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors while a scan writes
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)
	if opts.ReadOnly {
		// journal mode is persistent and cannot be changed without write access
		connStr = fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:       db,
		dbPath:   dbPath,
		readOnly: opts.ReadOnly,
	}

	if opts.ReadOnly {
		if err := d.checkSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return d, nil
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	-- One row per assembled record, keyed by its primary path
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		extension TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		fingerprint TEXT NOT NULL DEFAULT '',
		ambiguous_sidecar INTEGER NOT NULL DEFAULT 0,
		generation TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);
	CREATE INDEX IF NOT EXISTS idx_records_generation ON records(generation);

	-- Sidecar files linked to a record
	CREATE TABLE IF NOT EXISTS sidecars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		primary_path TEXT NOT NULL,
		path TEXT NOT NULL,
		category TEXT NOT NULL,
		UNIQUE(primary_path, path)
	);

	CREATE INDEX IF NOT EXISTS idx_sidecars_path ON sidecars(path);

	-- Corpus units
	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		primary_path TEXT NOT NULL,
		path TEXT NOT NULL,
		source_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		chunk_index INTEGER,
		text TEXT NOT NULL,
		generation TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_units_primary ON units(primary_path);
	CREATE INDEX IF NOT EXISTS idx_units_source ON units(source_type);

	-- Structured key/value pairs of fields units
	CREATE TABLE IF NOT EXISTS unit_fields (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unit_id INTEGER NOT NULL,
		primary_path TEXT NOT NULL,
		path TEXT NOT NULL,
		source_type TEXT NOT NULL,
		key TEXT NOT NULL COLLATE NOCASE,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_unit_fields_key_value ON unit_fields(key COLLATE NOCASE, value COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_unit_fields_primary ON unit_fields(primary_path);

	-- Full-text search over unit text
	CREATE VIRTUAL TABLE IF NOT EXISTS units_fts USING fts5(
		text,
		content='units',
		content_rowid='id',
		tokenize='trigram'
	);

	CREATE TRIGGER IF NOT EXISTS units_ai AFTER INSERT ON units BEGIN
		INSERT INTO units_fts(rowid, text) VALUES (new.id, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS units_ad AFTER DELETE ON units BEGIN
		INSERT INTO units_fts(units_fts, rowid, text) VALUES('delete', old.id, old.text);
	END;

	CREATE TRIGGER IF NOT EXISTS units_au AFTER UPDATE OF text ON units BEGIN
		INSERT INTO units_fts(units_fts, rowid, text) VALUES('delete', old.id, old.text);
		INSERT INTO units_fts(rowid, text) VALUES (new.id, new.text);
	END;

	-- Scan passes and their error summaries
	CREATE TABLE IF NOT EXISTS scans (
		generation TEXT PRIMARY KEY,
		root_path TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL DEFAULT 'running',
		files INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		units INTEGER NOT NULL DEFAULT 0,
		retired INTEGER NOT NULL DEFAULT 0,
		dropped_facts INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	-- Metadata table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err = d.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	if err = d.runMigrations(ctx); err != nil {
		return err
	}
	return d.SetMetadata(ctx, metaSchemaVersion, schemaVersion)
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: indexes created before fingerprints existed lack the column
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info('records')
		WHERE name='fingerprint'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for fingerprint column: %w", err)
	}

	if !columnExists {
		logging.Info("Migrating database: adding fingerprint column to records table")
		if _, err := d.db.ExecContext(ctx, `ALTER TABLE records ADD COLUMN fingerprint TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add fingerprint column: %w", err)
		}
		logging.Info("Migration complete: fingerprint column added")
	}

	return nil
}

// checkSchema reports ErrIndexNotFound for a file that was never initialized
// as an index.
func (d *Database) checkSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('records', 'units', 'unit_fields')`,
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect database schema: %w", err)
	}
	if n < 3 {
		return fmt.Errorf("%w: %s has no catalog tables", catalog.ErrIndexNotFound, d.dbPath)
	}
	return nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// beginTx starts a write transaction. The returned func commits or rolls
// back depending on the error passed to it and records the outcome.
func (d *Database) beginTx(ctx context.Context) (*sql.Tx, func(error) error, error) {
	if d.readOnly {
		return nil, nil, errors.New("database is open read-only")
	}
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	end := func(err error) error {
		duration := time.Since(start).Seconds()
		if err != nil {
			metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
			return err
		}
		metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
		return tx.Commit()
	}
	return tx, end, nil
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// fileSizes returns the sizes of the main, WAL and SHM files that exist.
func (d *Database) fileSizes() map[string]int64 {
	sizes := make(map[string]int64, 3)
	for label, path := range map[string]string{
		"main": d.dbPath,
		"wal":  d.dbPath + "-wal",
		"shm":  d.dbPath + "-shm",
	} {
		if info, err := os.Stat(path); err == nil {
			sizes[label] = info.Size()
		}
	}
	return sizes
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	if dbInfo, err := os.Stat(dbPath); err == nil {
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("%s file exists: %s (mode: %v, size: %d bytes)", suffix[1:], path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s file is read-only! Mode: %v - this will cause write failures", path, info.Mode())
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix %s permissions: %v", path, chmodErr)
		} else {
			logging.Info("Fixed %s permissions", path)
		}
	}

	return nil
}
