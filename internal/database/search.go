package database

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"media-catalog/internal/catalog"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200

	// The trigram tokenizer cannot match terms shorter than this.
	minTrigramRunes = 3
)

// Search modes
const (
	ModeFields = "fields"
	ModeText   = "text"
)

var fieldQuery = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):(.+)$`)

// ParseQuery splits a "key:value" query. ok is false for free-text queries.
func ParseQuery(query string) (key, value string, ok bool) {
	m := fieldQuery.FindStringSubmatch(strings.TrimSpace(query))
	if m == nil {
		return "", "", false
	}
	value = strings.TrimSpace(m[2])
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	if value == "" {
		return "", "", false
	}
	return m[1], value, true
}

// Search answers a query from stored units only. "key:value" queries match
// structured fields exactly, ignoring case in both key and value; anything
// else is a substring search over unit text. A query with no match returns
// a result with Found=false rather than an error.
func (d *Database) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	if opts.Limit < 1 {
		opts.Limit = defaultSearchLimit
	}
	if opts.Limit > maxSearchLimit {
		opts.Limit = maxSearchLimit
	}
	if opts.SourceType != "" && !opts.SourceType.Valid() {
		return nil, catalog.Errorf(catalog.KindConfiguration, "search", "", "unknown source_type %q", opts.SourceType)
	}

	query := strings.TrimSpace(opts.Query)
	result := &SearchResult{Query: query, Limit: opts.Limit, Hits: []Hit{}}
	if query == "" {
		result.Mode = ModeText
		result.Reason = "empty query"
		return result, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var err error
	if key, value, ok := ParseQuery(query); ok {
		result.Mode = ModeFields
		err = d.searchFieldsNoLock(ctx, key, value, opts, result)
	} else {
		result.Mode = ModeText
		err = d.searchTextNoLock(ctx, query, opts, result)
	}
	if err != nil {
		return nil, err
	}

	result.Found = len(result.Hits) > 0
	if !result.Found {
		result.Reason = "no indexed record matches " + query
	}
	return result, nil
}

func (d *Database) searchFieldsNoLock(ctx context.Context, key, value string, opts SearchOptions, result *SearchResult) (err error) {
	start := time.Now()
	defer func() { recordQuery("search_fields", start, err) }()

	where := `WHERE key = ? COLLATE NOCASE AND value = ? COLLATE NOCASE`
	args := []interface{}{key, value}
	if opts.SourceType != "" {
		where += ` AND source_type = ?`
		args = append(args, string(opts.SourceType))
	}

	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM unit_fields `+where, args...).Scan(&result.Total); err != nil {
		return err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT primary_path, path, source_type, key, value
		FROM unit_fields `+where+`
		ORDER BY primary_path, id
		LIMIT ?
	`, append(args, opts.Limit)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		h := Hit{Kind: catalog.UnitFields}
		if err = rows.Scan(&h.PrimaryPath, &h.Path, &h.SourceType, &h.Key, &h.Value); err != nil {
			return err
		}
		result.Hits = append(result.Hits, h)
	}
	return rows.Err()
}

func (d *Database) searchTextNoLock(ctx context.Context, query string, opts SearchOptions, result *SearchResult) (err error) {
	start := time.Now()
	defer func() { recordQuery("search_text", start, err) }()

	var (
		from, match, snippet string
		args                 []interface{}
	)
	if utf8.RuneCountInString(query) >= minTrigramRunes {
		from = `units_fts INNER JOIN units u ON u.id = units_fts.rowid`
		match = `units_fts MATCH ?`
		snippet = `snippet(units_fts, 0, '[', ']', '…', 16)`
		args = append(args, prepareSearchTerm(query))
	} else {
		from = `units u`
		match = `u.text LIKE ? ESCAPE '\'`
		snippet = `substr(u.text, 1, 120)`
		args = append(args, "%"+escapeLike(query)+"%")
	}
	if opts.SourceType != "" {
		match += ` AND u.source_type = ?`
		args = append(args, string(opts.SourceType))
	}

	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+from+` WHERE `+match, args...).Scan(&result.Total); err != nil {
		return err
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT u.primary_path, u.path, u.source_type, u.kind, u.chunk_index, `+snippet+`
		FROM `+from+`
		WHERE `+match+`
		ORDER BY u.primary_path, u.id
		LIMIT ?
	`, append(args, opts.Limit)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h     Hit
			chunk sql.NullInt64
		)
		if err = rows.Scan(&h.PrimaryPath, &h.Path, &h.SourceType, &h.Kind, &chunk, &h.Snippet); err != nil {
			return err
		}
		if chunk.Valid {
			c := int(chunk.Int64)
			h.ChunkIndex = &c
		}
		result.Hits = append(result.Hits, h)
	}
	return rows.Err()
}

// prepareSearchTerm quotes a query as a single FTS5 phrase.
func prepareSearchTerm(query string) string {
	query = strings.TrimSpace(query)
	query = strings.ReplaceAll(query, `"`, `""`)
	return `"` + query + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
