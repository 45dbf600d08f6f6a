package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across reports, report_versions, and the
// embedded comments using plainto_tsquery and ts_rank, with ts_headline for
// snippets. Comments have no stored tsvector; the fallback computes one on
// the fly.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == string(ResultReport) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'report'::text AS type, r.id, r.title,
				ts_headline('english', coalesce(r.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.id AS report_id,
				ts_rank(r.fts, %s) AS rank
			FROM reports r
			WHERE r.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == string(ResultVersion) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'version'::text AS type, v.id, v.name AS title,
				ts_headline('english', coalesce(v.notes, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				v.report_id,
				ts_rank(v.fts, %s) AS rank
			FROM report_versions v
			WHERE v.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == string(ResultComment) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.value->>'id' AS id, c.value->>'author' AS title,
				ts_headline('english', coalesce(c.value->>'body', ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.id AS report_id,
				ts_rank(to_tsvector('english', coalesce(c.value->>'body', '')), %s) AS rank
			FROM reports r, jsonb_array_elements(r.comments) c
			WHERE to_tsvector('english', coalesce(c.value->>'body', '')) @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, report_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ReportID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ReportRecord, []VersionRecord, []CommentRecord, error) {
	reportRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(description, ''), status, coalesce(warehouse_id, '')
		FROM reports
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load reports: %w", err)
	}
	defer reportRows.Close()

	reports := make([]ReportRecord, 0)
	for reportRows.Next() {
		var r ReportRecord
		if err := reportRows.Scan(&r.ID, &r.Title, &r.Description, &r.Status, &r.WarehouseID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := reportRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate reports: %w", err)
	}

	versionRows, err := p.db.QueryContext(ctx, `
		SELECT id, report_id, name, coalesce(notes, '')
		FROM report_versions
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load versions: %w", err)
	}
	defer versionRows.Close()

	versions := make([]VersionRecord, 0)
	for versionRows.Next() {
		var v VersionRecord
		if err := versionRows.Scan(&v.ID, &v.ReportID, &v.Name, &v.Notes); err != nil {
			return nil, nil, nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := versionRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate versions: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT c.value->>'id', r.id, coalesce(c.value->>'author', ''), coalesce(c.value->>'body', '')
		FROM reports r, jsonb_array_elements(r.comments) c
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.ReportID, &c.Author, &c.Body); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return reports, versions, comments, nil
}
