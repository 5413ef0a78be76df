package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"marginalia/api/internal/votes"
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

// Search runs plainto_tsquery over annotation bodies with ts_headline
// snippets, ranked by ts_rank.
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

	where := "a.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2
	if q.FilterURI != "" {
		where += fmt.Sprintf(" AND a.uri = $%d", argN)
		args = append(args, q.FilterURI)
		argN++
	}
	if q.FilterGroupID != "" {
		where += fmt.Sprintf(" AND a.group_id = $%d", argN)
		args = append(args, q.FilterGroupID)
		argN++
	}

	ctx := context.Background()

	countSQL := `SELECT count(*) FROM annotations a WHERE ` + where
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT a.id, a.uri, a.group_id, a.user_id, a.tags,
			ts_headline('english', coalesce(a.body, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM annotations a
		WHERE %s
		ORDER BY ts_rank(a.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var tags []byte
		if err := rows.Scan(&r.ID, &r.URI, &r.GroupID, &r.Author, &tags, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal(tags, &r.Tags); err != nil {
			return nil, 0, fmt.Errorf("pgfts decode tags: %w", err)
		}
		r.Tags = votes.Strip(r.Tags)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all annotations for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]AnnotationRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, body, tags, uri, group_id, user_id
		FROM annotations
	`)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	defer rows.Close()

	records := make([]AnnotationRecord, 0)
	for rows.Next() {
		var record AnnotationRecord
		var tags []byte
		if err := rows.Scan(&record.ID, &record.Body, &tags, &record.URI, &record.GroupID, &record.Author); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		if err := json.Unmarshal(tags, &record.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		record.Tags = votes.Strip(record.Tags)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return records, nil
}
