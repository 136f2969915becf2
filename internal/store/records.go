package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is a stored record plus its addressing metadata.
type Record struct {
	URI        string
	DID        string
	Collection string
	Rkey       string
	CID        string
	Value      map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Query limits. Callers may ask for up to queryMaxLimit records per page;
// zero or negative limits fall back to queryDefaultLimit.
const (
	queryDefaultLimit = 20
	queryMaxLimit     = 100
)

// RecordQuery selects a page of records from a collection.
type RecordQuery struct {
	Collection string
	// DID optionally restricts results to a single repo.
	DID string
	// Limit is clamped to [1, 100]; zero means 20.
	Limit int
	// Cursor is an opaque token from a previous page's NextCursor.
	Cursor string
}

// RecordPage is one page of query results. NextCursor is empty when the
// page reached the end of the collection.
type RecordPage struct {
	Records    []Record
	NextCursor string
}

// SaveRecord upserts a record keyed by (did, collection, rkey).
// The URI and CID must already be computed by the caller.
func (s *Store) SaveRecord(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (uri, did, collection, rkey, cid, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			cid = excluded.cid,
			payload = excluded.payload,
			updated_at = excluded.updated_at
		ON CONFLICT(did, collection, rkey) DO UPDATE SET
			uri = excluded.uri,
			cid = excluded.cid,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`,
		rec.URI,
		rec.DID,
		rec.Collection,
		rec.Rkey,
		rec.CID,
		string(payload),
		now(),
		now(),
	)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// GetRecord returns the record at the given AT URI.
// Returns ErrNotFound if no such record exists.
func (s *Store) GetRecord(ctx context.Context, uri string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uri, did, collection, rkey, cid, payload, created_at, updated_at
		FROM records
		WHERE uri = ?
	`, uri)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", uri, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// QueryRecords returns a page of records from a collection, ordered by
// URI ascending. The cursor is opaque; pass RecordPage.NextCursor back to
// continue where the previous page stopped.
func (s *Store) QueryRecords(ctx context.Context, q RecordQuery) (*RecordPage, error) {
	limit := clampLimit(q.Limit)

	after, err := decodeCursor(q.Cursor)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	query := `
		SELECT uri, did, collection, rkey, cid, payload, created_at, updated_at
		FROM records
		WHERE collection = ? AND uri > ?
	`
	args := []any{q.Collection, after}
	if q.DID != "" {
		query += ` AND did = ?`
		args = append(args, q.DID)
	}
	// Fetch one extra row to know whether another page exists.
	query += ` ORDER BY uri ASC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	page := &RecordPage{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		page.NextCursor = encodeCursor(page.Records[limit-1].URI)
	}
	return page, nil
}

// SearchRecords returns records in a collection whose payload field
// contains the given substring. Matching is case-insensitive and limited
// to top-level fields.
func (s *Store) SearchRecords(ctx context.Context, collection, field, value string, limit int) ([]Record, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT uri, did, collection, rkey, cid, payload, created_at, updated_at
		FROM records
		WHERE collection = ?
		  AND instr(LOWER(COALESCE(json_extract(payload, '$.' || ?), '')), LOWER(?)) > 0
		ORDER BY uri ASC
		LIMIT ?
	`, collection, field, value, limit)
	if err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("search records: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of records in a collection. A non-empty
// did narrows the count to that repo.
func (s *Store) CountRecords(ctx context.Context, collection, did string) (int64, error) {
	query := `SELECT COUNT(*) FROM records WHERE collection = ?`
	args := []any{collection}
	if did != "" {
		query += ` AND did = ?`
		args = append(args, did)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// RecordCounts returns per-collection record counts for every collection
// that currently holds at least one record.
func (s *Store) RecordCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*) FROM records GROUP BY collection`)
	if err != nil {
		return nil, fmt.Errorf("record counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var collection string
		var n int64
		if err := rows.Scan(&collection, &n); err != nil {
			return nil, fmt.Errorf("record counts: %w", err)
		}
		counts[collection] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record counts: %w", err)
	}
	return counts, nil
}

// DeleteRecord removes the record at the given AT URI.
// Returns ErrNotFound if no such record exists.
func (s *Store) DeleteRecord(ctx context.Context, uri string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE uri = ?`, uri)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", uri, ErrNotFound)
	}
	return nil
}

// DeleteCollection removes every record in a collection and returns how
// many were deleted. Deleting an empty collection is not an error.
func (s *Store) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var payload, createdAt, updatedAt string
	err := row.Scan(&rec.URI, &rec.DID, &rec.Collection, &rec.Rkey, &rec.CID,
		&payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &rec.Value); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", rec.URI, err)
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return queryDefaultLimit
	}
	if limit > queryMaxLimit {
		return queryMaxLimit
	}
	return limit
}

// Cursors are the base64 of the last URI on the previous page. The
// encoding keeps them opaque on the wire; URI ordering makes them stable
// under concurrent inserts.

func encodeCursor(uri string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(uri))
}

func decodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor")
	}
	return string(b), nil
}
