package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atvault/lexhost/internal/lexicon"
)

// putRetries bounds the compare-and-swap loop in PutLexicon. Losing the
// race three times in a row on a single-writer database means something
// is wrong beyond contention.
const putRetries = 3

// PutLexicon inserts or replaces a lexicon. The revision is bumped with a
// compare-and-swap: the update only lands if the row still holds the
// revision we read, so two concurrent puts for the same id cannot both
// succeed at the same revision. On success p.Revision holds the new
// revision.
func (s *Store) PutLexicon(ctx context.Context, p *lexicon.ParsedLexicon) error {
	rawJSON, err := json.Marshal(p.Raw)
	if err != nil {
		return fmt.Errorf("put lexicon: %w", err)
	}

	for attempt := 0; attempt < putRetries; attempt++ {
		var revision int
		err := s.db.QueryRowContext(ctx,
			`SELECT revision FROM lexicons WHERE id = ?`, p.ID,
		).Scan(&revision)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := s.db.ExecContext(ctx, `
				INSERT INTO lexicons
				(id, type, record_key, target_collection, action, script,
				 source, authority_did, backfill, raw, revision, last_fetched_at,
				 created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`,
				p.ID,
				string(p.Type),
				p.RecordKey,
				p.TargetCollection,
				p.Action.StorageString(),
				p.Script,
				string(p.Source),
				p.AuthorityDID,
				boolToInt(p.Backfill),
				string(rawJSON),
				timePtr(p.LastFetchedAt),
				now(),
				now(),
			)
			if err != nil {
				return fmt.Errorf("put lexicon: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				p.Revision = 1
				return nil
			}
			// Lost the insert race; re-read and try as an update.

		case err != nil:
			return fmt.Errorf("put lexicon: %w", err)

		default:
			res, err := s.db.ExecContext(ctx, `
				UPDATE lexicons
				SET type = ?, record_key = ?, target_collection = ?, action = ?,
				    script = ?, source = ?, authority_did = ?, backfill = ?,
				    raw = ?, revision = revision + 1, last_fetched_at = ?,
				    updated_at = ?
				WHERE id = ? AND revision = ?
			`,
				string(p.Type),
				p.RecordKey,
				p.TargetCollection,
				p.Action.StorageString(),
				p.Script,
				string(p.Source),
				p.AuthorityDID,
				boolToInt(p.Backfill),
				string(rawJSON),
				timePtr(p.LastFetchedAt),
				now(),
				p.ID,
				revision,
			)
			if err != nil {
				return fmt.Errorf("put lexicon: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 1 {
				p.Revision = revision + 1
				return nil
			}
			// Revision moved under us; re-read and retry.
		}
	}

	return fmt.Errorf("put lexicon %s: %w", p.ID, ErrConflict)
}

// GetLexicon returns the lexicon with the given NSID.
// Returns ErrNotFound if no such lexicon exists.
func (s *Store) GetLexicon(ctx context.Context, id string) (*lexicon.ParsedLexicon, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, record_key, target_collection, action, script,
		       source, authority_did, backfill, raw, revision, last_fetched_at,
		       created_at, updated_at
		FROM lexicons
		WHERE id = ?
	`, id)

	p, err := scanLexicon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lexicon %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lexicon: %w", err)
	}
	return p, nil
}

// ListLexicons returns all lexicons ordered by id. An empty source lists
// everything; otherwise only lexicons from that source are returned.
func (s *Store) ListLexicons(ctx context.Context, source lexicon.Source) ([]*lexicon.ParsedLexicon, error) {
	query := `
		SELECT id, record_key, target_collection, action, script,
		       source, authority_did, backfill, raw, revision, last_fetched_at,
		       created_at, updated_at
		FROM lexicons
	`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lexicons: %w", err)
	}
	defer rows.Close()

	out := []*lexicon.ParsedLexicon{}
	for rows.Next() {
		p, err := scanLexicon(rows)
		if err != nil {
			return nil, fmt.Errorf("list lexicons: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list lexicons: %w", err)
	}
	return out, nil
}

// DeleteLexicon removes a lexicon by NSID.
// Returns ErrNotFound if no such lexicon exists.
func (s *Store) DeleteLexicon(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lexicons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete lexicon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lexicon %s: %w", id, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLexicon(row rowScanner) (*lexicon.ParsedLexicon, error) {
	var (
		id, recordKey, targetCollection, action, script string
		source, authorityDID, rawJSON                   string
		backfill, revision                              int
		lastFetchedAt                                   sql.NullString
		createdAt, updatedAt                            string
	)
	err := row.Scan(&id, &recordKey, &targetCollection, &action, &script,
		&source, &authorityDID, &backfill, &rawJSON, &revision, &lastFetchedAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(rawJSON), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal lexicon %s: %w", id, err)
	}

	act, err := lexicon.ParseAction(action)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", id, err)
	}

	p, err := lexicon.Parse(raw, revision, targetCollection, act, script)
	if err != nil {
		return nil, err
	}
	p.Source = lexicon.Source(source)
	p.AuthorityDID = authorityDID
	p.Backfill = backfill != 0
	if lastFetchedAt.Valid {
		t := parseTime(lastFetchedAt.String)
		p.LastFetchedAt = &t
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
