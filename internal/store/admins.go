package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Admin is an API credential holder. Only the SHA-256 of the key is
// stored; the plaintext key is shown once at creation time.
type Admin struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// CreateAdmin mints a new admin credential and returns the admin plus the
// plaintext API key. The key cannot be recovered later.
func (s *Store) CreateAdmin(ctx context.Context, name string) (*Admin, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("create admin: %w", err)
	}
	key := hex.EncodeToString(raw)

	admin := &Admin{
		ID:   uuid.NewString(),
		Name: name,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, name, key_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, admin.ID, admin.Name, HashAPIKey(key), now())
	if err != nil {
		return nil, "", fmt.Errorf("create admin: %w", err)
	}
	return admin, key, nil
}

// AuthenticateAdmin returns the admin owning the given API key and stamps
// last_used_at. Returns ErrNotFound for an unknown key.
func (s *Store) AuthenticateAdmin(ctx context.Context, key string) (*Admin, error) {
	hash := HashAPIKey(key)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, last_used_at
		FROM admins
		WHERE key_hash = ?
	`, hash)

	admin, err := scanAdmin(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admin key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate admin: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE admins SET last_used_at = ? WHERE id = ?`, now(), admin.ID); err != nil {
		return nil, fmt.Errorf("authenticate admin: %w", err)
	}
	return admin, nil
}

// ListAdmins returns all admins ordered by creation time.
func (s *Store) ListAdmins(ctx context.Context) ([]*Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, last_used_at
		FROM admins
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	admins := []*Admin{}
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// DeleteAdmin revokes an admin credential by id.
// Returns ErrNotFound if no such admin exists.
func (s *Store) DeleteAdmin(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("admin %s: %w", id, ErrNotFound)
	}
	return nil
}

// HashAPIKey returns the hex SHA-256 of an API key, the form keys are
// stored and compared in.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func scanAdmin(row rowScanner) (*Admin, error) {
	var admin Admin
	var createdAt string
	var lastUsed sql.NullString
	if err := row.Scan(&admin.ID, &admin.Name, &createdAt, &lastUsed); err != nil {
		return nil, err
	}
	admin.CreatedAt = parseTime(createdAt)
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		admin.LastUsedAt = &t
	}
	return &admin, nil
}
