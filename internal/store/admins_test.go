package store

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAdmin_ReturnsUsableKey(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	admin, key, err := s.CreateAdmin(ctx, "ops")
	if err != nil {
		t.Fatalf("CreateAdmin() failed: %v", err)
	}
	if key == "" {
		t.Fatal("expected a plaintext key")
	}
	if admin.ID == "" || admin.Name != "ops" {
		t.Errorf("admin = %+v", admin)
	}

	// The plaintext key must not be stored.
	var stored string
	if err := s.db.QueryRow("SELECT key_hash FROM admins WHERE id = ?", admin.ID).Scan(&stored); err != nil {
		t.Fatalf("read key_hash: %v", err)
	}
	if stored == key {
		t.Error("plaintext key was stored")
	}
	if stored != HashAPIKey(key) {
		t.Error("stored hash does not match HashAPIKey(key)")
	}
}

func TestAuthenticateAdmin(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, key, err := s.CreateAdmin(ctx, "ops")
	if err != nil {
		t.Fatalf("CreateAdmin() failed: %v", err)
	}

	admin, err := s.AuthenticateAdmin(ctx, key)
	if err != nil {
		t.Fatalf("AuthenticateAdmin() failed: %v", err)
	}
	if admin.ID != created.ID {
		t.Errorf("authenticated wrong admin: %+v", admin)
	}

	if _, err := s.AuthenticateAdmin(ctx, "wrong-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a bad key, got %v", err)
	}

	// last_used_at is stamped on success.
	admins, err := s.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins() failed: %v", err)
	}
	if len(admins) != 1 || admins[0].LastUsedAt == nil {
		t.Errorf("last_used_at was not stamped: %+v", admins)
	}
}

func TestDeleteAdmin(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	admin, key, err := s.CreateAdmin(ctx, "ops")
	if err != nil {
		t.Fatalf("CreateAdmin() failed: %v", err)
	}

	if err := s.DeleteAdmin(ctx, admin.ID); err != nil {
		t.Fatalf("DeleteAdmin() failed: %v", err)
	}
	if _, err := s.AuthenticateAdmin(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoked key still authenticates: %v", err)
	}
	if err := s.DeleteAdmin(ctx, admin.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}
}
