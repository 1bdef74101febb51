package store

import (
	"context"
	"testing"
)

func TestMigrate_UpgradePreservesRows(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.MigrateTo(ctx, 1); err != nil {
		t.Fatalf("migrate to 1: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO emails
        (to_email, subject, body, created_at, updated_at) VALUES ('old@b.com', 'legacy', 'row', 1, 1);`); err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != LatestSchemaVersion() {
		t.Errorf("version = %d, want %d", version, LatestSchemaVersion())
	}

	m, err := s.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("get legacy row: %v", err)
	}
	if m.To != "old@b.com" || m.Read || m.Starred {
		t.Errorf("legacy row = %+v", m)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRollback_KeepsRowsAndReapplies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	created := mustCreate(t, s, Fields{To: "a@b.com", Subject: "s", Body: "b"})
	if _, err := s.Update(ctx, created.ID, Patch{Read: boolPtr(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := s.Rollback(ctx, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if version, _ := s.SchemaVersion(ctx); version != 1 {
		t.Fatalf("version after rollback = %d, want 1", version)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM emails;`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows after rollback = %d, want 1", count)
	}

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	m, err := s.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Read {
		t.Errorf("read = true after column was dropped and re-added")
	}
}
