package store

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	version int
	name    string
	up      []string
	down    []string
}

// migrations are applied in order and never edited once released; schema
// changes get a new entry with its own down statements.
var migrations = []migration{
	{
		version: 1,
		name:    "create_emails",
		up: []string{
			`CREATE TABLE IF NOT EXISTS emails (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            to_email TEXT NOT NULL,
            cc_email TEXT,
            bcc_email TEXT,
            subject TEXT NOT NULL,
            body TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
			`CREATE INDEX IF NOT EXISTS idx_emails_created ON emails(created_at);`,
			`CREATE INDEX IF NOT EXISTS idx_emails_created_id ON emails(created_at, id);`,
			`CREATE INDEX IF NOT EXISTS idx_emails_to ON emails(to_email);`,
		},
		down: []string{
			`DROP TABLE IF EXISTS emails;`,
		},
	},
	{
		version: 2,
		name:    "add_read_starred_columns",
		up: []string{
			`ALTER TABLE emails ADD COLUMN read INTEGER NOT NULL DEFAULT 0;`,
			`ALTER TABLE emails ADD COLUMN starred INTEGER NOT NULL DEFAULT 0;`,
			`CREATE INDEX IF NOT EXISTS idx_emails_read ON emails(read);`,
			`CREATE INDEX IF NOT EXISTS idx_emails_starred ON emails(starred);`,
		},
		down: []string{
			`DROP INDEX IF EXISTS idx_emails_read;`,
			`DROP INDEX IF EXISTS idx_emails_starred;`,
			`ALTER TABLE emails DROP COLUMN starred;`,
			`ALTER TABLE emails DROP COLUMN read;`,
		},
	},
}

// LatestSchemaVersion returns the version Migrate brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateTo(ctx, LatestSchemaVersion())
}

// MigrateTo applies pending migrations up to and including target.
func (s *Store) MigrateTo(ctx context.Context, target int) error {
	if err := s.ensureMigrationTable(ctx); err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}
		if err := s.apply(ctx, m, m.up, true); err != nil {
			return err
		}
	}
	return nil
}

// Rollback reverts the most recent steps migrations.
func (s *Store) Rollback(ctx context.Context, steps int) error {
	if err := s.ensureMigrationTable(ctx); err != nil {
		return err
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0 && steps > 0; i-- {
		m := migrations[i]
		if m.version > current {
			continue
		}
		if err := s.apply(ctx, m, m.down, false); err != nil {
			return err
		}
		steps--
	}
	return nil
}

// SchemaVersion reports the highest applied migration, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.ensureMigrationTable(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) ensureMigrationTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            applied_at INTEGER NOT NULL
        );`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration, statements []string, up bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migration %d %s: %w", m.version, m.name, err)
		}
	}

	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?);`,
			m.version, m.name, time.Now().Unix())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?;`, m.version)
	}
	if err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
