package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/migrations"
	"github.com/jmoiron/sqlx"
)

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		checksum   TEXT,
		applied_by TEXT
	)`

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int    `db:"version"`
	Name      string `db:"name"`
	AppliedAt string `db:"applied_at"`
	Checksum  string `db:"checksum"`
	AppliedBy string `db:"applied_by"`
}

// AppliedMigrations lists the rows of schema_migrations by version.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	var applied []AppliedMigration
	err := s.db.SelectContext(ctx, &applied, `
		SELECT version, name, applied_at, COALESCE(checksum, '') AS checksum, COALESCE(applied_by, '') AS applied_by
		FROM schema_migrations
		ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	return applied, nil
}

// Migrate applies the pending embedded migrations for the store dialect and
// returns how many ran. Each migration runs in its own transaction together
// with its schema_migrations record.
func (s *Store) Migrate(ctx context.Context, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if _, err := s.db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return 0, fmt.Errorf("Migrate: ensuring schema_migrations: %w", err)
	}

	all, err := migrations.Load(s.dialect)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return 0, fmt.Errorf("Migrate: %w", err)
	}

	appliedVersions := make(map[int]bool, len(applied))
	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		appliedVersions[am.Version] = true
		checksums[am.Version] = am.Checksum
	}

	count := 0
	for _, m := range all {
		if appliedVersions[m.Version] {
			if sum := checksums[m.Version]; sum != "" && sum != m.Checksum {
				log.Warn().Str("migration", m.Label()).Msg("applied migration file has changed since it ran")
			}
			log.Debug().Msgf("  [SKIP] %s (already applied)", m.Label())
			continue
		}

		log.Info().Msgf("  [RUN]  %s", m.Label())
		if err := s.apply(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("Migrate: %s: %w", m.Label(), err)
		}
		log.Info().Msgf("  [OK]   %s", m.Label())
		count++
	}

	return count, nil
}

func (s *Store) apply(ctx context.Context, m migrations.Migration, appliedBy string) error {
	return s.inTx(ctx, "apply", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("executing: %w", err)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
			VALUES (:version, :name, :applied_at, :checksum, :applied_by)`,
			AppliedMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC().Format(time.RFC3339),
				Checksum:  m.Checksum,
				AppliedBy: appliedBy,
			})
		if err != nil {
			return fmt.Errorf("recording: %w", err)
		}
		return nil
	})
}
