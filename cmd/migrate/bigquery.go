package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/migrations"
	"google.golang.org/api/iterator"
)

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// bqMigrator applies the embedded BigQuery migrations to one dataset.
type bqMigrator struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	appliedBy string
}

func runBigQuery(ctx context.Context, projectID, datasetID, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("runBigQuery: create client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", projectID).Str("dataset", datasetID).Msg("Connected to BigQuery")

	m := &bqMigrator{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}
	return m.run(ctx)
}

func (m *bqMigrator) run(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	if err := m.exec(ctx, m.schemaMigrationsDDL(), nil); err != nil {
		return 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	all, err := migrations.Load(migrations.DialectBigQuery)
	if err != nil {
		return 0, err
	}
	log.Info().Int("files", len(all)).Msg("Found migration files")

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	log.Info().Int("applied", len(applied)).Msg("Found already applied migrations")

	checksums := make(map[int]string, len(applied))
	for _, am := range applied {
		checksums[am.Version] = am.Checksum
	}

	count := 0
	for _, mig := range all {
		if sum, ok := checksums[mig.Version]; ok {
			if sum != "" && sum != mig.Checksum {
				log.Warn().Str("migration", mig.Label()).Msg("applied migration file has changed since it ran")
			}
			log.Info().Msgf("  [SKIP] %s (already applied)", mig.Label())
			continue
		}

		log.Info().Msgf("  [RUN]  %s", mig.Label())
		if err := m.exec(ctx, mig.Render(renderVars(m.projectID, m.datasetID)), nil); err != nil {
			return count, fmt.Errorf("execute %s: %w", mig.Label(), err)
		}
		if err := m.record(ctx, mig); err != nil {
			return count, fmt.Errorf("record %s: %w", mig.Label(), err)
		}
		log.Info().Msgf("  [OK]   %s", mig.Label())
		count++
	}

	return count, nil
}

// renderVars are the placeholders used by the BigQuery migration files.
func renderVars(projectID, datasetID string) map[string]string {
	return map[string]string{
		"PROJECT_ID": projectID,
		"DATASET_ID": datasetID,
	}
}

func (m *bqMigrator) table() string {
	return fmt.Sprintf("`%s.%s.schema_migrations`", m.projectID, m.datasetID)
}

func (m *bqMigrator) schemaMigrationsDDL() string {
	return `
		CREATE TABLE IF NOT EXISTS ` + m.table() + ` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)`
}

// applied retrieves the list of already applied migrations.
func (m *bqMigrator) applied(ctx context.Context) ([]AppliedMigration, error) {
	query := m.client.Query(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM ` + m.table() + `
		ORDER BY version ASC`)

	it, err := query.Read(ctx)
	if err != nil {
		// The table is created just before, but may not be visible yet.
		if strings.Contains(err.Error(), "Not found") {
			return []AppliedMigration{}, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}

		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}

	return applied, nil
}

// record stores a successfully applied migration in schema_migrations.
func (m *bqMigrator) record(ctx context.Context, mig migrations.Migration) error {
	sql := `
		INSERT INTO ` + m.table() + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`

	return m.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

func (m *bqMigrator) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	query := m.client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
