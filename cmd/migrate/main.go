package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/infra/sqlstore"
	"github.com/dvloznov/finance-insights/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		driver    = flag.String("driver", cfg.StoreDriver, "Store driver: bigquery, postgres or sqlite (or set STORE_DRIVER env)")
		dsn       = flag.String("dsn", cfg.DatabaseURL, "Database URL for postgres and sqlite (or set DATABASE_URL env)")
		projectID = flag.String("project", cfg.BQProject, "GCP project ID for bigquery (or set BQ_PROJECT env)")
		datasetID = flag.String("dataset", cfg.BQDataset, "BigQuery dataset ID (or set BQ_DATASET env)")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	log := logger.NewWithOptions(cfg.LoggerOptions())
	ctx := logger.WithContext(context.Background(), log)

	var count int
	switch *driver {
	case config.DriverBigQuery:
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
		}
		count, err = runBigQuery(ctx, *projectID, *datasetID, *appliedBy)
	case config.DriverPostgres, config.DriverSQLite:
		count, err = runSQL(ctx, *driver, *dsn, *appliedBy)
	default:
		err = fmt.Errorf("unknown driver %q", *driver)
	}
	if err != nil {
		log.Error().Err(err).Str("driver", *driver).Msg("Migration failed")
		os.Exit(1)
	}

	if count == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", count).Msgf("Successfully applied %d migration(s)", count)
	}
}

// runSQL applies the embedded migrations of a sqlx store.
func runSQL(ctx context.Context, driver, dsn, appliedBy string) (int, error) {
	if dsn == "" {
		return 0, fmt.Errorf("runSQL: -dsn is required for %s", driver)
	}
	store, err := sqlstore.Open(ctx, driver, dsn)
	if err != nil {
		return 0, fmt.Errorf("runSQL: %w", err)
	}
	defer store.Close()

	log := logger.FromContext(ctx)
	log.Info().Str("driver", driver).Msg("Connected to database")
	return store.Migrate(ctx, appliedBy)
}
