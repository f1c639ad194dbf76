// Package app assembles the analyzer and its collaborators from
// configuration. It is shared by the API, the worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/finance-insights/internal/archive"
	"github.com/dvloznov/finance-insights/internal/config"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
	"github.com/dvloznov/finance-insights/internal/infra/sqlstore"
	"github.com/dvloznov/finance-insights/internal/interpreter"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/notionexport"
	"github.com/dvloznov/finance-insights/internal/pipeline"
	"github.com/dvloznov/finance-insights/internal/prompts"
	"github.com/rs/zerolog"
)

// ArchiveRetries is the retry budget of every archive backend.
const ArchiveRetries = 3

// App holds the long-lived components of a process.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Repo     pipeline.Repository
	Analyzer *pipeline.Analyzer
	Latest   *pipeline.LatestResults
	Archive  archive.Archive
	// Notion is nil unless NOTION_TOKEN and NOTION_DB_ID are set.
	Notion *notionexport.Publisher

	closers []io.Closer
}

// New opens the store, the archive and the model client described by cfg.
// A missing model API key is not an error: the app starts and every
// analysis fails fast as not configured.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Latest: pipeline.NewLatestResults()}

	repo, closer, err := OpenRepository(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, closer)

	arch, err := archive.Open(ctx, cfg.ArchiveURI, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("New: open archive: %w", err)
	}
	if _, nop := arch.(archive.Nop); !nop {
		arch = archive.WithRetry(arch, ArchiveRetries)
	}
	a.Archive = arch
	a.closers = append(a.closers, arch)

	model, err := llm.New(ctx, cfg.Model)
	if errors.Is(err, llm.ErrNotConfigured) {
		log.Warn().Str("provider", string(cfg.Model.Provider)).Msg("No model API key configured, analyses will be rejected")
		model = nil
	} else if err != nil {
		a.Close()
		return nil, fmt.Errorf("New: model client: %w", err)
	}

	builder, interp, err := promptsAndInterpreter(cfg.ResponseFormat)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	a.Analyzer, err = pipeline.NewAnalyzer(pipeline.Deps{
		Repo:        repo,
		Prompts:     builder,
		Model:       model,
		Models:      cfg.Models(),
		Interpreter: interp,
		Archiver:    arch,
		Latest:      a.Latest,
		Observer:    logPhase,
		Timeout:     cfg.AnalysisTimeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("New: %w", err)
	}

	if cfg.NotionEnabled() {
		a.Notion = notionexport.NewPublisher(notionexport.NewNotionClient(cfg.NotionToken), cfg.NotionDBID)
	}

	return a, nil
}

// OpenRepository connects to the store selected by cfg.StoreDriver. SQLite
// databases are migrated on open; other stores are migrated by cmd/migrate.
func OpenRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (pipeline.Repository, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverBigQuery:
		repo, err := infraBQ.NewBigQueryInsightsRepository(ctx, cfg.BQProject, cfg.BQDataset)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, repo, nil

	case config.DriverPostgres, config.DriverSQLite:
		store, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("OpenRepository: %w", err)
		}
		if cfg.StoreDriver == config.DriverSQLite {
			n, err := store.Migrate(logger.WithContext(ctx, log), "startup")
			if err != nil {
				store.Close()
				return nil, nil, fmt.Errorf("OpenRepository: migrate: %w", err)
			}
			log.Debug().Int("applied", n).Msg("SQLite store migrated")
		}
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("OpenRepository: unknown store driver %q", cfg.StoreDriver)
	}
}

func promptsAndInterpreter(format string) (*prompts.Builder, interpreter.Interpreter, error) {
	keyword := interpreter.NewKeywordInterpreter()
	if format != config.FormatJSON {
		b, err := prompts.New()
		return b, keyword, err
	}
	b, err := prompts.New(prompts.WithJSONOutput())
	return b, interpreter.NewJSONInterpreter(keyword), err
}

func logPhase(ctx context.Context, state *pipeline.PipelineState, phase pipeline.Phase) {
	log := logger.FromContext(ctx)
	log.Debug().Str("state", string(phase)).Msg("Analysis state changed")
}

// Close releases every opened component, archive first so pending results
// are flushed while the store is still open.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
