package app

import (
	"context"
	"errors"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/pipeline"
)

// Runner runs one analysis.
type Runner interface {
	Run(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
}

// NewJobHandler runs queued analyses. Transient provider failures and
// store errors are returned so the queue retries them; other classified
// failures complete the job with the failed result attached. Successful
// results are handed to every publisher; publish errors are only logged.
func NewJobHandler(runner Runner, publishers ...pipeline.ResultArchiver) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.AnalysisJob) error {
		result, err := runner.Run(ctx, job.Request)

		var failure *pipeline.AnalysisFailure
		switch {
		case errors.As(err, &failure):
			job.Result = result
			if failure.Class == domain.ErrorClassInternal {
				return err
			}
			return nil
		case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, pipeline.ErrNoSink):
			return jobs.Permanent(err)
		case err != nil:
			return err
		}

		job.Result = result
		if !result.Success {
			return nil
		}

		log := logger.FromContext(ctx)
		for _, p := range publishers {
			if err := p.Save(ctx, result); err != nil {
				log.Warn().Err(err).Str("analysis_id", result.ID.String()).Msg("Failed to publish analysis result")
			}
		}
		return nil
	}
}

// JobHandler is NewJobHandler for the app's analyzer, publishing to Notion
// when it is configured.
func (a *App) JobHandler() jobs.JobHandler {
	var publishers []pipeline.ResultArchiver
	if a.Notion != nil {
		publishers = append(publishers, a.Notion)
	}
	return NewJobHandler(a.Analyzer, publishers...)
}
