// Package pipeline runs AI analyses over a user's transactions: fetch,
// aggregate, prompt, call the model and interpret the response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/interpreter"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoSink is returned by StreamAnalysis when called without a sink.
var ErrNoSink = errors.New("streaming analysis requires a sink")

// Deps are the collaborators of an Analyzer.
type Deps struct {
	Repo    Repository
	Prompts PromptBuilder
	// Model may be nil; every analysis then fails as not configured.
	Model       llm.Client
	Models      llm.ModelSet
	Interpreter interpreter.Interpreter

	// Optional.
	Archiver ResultArchiver
	Latest   *LatestResults
	Observer Observer
	Logger   *zerolog.Logger
	Timeout  time.Duration
	Now      func() time.Time
}

// Analyzer is the entry point for all analysis kinds.
type Analyzer struct {
	deps Deps
}

// NewAnalyzer validates deps and fills defaults.
func NewAnalyzer(deps Deps) (*Analyzer, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("NewAnalyzer: repository is required")
	}
	if deps.Prompts == nil {
		return nil, fmt.Errorf("NewAnalyzer: prompt builder is required")
	}
	if deps.Interpreter == nil {
		deps.Interpreter = interpreter.NewKeywordInterpreter()
	}
	if deps.Models.Fast == "" || deps.Models.Quality == "" {
		deps.Models = llm.DefaultModels(llm.ProviderGemini)
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Analyzer{deps: deps}, nil
}

// Latest returns the tracker, if any.
func (a *Analyzer) Latest() *LatestResults {
	return a.deps.Latest
}

// AnalyzePatterns describes spending habits in the requested period.
func (a *Analyzer) AnalyzePatterns(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	req.Kind = domain.KindPatterns
	return a.run(ctx, req, nil)
}

// IdentifyTrends compares the period with the one before it when req.Compare is set.
func (a *Analyzer) IdentifyTrends(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	req.Kind = domain.KindTrends
	return a.run(ctx, req, nil)
}

// GenerateRecommendations proposes actions using budgets, recent trends and goals.
func (a *Analyzer) GenerateRecommendations(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	req.Kind = domain.KindRecommendations
	return a.run(ctx, req, nil)
}

// StreamAnalysis forwards the model response to sink chunk by chunk. The
// returned result carries no insights.
func (a *Analyzer) StreamAnalysis(ctx context.Context, req domain.AnalysisRequest, sink llm.ChunkSink) (*domain.AnalysisResult, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	req.Kind = domain.KindStreaming
	return a.run(ctx, req, sink)
}

// Run dispatches on req.Kind. Streaming requests must go through StreamAnalysis.
func (a *Analyzer) Run(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	switch req.Kind {
	case domain.KindPatterns:
		return a.AnalyzePatterns(ctx, req)
	case domain.KindTrends:
		return a.IdentifyTrends(ctx, req)
	case domain.KindRecommendations:
		return a.GenerateRecommendations(ctx, req)
	case domain.KindStreaming:
		return nil, ErrNoSink
	default:
		return nil, fmt.Errorf("Run: %w: unknown kind %q", domain.ErrInvalidRequest, req.Kind)
	}
}

func (a *Analyzer) baseLogger(ctx context.Context) zerolog.Logger {
	if a.deps.Logger != nil {
		return *a.deps.Logger
	}
	return logger.FromContext(ctx)
}

func (a *Analyzer) run(ctx context.Context, req domain.AnalysisRequest, sink llm.ChunkSink) (*domain.AnalysisResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithFields(a.baseLogger(ctx), map[string]interface{}{
		"user_id": req.UserID,
		"kind":    string(req.Kind),
		"start":   req.StartDate.String(),
		"end":     req.EndDate.String(),
	})

	var gen uint64
	if a.deps.Latest != nil {
		gen = a.deps.Latest.Begin(req.UserID)
	}

	result := &domain.AnalysisResult{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Kind:       req.Kind,
		Model:      a.deps.Models.For(req.Kind),
		AnalyzedAt: a.deps.Now().UTC().Format(time.RFC3339),
	}

	if a.deps.Model == nil {
		f := &AnalysisFailure{Class: domain.ErrorClassConfiguration, Message: NotConfiguredMessage, Err: llm.ErrNotConfigured}
		log.Warn().Msg("analysis requested without a configured model client")
		return a.fail(req, gen, result, f)
	}

	ctx, cancel := context.WithTimeout(ctx, a.deps.Timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{
		Request: req,
		Model:   result.Model,
		Sink:    sink,
	}
	p := NewAnalysisPipeline(req.Kind, a.deps.Repo, a.deps.Prompts, a.deps.Model, a.deps.Interpreter)
	if a.deps.Observer != nil {
		p.Observe(a.deps.Observer)
	}

	start := a.deps.Now()
	if err := p.Execute(ctx, state); err != nil {
		var f *AnalysisFailure
		if errors.As(err, &f) {
			a.logFailure(log, f)
			return a.fail(req, gen, result, f)
		}
		log.Error().Err(err).Msg("analysis aborted")
		return nil, err
	}

	result.TransactionCount = len(state.Transactions)
	if state.NoData {
		result.Reason = domain.ReasonNoData
		result.Message = domain.NoDataMessage
		log.Info().Msg("no transactions in period")
		a.commit(req, gen, result)
		return result, nil
	}

	result.Success = true
	result.RawText = state.RawText
	if state.Insights != nil {
		state.Insights.Apply(result)
	}

	log.Info().
		Int("transactions", result.TransactionCount).
		Str("model", result.Model).
		Dur("elapsed", a.deps.Now().Sub(start)).
		Msg("analysis completed")

	a.archive(ctx, log, result)
	a.commit(req, gen, result)
	return result, nil
}

func (a *Analyzer) fail(req domain.AnalysisRequest, gen uint64, result *domain.AnalysisResult, f *AnalysisFailure) (*domain.AnalysisResult, error) {
	result.Success = false
	result.Message = f.Message
	result.Error = f.Detail()
	a.commit(req, gen, result)
	return result, f
}

// logFailure keeps expected provider failures out of error-level logs.
func (a *Analyzer) logFailure(log zerolog.Logger, f *AnalysisFailure) {
	switch f.Class {
	case domain.ErrorClassInternal:
		log.Debug().Err(f.Err).Msg("model provider unavailable")
	case domain.ErrorClassConfiguration:
		log.Warn().Err(f.Err).Msg("model client not configured")
	default:
		log.Error().Err(f.Err).Msg("analysis failed")
	}
}

func (a *Analyzer) archive(ctx context.Context, log zerolog.Logger, result *domain.AnalysisResult) {
	if a.deps.Archiver == nil {
		return
	}
	if err := a.deps.Archiver.Save(ctx, result); err != nil {
		log.Warn().Err(err).Str("result_id", result.ID.String()).Msg("failed to archive analysis result")
	}
}

func (a *Analyzer) commit(req domain.AnalysisRequest, gen uint64, result *domain.AnalysisResult) {
	if a.deps.Latest == nil {
		return
	}
	a.deps.Latest.Commit(req.UserID, gen, result)
}
