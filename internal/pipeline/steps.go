package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/interpreter"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/summary"
)

// Phase is the position of an analysis in its lifecycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseFetching      Phase = "fetching"
	PhasePrompting     Phase = "prompting"
	PhaseAwaitingModel Phase = "awaiting_model"
	PhaseStreaming     Phase = "streaming"
	PhaseInterpreting  Phase = "interpreting"
	PhaseSucceeded     Phase = "succeeded"
	PhaseCompleted     Phase = "completed"
	PhaseNoData        Phase = "no_data"
	PhaseFailed        Phase = "failed"
)

// Observer is notified on every phase transition.
type Observer func(ctx context.Context, state *PipelineState, phase Phase)

// PipelineStep represents a single step of an analysis.
type PipelineStep interface {
	Phase() Phase
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Request domain.AnalysisRequest
	Model   string
	Sink    llm.ChunkSink

	Transactions []domain.Transaction
	Previous     []domain.Transaction
	Budgets      []domain.Budget
	Trends       []domain.TrendDescriptor

	Summary    *summary.Summary
	Comparison summary.TrendComparison

	Prompt   string
	RawText  string
	Insights *interpreter.Insights

	// NoData stops the pipeline without error when the period is empty.
	NoData bool
	Phase  Phase
}

// FetchTransactionsStep loads the transactions of the requested period.
type FetchTransactionsStep struct {
	Repo TransactionRepository
}

func (s *FetchTransactionsStep) Phase() Phase { return PhaseFetching }

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	req := state.Request
	txs, err := s.Repo.ListTransactions(ctx, req.UserID, req.StartDate, req.EndDate)
	if err != nil {
		return fmt.Errorf("FetchTransactionsStep: %w", err)
	}
	state.Transactions = txs
	state.NoData = len(txs) == 0
	return nil
}

// FetchPreviousPeriodStep loads the equal-length period that precedes the
// request, for trend comparison.
type FetchPreviousPeriodStep struct {
	Repo TransactionRepository
}

func (s *FetchPreviousPeriodStep) Phase() Phase { return PhaseFetching }

func (s *FetchPreviousPeriodStep) Execute(ctx context.Context, state *PipelineState) error {
	req := state.Request
	if !req.Compare {
		return nil
	}
	start, end := summary.PreviousPeriod(req.StartDate, req.EndDate)
	txs, err := s.Repo.ListTransactions(ctx, req.UserID, start, end)
	if err != nil {
		return fmt.Errorf("FetchPreviousPeriodStep: %w", err)
	}
	state.Previous = txs
	return nil
}

// FetchPlanningContextStep loads active budgets and recent trends.
type FetchPlanningContextStep struct {
	Budgets BudgetRepository
	Trends  TrendRepository
}

func (s *FetchPlanningContextStep) Phase() Phase { return PhaseFetching }

func (s *FetchPlanningContextStep) Execute(ctx context.Context, state *PipelineState) error {
	userID := state.Request.UserID

	budgets, err := s.Budgets.ListActiveBudgets(ctx, userID)
	if err != nil {
		return fmt.Errorf("FetchPlanningContextStep: budgets: %w", err)
	}
	trends, err := s.Trends.ListRecentTrends(ctx, userID, RecentTrendLimit)
	if err != nil {
		return fmt.Errorf("FetchPlanningContextStep: trends: %w", err)
	}
	state.Budgets = budgets
	state.Trends = trends
	return nil
}

// SummarizeStep aggregates the fetched transactions.
type SummarizeStep struct{}

func (s *SummarizeStep) Phase() Phase { return PhasePrompting }

func (s *SummarizeStep) Execute(ctx context.Context, state *PipelineState) error {
	current, err := summary.Build(state.Transactions)
	if err != nil {
		return fmt.Errorf("SummarizeStep: current period: %w", err)
	}
	state.Summary = current

	var previous *summary.Summary
	if len(state.Previous) > 0 {
		if previous, err = summary.Build(state.Previous); err != nil {
			return fmt.Errorf("SummarizeStep: previous period: %w", err)
		}
	}
	state.Comparison = summary.Compare(current, previous)
	return nil
}

// BuildPromptStep renders the prompt for the request kind.
type BuildPromptStep struct {
	Prompts PromptBuilder
}

func (s *BuildPromptStep) Phase() Phase { return PhasePrompting }

func (s *BuildPromptStep) Execute(ctx context.Context, state *PipelineState) error {
	req := state.Request

	var (
		prompt string
		err    error
	)
	switch req.Kind {
	case domain.KindPatterns:
		prompt, err = s.Prompts.Patterns(state.Summary, req.FocusAreas)
	case domain.KindTrends:
		prompt, err = s.Prompts.Trends(state.Comparison)
	case domain.KindRecommendations:
		prompt, err = s.Prompts.Recommendations(state.Summary, state.Budgets, state.Trends, req.Goals)
	case domain.KindStreaming:
		prompt, err = s.Prompts.Streaming(state.Summary, req.Label)
	default:
		return fmt.Errorf("BuildPromptStep: unsupported kind %q", req.Kind)
	}
	if err != nil {
		return fmt.Errorf("BuildPromptStep: %w", err)
	}
	state.Prompt = prompt
	return nil
}

// CallModelStep sends the prompt and waits for the full response.
type CallModelStep struct {
	Client llm.Client
}

func (s *CallModelStep) Phase() Phase { return PhaseAwaitingModel }

func (s *CallModelStep) Execute(ctx context.Context, state *PipelineState) error {
	text, err := s.Client.Generate(ctx, state.Model, state.Prompt)
	if err != nil {
		return newFailure(err)
	}
	state.RawText = text
	return nil
}

// StreamModelStep forwards response chunks to the request sink in arrival order.
type StreamModelStep struct {
	Client llm.Client
}

func (s *StreamModelStep) Phase() Phase { return PhaseStreaming }

func (s *StreamModelStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Sink == nil {
		return fmt.Errorf("StreamModelStep: no sink")
	}
	chunks := 0
	sink := func(chunk string) error {
		chunks++
		return state.Sink(chunk)
	}
	if err := s.Client.Stream(ctx, state.Model, state.Prompt, sink); err != nil {
		return newFailure(err)
	}
	log := logger.FromContext(ctx)
	log.Debug().Int("chunks", chunks).Msg("stream finished")
	return nil
}

// InterpretStep converts the raw response into bucketed insights.
type InterpretStep struct {
	Interpreter interpreter.Interpreter
}

func (s *InterpretStep) Phase() Phase { return PhaseInterpreting }

func (s *InterpretStep) Execute(ctx context.Context, state *PipelineState) error {
	insights, err := s.Interpreter.Interpret(state.Request.Kind, state.RawText)
	if err != nil {
		return &AnalysisFailure{Class: domain.ErrorClassAnalysis, Message: err.Error(), Err: err}
	}
	state.Insights = insights
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps    []PipelineStep
	observer Observer
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Observe registers fn for phase transitions and returns p.
func (p *Pipeline) Observe(fn Observer) *Pipeline {
	p.observer = fn
	return p
}

// Execute runs all steps sequentially. It stops early without error when a
// step reports that the period has no data.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	p.transition(ctx, state, PhaseIdle)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.transition(ctx, state, PhaseFailed)
			return fmt.Errorf("pipeline step %d cancelled: %w", i+1, err)
		}
		if state.Phase != step.Phase() {
			p.transition(ctx, state, step.Phase())
		}
		if err := step.Execute(ctx, state); err != nil {
			p.transition(ctx, state, PhaseFailed)
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.NoData {
			p.transition(ctx, state, PhaseNoData)
			return nil
		}
	}
	if state.Request.Kind == domain.KindStreaming {
		p.transition(ctx, state, PhaseCompleted)
	} else {
		p.transition(ctx, state, PhaseSucceeded)
	}
	return nil
}

func (p *Pipeline) transition(ctx context.Context, state *PipelineState, phase Phase) {
	state.Phase = phase
	if p.observer != nil {
		p.observer(ctx, state, phase)
	}
}

// NewAnalysisPipeline creates the step sequence for kind.
func NewAnalysisPipeline(kind domain.AnalysisKind, repo Repository, prompts PromptBuilder, client llm.Client, interp interpreter.Interpreter) *Pipeline {
	steps := []PipelineStep{&FetchTransactionsStep{Repo: repo}}

	switch kind {
	case domain.KindTrends:
		steps = append(steps, &FetchPreviousPeriodStep{Repo: repo})
	case domain.KindRecommendations:
		steps = append(steps, &FetchPlanningContextStep{Budgets: repo, Trends: repo})
	}

	steps = append(steps, &SummarizeStep{}, &BuildPromptStep{Prompts: prompts})

	if kind == domain.KindStreaming {
		steps = append(steps, &StreamModelStep{Client: client})
	} else {
		steps = append(steps, &CallModelStep{Client: client}, &InterpretStep{Interpreter: interp})
	}
	return NewPipeline(steps...)
}
