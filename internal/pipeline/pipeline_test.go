package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/prompts"
	"github.com/shopspring/decimal"
)

func marchRequest() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		UserID:    "user-1",
		StartDate: civil.Date{Year: 2024, Month: 3, Day: 1},
		EndDate:   civil.Date{Year: 2024, Month: 3, Day: 31},
	}
}

func scenarioTransactions() []domain.Transaction {
	day := func(d int) civil.Date { return civil.Date{Year: 2024, Month: 3, Day: d} }
	return []domain.Transaction{
		{ID: "1", Date: day(1), Amount: decimal.NewFromInt(1000), Type: domain.TransactionTypeIncome, Category: "salaire"},
		{ID: "2", Date: day(5), Amount: decimal.NewFromInt(400), Type: domain.TransactionTypeExpense, Category: "loyer"},
		{ID: "3", Date: day(9), Amount: decimal.NewFromInt(100), Type: domain.TransactionTypeExpense, Category: "repas"},
	}
}

func repoWith(txs []domain.Transaction) *mockRepository {
	return &mockRepository{
		ListTransactionsFunc: func(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
			return txs, nil
		},
	}
}

func newTestAnalyzer(t *testing.T, deps Deps) *Analyzer {
	t.Helper()
	if deps.Prompts == nil {
		b, err := prompts.New()
		if err != nil {
			t.Fatalf("prompts.New failed: %v", err)
		}
		deps.Prompts = b
	}
	if deps.Logger == nil {
		l := logger.NewWithWriter(io.Discard)
		deps.Logger = &l
	}
	a, err := NewAnalyzer(deps)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return a
}

func TestAnalyzePatterns_EndToEnd(t *testing.T) {
	var gotPrompt, gotModel string
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			gotPrompt, gotModel = prompt, model
			return "**Points clés**\n- Dépenses en hausse\n- ok\n- Revenus stables malgré tout", nil
		},
	}

	var phases []Phase
	a := newTestAnalyzer(t, Deps{
		Repo:  repoWith(scenarioTransactions()),
		Model: client,
		Observer: func(ctx context.Context, state *PipelineState, phase Phase) {
			phases = append(phases, phase)
		},
	})

	result, err := a.AnalyzePatterns(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("AnalyzePatterns failed: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TransactionCount != 3 {
		t.Errorf("transaction count = %d, want 3", result.TransactionCount)
	}
	if gotModel != llm.DefaultModels(llm.ProviderGemini).Fast {
		t.Errorf("model = %q, want the fast model", gotModel)
	}
	for _, want := range []string{"loyer", "repas", "000,00"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	wantPoints := []string{"Dépenses en hausse", "Revenus stables malgré tout"}
	if result.Patterns == nil || !reflect.DeepEqual(result.Patterns.KeyPoints, wantPoints) {
		t.Errorf("key points = %+v, want %v", result.Patterns, wantPoints)
	}
	if result.Trends != nil || result.Recommendations != nil {
		t.Error("only the patterns record should be set")
	}

	wantPhases := []Phase{PhaseIdle, PhaseFetching, PhasePrompting, PhaseAwaitingModel, PhaseInterpreting, PhaseSucceeded}
	if !reflect.DeepEqual(phases, wantPhases) {
		t.Errorf("phases = %v, want %v", phases, wantPhases)
	}
}

func TestAnalyze_NoTransactions(t *testing.T) {
	called := false
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			called = true
			return "", nil
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repoWith([]domain.Transaction{}), Model: client})

	result, err := a.AnalyzePatterns(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Success {
		t.Error("expected success=false")
	}
	if result.Message != domain.NoDataMessage {
		t.Errorf("message = %q, want %q", result.Message, domain.NoDataMessage)
	}
	if result.Reason != domain.ReasonNoData {
		t.Errorf("reason = %q", result.Reason)
	}
	if result.Error != nil {
		t.Error("no-data is not an error")
	}
	if called {
		t.Error("model must not be called without transactions")
	}
}

func TestAnalyze_RateLimitIsInternal(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)

	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			return "", &llm.StatusError{StatusCode: 429, Message: "quota exceeded for project 1234"}
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repoWith(scenarioTransactions()), Model: client, Logger: &log})

	result, err := a.AnalyzePatterns(context.Background(), marchRequest())

	var f *AnalysisFailure
	if !errors.As(err, &f) {
		t.Fatalf("expected *AnalysisFailure, got %T: %v", err, err)
	}
	if f.Class != domain.ErrorClassInternal {
		t.Errorf("class = %q, want internal", f.Class)
	}
	if err.Error() != GenericFailureMessage {
		t.Errorf("message = %q, want the generic message", err.Error())
	}
	if strings.Contains(result.Message, "quota") {
		t.Error("provider text leaked to the caller")
	}
	if result.Success || result.Error == nil || result.Error.Class != domain.ErrorClassInternal {
		t.Errorf("unexpected result %+v", result)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) {
		t.Errorf("expected a debug entry, got %s", out)
	}
	if strings.Contains(out, `"level":"error"`) {
		t.Errorf("rate limits must not be logged as errors: %s", out)
	}
}

func TestAnalyze_OtherModelErrorIsAnalysis(t *testing.T) {
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			return "", errors.New("response blocked by safety filters")
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repoWith(scenarioTransactions()), Model: client})

	_, err := a.IdentifyTrends(context.Background(), marchRequest())

	var f *AnalysisFailure
	if !errors.As(err, &f) {
		t.Fatalf("expected *AnalysisFailure, got %v", err)
	}
	if f.Class != domain.ErrorClassAnalysis {
		t.Errorf("class = %q, want analysis", f.Class)
	}
	if !strings.Contains(f.Message, "safety filters") {
		t.Errorf("analysis errors keep their message, got %q", f.Message)
	}
}

func TestAnalyze_NotConfigured(t *testing.T) {
	fetched := false
	repo := &mockRepository{
		ListTransactionsFunc: func(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
			fetched = true
			return scenarioTransactions(), nil
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repo})

	result, err := a.GenerateRecommendations(context.Background(), marchRequest())

	var f *AnalysisFailure
	if !errors.As(err, &f) || f.Class != domain.ErrorClassConfiguration {
		t.Fatalf("expected configuration failure, got %v", err)
	}
	if !errors.Is(err, llm.ErrNotConfigured) {
		t.Error("failure should wrap llm.ErrNotConfigured")
	}
	if result.Message != NotConfiguredMessage {
		t.Errorf("message = %q", result.Message)
	}
	if fetched {
		t.Error("repository must not be queried without a model client")
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	a := newTestAnalyzer(t, Deps{
		Repo:    repoWith(scenarioTransactions()),
		Model:   client,
		Timeout: 20 * time.Millisecond,
	})

	_, err := a.AnalyzePatterns(context.Background(), marchRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	var f *AnalysisFailure
	if !errors.As(err, &f) || f.Class != domain.ErrorClassAnalysis {
		t.Errorf("expected analysis failure, got %v", err)
	}
}

func TestAnalyze_RepositoryErrorPropagates(t *testing.T) {
	repoErr := errors.New("bigquery unavailable")
	repo := &mockRepository{
		ListTransactionsFunc: func(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
			return nil, repoErr
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repo, Model: &mockClient{}})

	result, err := a.AnalyzePatterns(context.Background(), marchRequest())
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected repository error, got %v", err)
	}
	var f *AnalysisFailure
	if errors.As(err, &f) {
		t.Error("fetch failures are not classified model failures")
	}
	if result != nil {
		t.Error("expected nil result")
	}
}

func TestAnalyze_InvalidRequest(t *testing.T) {
	a := newTestAnalyzer(t, Deps{Repo: &mockRepository{}, Model: &mockClient{}})

	req := marchRequest()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate

	if _, err := a.AnalyzePatterns(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestIdentifyTrends_FetchesPreviousPeriod(t *testing.T) {
	type call struct{ start, end civil.Date }
	var calls []call
	repo := &mockRepository{
		ListTransactionsFunc: func(ctx context.Context, userID string, start, end civil.Date) ([]domain.Transaction, error) {
			calls = append(calls, call{start, end})
			return scenarioTransactions(), nil
		},
	}
	var gotPrompt string
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			gotPrompt = prompt
			return "## Tendances principales\n- Les revenus progressent nettement", nil
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repo, Model: client})

	req := marchRequest()
	req.Compare = true
	result, err := a.IdentifyTrends(context.Background(), req)
	if err != nil {
		t.Fatalf("IdentifyTrends failed: %v", err)
	}

	want := []call{
		{civil.Date{Year: 2024, Month: 3, Day: 1}, civil.Date{Year: 2024, Month: 3, Day: 31}},
		{civil.Date{Year: 2024, Month: 1, Day: 30}, civil.Date{Year: 2024, Month: 2, Day: 29}},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if strings.Contains(gotPrompt, "non disponible") {
		t.Error("deltas should be available when the previous period has data")
	}
	if result.Trends == nil || len(result.Trends.MainTrends) != 1 {
		t.Errorf("unexpected trends %+v", result.Trends)
	}
}

func TestGenerateRecommendations_UsesPlanningContext(t *testing.T) {
	repo := repoWith(scenarioTransactions())
	gotLimit := 0
	repo.ListRecentTrendsFunc = func(ctx context.Context, userID string, limit int) ([]domain.TrendDescriptor, error) {
		gotLimit = limit
		return []domain.TrendDescriptor{{ID: "t1", Label: "Hausse des loyers", Direction: domain.TrendUp}}, nil
	}
	repo.ListActiveBudgetsFunc = func(ctx context.Context, userID string) ([]domain.Budget, error) {
		return []domain.Budget{{ID: "b1", Name: "Logement", Category: "loyer", PlannedAmount: decimal.NewFromInt(450), Active: true}}, nil
	}

	var gotModel, gotPrompt string
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			gotModel, gotPrompt = model, prompt
			return "**Actions prioritaires**\n- Renégocier le bail avant l'été", nil
		},
	}
	models := llm.ModelSet{Fast: "fast-model", Quality: "quality-model"}
	a := newTestAnalyzer(t, Deps{Repo: repo, Model: client, Models: models})

	req := marchRequest()
	req.Goals = []string{"épargner 200 € par mois"}
	result, err := a.GenerateRecommendations(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateRecommendations failed: %v", err)
	}

	if gotModel != "quality-model" {
		t.Errorf("model = %q, want quality-model", gotModel)
	}
	if gotLimit != RecentTrendLimit {
		t.Errorf("trend limit = %d, want %d", gotLimit, RecentTrendLimit)
	}
	for _, want := range []string{"Logement", "Hausse des loyers", "épargner 200 € par mois"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if result.Model != "quality-model" {
		t.Errorf("result model = %q", result.Model)
	}
	if result.Recommendations == nil || len(result.Recommendations.PriorityActions) != 1 {
		t.Errorf("unexpected recommendations %+v", result.Recommendations)
	}
}

func TestStreamAnalysis_ForwardsChunksInOrder(t *testing.T) {
	chunks := []string{"Votre ", "situation ", "est saine", "."}
	client := &mockClient{
		StreamFunc: func(ctx context.Context, model, prompt string, sink llm.ChunkSink) error {
			for _, c := range chunks {
				if err := sink(c); err != nil {
					return err
				}
			}
			return nil
		},
	}
	var phases []Phase
	a := newTestAnalyzer(t, Deps{
		Repo:  repoWith(scenarioTransactions()),
		Model: client,
		Observer: func(ctx context.Context, state *PipelineState, phase Phase) {
			phases = append(phases, phase)
		},
	})

	var got []string
	result, err := a.StreamAnalysis(context.Background(), marchRequest(), func(chunk string) error {
		got = append(got, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamAnalysis failed: %v", err)
	}

	if !reflect.DeepEqual(got, chunks) {
		t.Errorf("chunks = %q, want %q", got, chunks)
	}
	if strings.Join(got, "") != "Votre situation est saine." {
		t.Errorf("concatenation = %q", strings.Join(got, ""))
	}
	if !result.Success || result.Patterns != nil {
		t.Errorf("unexpected result %+v", result)
	}
	if phases[len(phases)-1] != PhaseCompleted {
		t.Errorf("final phase = %s, want completed", phases[len(phases)-1])
	}
}

func TestStreamAnalysis_SinkErrorStops(t *testing.T) {
	sinkErr := errors.New("client disconnected")
	sent := 0
	client := &mockClient{
		StreamFunc: func(ctx context.Context, model, prompt string, sink llm.ChunkSink) error {
			for _, c := range []string{"a", "b", "c"} {
				if err := sink(c); err != nil {
					return err
				}
				sent++
			}
			return nil
		},
	}
	a := newTestAnalyzer(t, Deps{Repo: repoWith(scenarioTransactions()), Model: client})

	_, err := a.StreamAnalysis(context.Background(), marchRequest(), func(chunk string) error {
		return sinkErr
	})
	if !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error, got %v", err)
	}
	if sent != 0 {
		t.Errorf("stream continued after sink error: %d chunks", sent)
	}
}

func TestStreamAnalysis_RequiresSink(t *testing.T) {
	a := newTestAnalyzer(t, Deps{Repo: &mockRepository{}, Model: &mockClient{}})
	if _, err := a.StreamAnalysis(context.Background(), marchRequest(), nil); !errors.Is(err, ErrNoSink) {
		t.Errorf("expected ErrNoSink, got %v", err)
	}
}

func TestAnalyze_ArchivesAndTracksLatest(t *testing.T) {
	var archived *domain.AnalysisResult
	archiver := &mockArchiver{
		SaveFunc: func(ctx context.Context, result *domain.AnalysisResult) error {
			archived = result
			return errors.New("archive offline")
		},
	}
	latest := NewLatestResults()
	client := &mockClient{
		GenerateFunc: func(ctx context.Context, model, prompt string) (string, error) {
			return "**Risques**\n- Dépendance à un seul client", nil
		},
	}
	a := newTestAnalyzer(t, Deps{
		Repo:     repoWith(scenarioTransactions()),
		Model:    client,
		Archiver: archiver,
		Latest:   latest,
	})

	result, err := a.AnalyzePatterns(context.Background(), marchRequest())
	if err != nil {
		t.Fatalf("archive errors must not fail the analysis: %v", err)
	}
	if archived != result {
		t.Error("result was not archived")
	}
	if got, ok := latest.Latest("user-1"); !ok || got != result {
		t.Error("latest result not recorded")
	}
}

func TestLatestResults_DiscardsStale(t *testing.T) {
	l := NewLatestResults()

	first := l.Begin("u")
	second := l.Begin("u")
	other := l.Begin("v")

	newer := &domain.AnalysisResult{Kind: domain.KindTrends}
	older := &domain.AnalysisResult{Kind: domain.KindPatterns}

	if !l.Commit("u", second, newer) {
		t.Error("current generation should commit")
	}
	if l.Commit("u", first, older) {
		t.Error("stale generation should be discarded")
	}
	if got, _ := l.Latest("u"); got != newer {
		t.Errorf("latest = %+v, want the newer result", got)
	}
	if _, ok := l.Latest("v"); ok {
		t.Error("nothing committed for v yet")
	}
	if !l.Commit("v", other, older) {
		t.Error("generations are per user")
	}
}

func TestLatestResults_EvictsLeastRecentUser(t *testing.T) {
	l := NewLatestResultsWithCapacity(2)

	inFlight := l.Begin("a")
	l.Begin("b")
	l.Begin("c")

	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
	if l.Commit("a", inFlight, &domain.AnalysisResult{UserID: "a"}) {
		t.Error("an evicted user's in-flight result should be discarded")
	}

	// a returns: the old generation stays stale
	current := l.Begin("a")
	if l.Commit("a", inFlight, &domain.AnalysisResult{UserID: "a"}) {
		t.Error("generations are never reused after eviction")
	}
	if !l.Commit("a", current, &domain.AnalysisResult{UserID: "a"}) {
		t.Error("current generation should commit")
	}
}

func TestLatestResults_ReadKeepsUserRecent(t *testing.T) {
	l := NewLatestResultsWithCapacity(2)

	x := l.Begin("x")
	l.Commit("x", x, &domain.AnalysisResult{UserID: "x"})
	l.Begin("y")

	if _, ok := l.Latest("x"); !ok {
		t.Fatal("x should be tracked")
	}
	l.Begin("z")

	if _, ok := l.Latest("x"); !ok {
		t.Error("recently read user should survive eviction")
	}
	if l.Commit("y", 2, &domain.AnalysisResult{UserID: "y"}) {
		t.Error("y should have been evicted")
	}
}

func TestRun_Dispatch(t *testing.T) {
	a := newTestAnalyzer(t, Deps{Repo: repoWith([]domain.Transaction{}), Model: &mockClient{}})

	req := marchRequest()
	req.Kind = domain.KindTrends
	result, err := a.Run(context.Background(), req)
	if err != nil || result.Kind != domain.KindTrends {
		t.Errorf("Run(trends) = %+v, %v", result, err)
	}

	req.Kind = domain.KindStreaming
	if _, err := a.Run(context.Background(), req); !errors.Is(err, ErrNoSink) {
		t.Errorf("Run(streaming) error = %v, want ErrNoSink", err)
	}

	req.Kind = "forecast"
	if _, err := a.Run(context.Background(), req); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Run(unknown) error = %v", err)
	}
}
