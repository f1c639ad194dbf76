package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/app"
	"github.com/dvloznov/finance-insights/internal/archive"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/jobs"
	"github.com/dvloznov/finance-insights/internal/jobs/redisqueue"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/dvloznov/finance-insights/internal/notionexport"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// period selects whose transactions are analysed.
type period struct {
	User  string     `required:"" help:"User whose transactions are analysed."`
	Start civil.Date `required:"" help:"First day of the period (YYYY-MM-DD)."`
	End   civil.Date `required:"" help:"Last day of the period (YYYY-MM-DD)."`
}

type analyzeCmd struct {
	Period period `embed:""`

	Kind    string   `arg:"" enum:"patterns,trends,recommendations" help:"Analysis to run: patterns, trends or recommendations."`
	Focus   []string `help:"Focus areas for pattern analysis."`
	Compare bool     `help:"Compare trends with the previous period of the same length."`
	Goals   []string `help:"Goals for recommendations."`
}

type streamCmd struct {
	Period period `embed:""`

	Label string `help:"Name of the analysis shown to the model." default:"Analyse libre"`
}

type publishCmd struct {
	From   string `default:"analysis_runs.jsonl" type:"path" help:"JSON lines archive written with ARCHIVE_URI=jsonfile:..."`
	DryRun bool   `help:"Log what would be published without writing to Notion."`
}

type jobsCmd struct {
	User   string `help:"Only list jobs of this user."`
	Status string `help:"Only list jobs in this status (pending, running, retrying, completed, failed)."`
	Limit  int    `default:"20" help:"Maximum number of jobs listed."`
	Prefix string `default:"insights" help:"Redis key prefix shared with the API and worker."`
}

// setup loads configuration and the logger shared by every command.
func setup(g *globals) (*config.Config, zerolog.Logger, error) {
	if g.Env != "" {
		if err := godotenv.Load(g.Env); err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("load %s: %w", g.Env, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.NewWithOptions(cfg.LoggerOptions()), nil
}

func openApp(g *globals) (*app.App, context.Context, error) {
	cfg, log, err := setup(g)
	if err != nil {
		return nil, nil, err
	}
	ctx := logger.WithContext(context.Background(), log)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, ctx, nil
}

func (c *analyzeCmd) request() (domain.AnalysisRequest, error) {
	kind, err := domain.ParseKind(c.Kind)
	if err != nil {
		return domain.AnalysisRequest{}, err
	}
	return domain.AnalysisRequest{
		UserID:     c.Period.User,
		StartDate:  c.Period.Start,
		EndDate:    c.Period.End,
		Kind:       kind,
		FocusAreas: c.Focus,
		Compare:    c.Compare,
		Goals:      c.Goals,
	}, nil
}

func (c *analyzeCmd) Run(g *globals) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	a, ctx, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Analyzer.Run(ctx, req)
	if result != nil {
		if werr := printJSON(os.Stdout, result); werr != nil {
			return werr
		}
	}
	return err
}

func (c *streamCmd) request() domain.AnalysisRequest {
	return domain.AnalysisRequest{
		UserID:    c.Period.User,
		StartDate: c.Period.Start,
		EndDate:   c.Period.End,
		Kind:      domain.KindStreaming,
		Label:     c.Label,
	}
}

func (c *streamCmd) Run(g *globals) error {
	a, ctx, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Analyzer.StreamAnalysis(ctx, c.request(), func(chunk string) error {
		_, werr := io.WriteString(os.Stdout, chunk)
		return werr
	})
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return err
	}
	if !result.Success {
		fmt.Fprintln(os.Stderr, result.Message)
	}
	return nil
}

func (c *publishCmd) Run(g *globals) error {
	a, ctx, err := openApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Notion == nil {
		return fmt.Errorf("publish: NOTION_TOKEN and NOTION_DB_ID must be set")
	}

	results, err := readArchive(c.From)
	if err != nil {
		return err
	}

	stats, err := a.Notion.Publish(ctx, results, c.DryRun)
	if err != nil {
		return err
	}
	printStats(os.Stdout, stats, c.DryRun)
	return nil
}

// readArchive returns the successful results of a JSON lines archive.
func readArchive(path string) ([]*domain.AnalysisResult, error) {
	jf, err := archive.NewJSONFile(path)
	if err != nil {
		return nil, err
	}
	all, err := jf.ReadAll()
	if err != nil {
		return nil, err
	}
	var ok []*domain.AnalysisResult
	for _, r := range all {
		if r.Success {
			ok = append(ok, r)
		}
	}
	return ok, nil
}

func printStats(w io.Writer, stats notionexport.PublishStats, dryRun bool) {
	verb := "Published"
	if dryRun {
		verb = "Would publish"
	}
	fmt.Fprintf(w, "%s: %d created, %d updated, %d failed\n", verb, stats.Created, stats.Updated, stats.Failed)
}

func (c *jobsCmd) Run(g *globals) error {
	cfg, log, err := setup(g)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(context.Background(), log), 30*time.Second)
	defer cancel()

	client, err := redisqueue.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	list, err := redisqueue.NewStore(client, c.Prefix).ListJobs(ctx, c.filter())
	if err != nil {
		return err
	}
	printJobs(os.Stdout, list)
	return nil
}

func (c *jobsCmd) filter() jobs.JobFilter {
	return jobs.JobFilter{UserID: c.User, Status: jobs.JobStatus(c.Status), Limit: c.Limit}
}

func printJobs(w io.Writer, list []*jobs.AnalysisJob) {
	fmt.Fprintf(w, "=== Jobs (%d) ===\n", len(list))
	for _, j := range list {
		fmt.Fprintf(w, "\n%s  %-9s  %s\n", j.JobID, j.Status, j.Request.Kind)
		fmt.Fprintf(w, "   User:    %s\n", j.Request.UserID)
		fmt.Fprintf(w, "   Period:  %s .. %s\n", j.Request.StartDate, j.Request.EndDate)
		fmt.Fprintf(w, "   Created: %s\n", j.CreatedAt.Format(time.RFC3339))
		if j.RetryCount > 0 {
			fmt.Fprintf(w, "   Retries: %d/%d\n", j.RetryCount, j.MaxRetries)
		}
		if j.Error != "" {
			fmt.Fprintf(w, "   Error:   %s\n", j.Error)
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
