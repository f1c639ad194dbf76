// Package notionexport publishes analysis results as pages of a Notion
// database so they can be browsed next to the rest of the finance workspace.
package notionexport

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/logger"
	"github.com/jomei/notionapi"
)

// Publisher writes analysis results to one Notion database.
type Publisher struct {
	client     NotionService
	databaseID string
}

// NewPublisher returns a publisher for databaseID.
func NewPublisher(client NotionService, databaseID string) *Publisher {
	return &Publisher{client: client, databaseID: databaseID}
}

// Save creates one page for result. It lets a Publisher stand in for an
// archive backend.
func (p *Publisher) Save(ctx context.Context, result *domain.AnalysisResult) error {
	if _, err := p.client.CreatePage(ctx, p.databaseID, ResultToNotionProperties(result)); err != nil {
		return fmt.Errorf("Publisher.Save: %w", err)
	}
	return nil
}

// Close is a no-op; the Notion client holds no resources.
func (p *Publisher) Close() error { return nil }

// PublishStats counts what a Publish call did.
type PublishStats struct {
	Created int
	Updated int
	Failed  int
}

// Publish upserts results keyed by their analysis ID. Pages that already
// carry the ID are updated in place; the rest are created. Per-result
// failures are logged and counted, not returned.
func (p *Publisher) Publish(ctx context.Context, results []*domain.AnalysisResult, dryRun bool) (PublishStats, error) {
	log := logger.FromContext(ctx)
	var stats PublishStats

	pages, err := queryAllPages(ctx, p.client, p.databaseID)
	if err != nil {
		return stats, fmt.Errorf("Publish: query existing pages: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := extractAnalysisID(page); id != "" {
			existing[id] = string(page.ID)
		}
	}

	log.Info().
		Int("results", len(results)).
		Int("existing_pages", len(existing)).
		Bool("dry_run", dryRun).
		Msg("Publishing analysis results to Notion")

	for _, res := range results {
		id := res.ID.String()
		props := ResultToNotionProperties(res)
		pageID, found := existing[id]

		if dryRun {
			if found {
				log.Info().Str("analysis_id", id).Str("page_id", pageID).Msg("[DRY RUN] Would update Notion page")
				stats.Updated++
			} else {
				log.Info().Str("analysis_id", id).Msg("[DRY RUN] Would create Notion page")
				stats.Created++
			}
			continue
		}

		if found {
			if _, err := p.client.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("analysis_id", id).Str("page_id", pageID).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		page, err := p.client.CreatePage(ctx, p.databaseID, props)
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", id).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		existing[id] = string(page.ID)
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("failed", stats.Failed).
		Msg("Notion publish completed")

	return stats, nil
}

// queryAllPages follows the database cursor until every page is loaded.
func queryAllPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: 100}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}
