package notionexport

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/jomei/notionapi"
)

// Notion rejects rich text blocks longer than this.
const maxRichText = 2000

// Database property names.
const (
	PropName         = "Name"
	PropAnalysisID   = "Analysis ID"
	PropUser         = "User"
	PropKind         = "Kind"
	PropSuccess      = "Success"
	PropAnalyzedAt   = "Analyzed At"
	PropTransactions = "Transactions"
	PropModel        = "Model"
	PropHighlights   = "Highlights"
	PropMessage      = "Message"
)

var kindLabels = map[domain.AnalysisKind]string{
	domain.KindPatterns:        "Analyse des habitudes",
	domain.KindTrends:          "Tendances",
	domain.KindRecommendations: "Recommandations",
	domain.KindStreaming:       "Analyse en direct",
}

// ResultToNotionProperties converts an analysis result to the properties of
// one page in the insights database.
func ResultToNotionProperties(result *domain.AnalysisResult) notionapi.Properties {
	props := notionapi.Properties{
		PropName:       notionapi.TitleProperty{Title: richText(pageTitle(result))},
		PropAnalysisID: notionapi.RichTextProperty{RichText: richText(result.ID.String())},
		PropKind:       notionapi.SelectProperty{Select: notionapi.Option{Name: string(result.Kind)}},
		PropSuccess:    notionapi.CheckboxProperty{Checkbox: result.Success},
		PropTransactions: notionapi.NumberProperty{
			Number: float64(result.TransactionCount),
		},
	}

	if result.UserID != "" {
		props[PropUser] = notionapi.RichTextProperty{RichText: richText(result.UserID)}
	}
	if result.Model != "" {
		props[PropModel] = notionapi.SelectProperty{Select: notionapi.Option{Name: result.Model}}
	}

	if t, err := time.Parse(time.RFC3339, result.AnalyzedAt); err == nil {
		d := notionapi.Date(t)
		props[PropAnalyzedAt] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
	}

	if h := Highlights(result); len(h) > 0 {
		props[PropHighlights] = notionapi.RichTextProperty{RichText: richText("- " + strings.Join(h, "\n- "))}
	}

	message := result.Message
	if result.Error != nil {
		message = result.Error.Message
	}
	if message != "" {
		props[PropMessage] = notionapi.RichTextProperty{RichText: richText(message)}
	}

	return props
}

// Highlights returns the headline bucket of a result: key points, main
// trends or priority actions depending on the kind. Streaming results fall
// back to the first line of the raw text.
func Highlights(result *domain.AnalysisResult) []string {
	switch {
	case result.Patterns != nil:
		return result.Patterns.KeyPoints
	case result.Trends != nil:
		return result.Trends.MainTrends
	case result.Recommendations != nil:
		out := make([]string, 0, len(result.Recommendations.PriorityActions))
		for _, r := range result.Recommendations.PriorityActions {
			out = append(out, r.Text)
		}
		return out
	}
	if line, _, _ := strings.Cut(strings.TrimSpace(result.RawText), "\n"); line != "" {
		return []string{line}
	}
	return nil
}

func pageTitle(result *domain.AnalysisResult) string {
	label, ok := kindLabels[result.Kind]
	if !ok {
		label = string(result.Kind)
	}
	if len(result.AnalyzedAt) >= 10 {
		return fmt.Sprintf("%s du %s", label, result.AnalyzedAt[:10])
	}
	return label
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: truncate(content, maxRichText)},
		},
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// extractAnalysisID reads the Analysis ID property back from a page.
func extractAnalysisID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropAnalysisID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}
