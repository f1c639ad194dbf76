// Package prompts renders analysis prompts in French from summaries and
// their context. Rendering is deterministic for identical inputs.
package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/summary"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxTrends is the number of trend descriptors rendered in a recommendations prompt.
const MaxTrends = 5

const defaultStreamingLabel = "générale"

// Builder renders the four prompt templates.
type Builder struct {
	tmpl       *template.Template
	printer    *message.Printer
	jsonOutput bool
}

// Option configures a Builder.
type Option func(*Builder)

// WithJSONOutput asks the model to answer with a JSON object keyed by bucket
// name instead of bold section titles.
func WithJSONOutput() Option {
	return func(b *Builder) { b.jsonOutput = true }
}

// New parses the templates. It only fails if a template is malformed.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{printer: message.NewPrinter(language.French)}
	for _, opt := range opts {
		opt(b)
	}

	funcs := template.FuncMap{
		"money": b.money,
		"pct":   b.pct,
		"clean": clean,
		"join":  join,

		"jsonOutput": func() bool { return b.jsonOutput },
	}

	root := template.New("prompts").Funcs(funcs).Option("missingkey=error")
	for name, text := range map[string]string{
		string(domain.KindPatterns):        patternsTemplate,
		string(domain.KindTrends):          trendsTemplate,
		string(domain.KindRecommendations): recommendationsTemplate,
		string(domain.KindStreaming):       streamingTemplate,
	} {
		if _, err := root.New(name).Parse(text); err != nil {
			return nil, fmt.Errorf("New: parse %s template: %w", name, err)
		}
	}
	b.tmpl = root
	return b, nil
}

// Patterns renders the pattern-analysis prompt.
func (b *Builder) Patterns(s *summary.Summary, focusAreas []string) (string, error) {
	if s == nil {
		return "", errors.New("Patterns: summary is required")
	}
	return b.render(domain.KindPatterns, struct {
		Summary    *summary.Summary
		FocusAreas []string
	}{s, focusAreas})
}

// Trends renders the trend-analysis prompt. The previous period is optional.
func (b *Builder) Trends(c summary.TrendComparison) (string, error) {
	if c.Current == nil {
		return "", errors.New("Trends: current summary is required")
	}
	return b.render(domain.KindTrends, struct {
		Comparison summary.TrendComparison
	}{c})
}

// Recommendations renders the recommendations prompt. Only the first
// MaxTrends trend descriptors are included.
func (b *Builder) Recommendations(s *summary.Summary, budgets []domain.Budget, trends []domain.TrendDescriptor, goals []string) (string, error) {
	if s == nil {
		return "", errors.New("Recommendations: summary is required")
	}
	if len(trends) > MaxTrends {
		trends = trends[:MaxTrends]
	}
	return b.render(domain.KindRecommendations, struct {
		Summary *summary.Summary
		Budgets []domain.Budget
		Trends  []domain.TrendDescriptor
		Goals   []string
	}{s, budgets, trends, goals})
}

// Streaming renders the short free-form prompt used for streamed analyses.
func (b *Builder) Streaming(s *summary.Summary, label string) (string, error) {
	if s == nil {
		return "", errors.New("Streaming: summary is required")
	}
	if strings.TrimSpace(label) == "" {
		label = defaultStreamingLabel
	}
	return b.render(domain.KindStreaming, struct {
		Summary *summary.Summary
		Label   string
	}{s, label})
}

func (b *Builder) render(kind domain.AnalysisKind, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, string(kind), data); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	if b.jsonOutput {
		if keys, ok := jsonKeys[kind]; ok {
			buf.WriteString(fmt.Sprintf(jsonInstruction, keys))
		}
	}
	out := buf.String()
	if strings.Contains(out, "{{") || strings.Contains(out, "}}") {
		return "", fmt.Errorf("render %s: unresolved placeholder in output", kind)
	}
	return out, nil
}

// money formats an amount the French way, e.g. "1 234,50 €".
func (b *Builder) money(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return b.printer.Sprintf("%.2f €", f)
}

func (b *Builder) pct(p *float64) string {
	if p == nil {
		return "non disponible"
	}
	return b.printer.Sprintf("%+.1f %%", *p)
}

// clean keeps caller-supplied text on one line and out of template syntax.
func clean(s string) string {
	return braceReplacer.Replace(strings.Join(strings.Fields(s), " "))
}

var braceReplacer = strings.NewReplacer("{", "(", "}", ")")

func join(items []string) string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if c := clean(it); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, ", ")
}
