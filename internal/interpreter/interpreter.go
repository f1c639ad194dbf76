// Package interpreter turns free-form model output into the bucketed
// insight records returned to callers.
//
// Parsing is best effort: text that does not match any known section yields
// empty buckets, never an error.
package interpreter

import (
	"fmt"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// MinFragmentLength is the shortest bullet fragment, in characters, that is
// kept. Shorter fragments are treated as noise.
const MinFragmentLength = 10

// Insights carries the bucket record for one analysis kind. Exactly one
// field is set.
type Insights struct {
	Patterns        *domain.PatternInsights
	Trends          *domain.TrendInsights
	Recommendations *domain.RecommendationInsights
}

// Apply copies the insights onto a result.
func (in *Insights) Apply(r *domain.AnalysisResult) {
	r.Patterns = in.Patterns
	r.Trends = in.Trends
	r.Recommendations = in.Recommendations
}

// Interpreter converts raw model text for a given kind into insights.
type Interpreter interface {
	Interpret(kind domain.AnalysisKind, raw string) (*Insights, error)
}

// ErrUnsupportedKind is returned for kinds that have no bucket record.
type ErrUnsupportedKind struct {
	Kind domain.AnalysisKind
}

func (e *ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("no bucket record for analysis kind %q", e.Kind)
}

func emptyInsights(kind domain.AnalysisKind) (*Insights, error) {
	switch kind {
	case domain.KindPatterns:
		return &Insights{Patterns: domain.NewPatternInsights()}, nil
	case domain.KindTrends:
		return &Insights{Trends: domain.NewTrendInsights()}, nil
	case domain.KindRecommendations:
		return &Insights{Recommendations: domain.NewRecommendationInsights()}, nil
	}
	return nil, &ErrUnsupportedKind{Kind: kind}
}
