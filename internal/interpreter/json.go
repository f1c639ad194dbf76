package interpreter

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-insights/internal/domain"
)

// JSONInterpreter reads structured output produced when the model is asked
// to answer with a JSON object keyed by bucket name. Text that does not
// decode is handed to the fallback interpreter.
type JSONInterpreter struct {
	fallback Interpreter
}

// NewJSONInterpreter returns a JSON interpreter. fallback may be nil, in
// which case undecodable text yields empty buckets.
func NewJSONInterpreter(fallback Interpreter) *JSONInterpreter {
	return &JSONInterpreter{fallback: fallback}
}

// Interpret implements Interpreter.
func (j *JSONInterpreter) Interpret(kind domain.AnalysisKind, raw string) (*Insights, error) {
	in, err := emptyInsights(kind)
	if err != nil {
		return nil, err
	}

	var target any
	switch kind {
	case domain.KindPatterns:
		target = in.Patterns
	case domain.KindTrends:
		target = in.Trends
	case domain.KindRecommendations:
		target = in.Recommendations
	}

	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), target); err != nil {
		if j.fallback != nil {
			return j.fallback.Interpret(kind, raw)
		}
		return emptyInsights(kind)
	}

	in.normalize()
	return in, nil
}

// normalize restores empty buckets after decoding and applies the same
// noise filter as the keyword interpreter.
func (in *Insights) normalize() {
	if p := in.Patterns; p != nil {
		p.Overview = strings.TrimSpace(p.Overview)
		p.KeyPoints = keepLong(p.KeyPoints)
		p.Risks = keepLong(p.Risks)
		p.Opportunities = keepLong(p.Opportunities)
	}
	if t := in.Trends; t != nil {
		t.MainTrends = keepLong(t.MainTrends)
		t.Anomalies = keepLong(t.Anomalies)
		t.Forecasts = keepLong(t.Forecasts)
		t.RecommendedActions = keepLong(t.RecommendedActions)
	}
	if r := in.Recommendations; r != nil {
		r.PriorityActions = keepLongRecs(r.PriorityActions)
		r.Optimizations = keepLongRecs(r.Optimizations)
		r.RiskManagement = keepLongRecs(r.RiskManagement)
		r.GrowthOpportunities = keepLongRecs(r.GrowthOpportunities)
	}
}

func keepLong(items []string) []string {
	out := []string{}
	for _, it := range items {
		it = strings.TrimSpace(it)
		if utf8.RuneCountInString(it) >= MinFragmentLength {
			out = append(out, it)
		}
	}
	return out
}

func keepLongRecs(items []domain.Recommendation) []domain.Recommendation {
	out := []domain.Recommendation{}
	for _, it := range items {
		it.Text = strings.TrimSpace(it.Text)
		if utf8.RuneCountInString(it.Text) >= MinFragmentLength {
			out = append(out, it)
		}
	}
	return out
}

// cleanModelJSON strips markdown fences and any prose around the top-level object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
