package interpreter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/finance-insights/internal/domain"
	"golang.org/x/text/unicode/norm"
)

type bucket string

const (
	bucketOverview      bucket = "overview"
	bucketKeyPoints     bucket = "key_points"
	bucketRisks         bucket = "risks"
	bucketOpportunities bucket = "opportunities"

	bucketMainTrends         bucket = "main_trends"
	bucketAnomalies          bucket = "anomalies"
	bucketForecasts          bucket = "forecasts"
	bucketRecommendedActions bucket = "recommended_actions"

	bucketPriorityActions     bucket = "priority_actions"
	bucketOptimizations       bucket = "optimizations"
	bucketRiskManagement      bucket = "risk_management"
	bucketGrowthOpportunities bucket = "growth_opportunities"
)

type rule struct {
	bucket   bucket
	keywords []string
}

// Rules are tried in order; the first match wins for a section.
var vocabularies = map[domain.AnalysisKind][]rule{
	domain.KindPatterns: {
		{bucketKeyPoints, []string{"points clés", "points cles", "point clé", "point cle", "points importants"}},
		{bucketRisks, []string{"risque"}},
		{bucketOpportunities, []string{"opportunit"}},
		{bucketOverview, []string{"aperçu", "apercu", "général", "general", "vue d'ensemble", "synthèse", "synthese"}},
	},
	domain.KindTrends: {
		{bucketAnomalies, []string{"anomalie", "atypique"}},
		{bucketForecasts, []string{"prévision", "prevision", "projection", "perspective"}},
		{bucketRecommendedActions, []string{"action"}},
		{bucketMainTrends, []string{"tendance", "évolution", "evolution"}},
	},
	domain.KindRecommendations: {
		{bucketPriorityActions, []string{"priorit", "urgent"}},
		{bucketRiskManagement, []string{"risque"}},
		{bucketOptimizations, []string{"optimis"}},
		{bucketGrowthOpportunities, []string{"croissance", "opportunit", "développement", "developpement"}},
	},
}

var (
	numberedPrefix = regexp.MustCompile(`^\d+[.)]\s*`)
	fieldPattern   = regexp.MustCompile(`(?i)(impact|effort|échéance|echeance|délai|delai)(?:\s+(?:estimée?|suggérée?|conseillée?))?\s*:\s*([^;,|()\n]+)`)
	fieldLabels    = []string{"impact", "effort", "échéance", "echeance", "délai", "delai"}
)

// KeywordInterpreter splits text on bold or heading markers and assigns each
// section to a bucket by keyword.
type KeywordInterpreter struct{}

// NewKeywordInterpreter returns the keyword-based interpreter.
func NewKeywordInterpreter() *KeywordInterpreter {
	return &KeywordInterpreter{}
}

// Interpret implements Interpreter. It only errors for kinds without a bucket record.
func (k *KeywordInterpreter) Interpret(kind domain.AnalysisKind, raw string) (*Insights, error) {
	in, err := emptyInsights(kind)
	if err != nil {
		return nil, err
	}

	rules := vocabularies[kind]
	for _, sec := range splitSections(norm.NFC.String(raw), rules) {
		b, ok := matchRule(rules, sec.header)
		if !ok {
			continue
		}
		in.add(b, sec.body)
	}
	return in, nil
}

func (in *Insights) add(b bucket, body string) {
	switch b {
	case bucketOverview:
		text := strings.TrimSpace(strings.ReplaceAll(body, "**", ""))
		if text == "" {
			return
		}
		if in.Patterns.Overview != "" {
			in.Patterns.Overview += "\n\n"
		}
		in.Patterns.Overview += text
	case bucketKeyPoints:
		in.Patterns.KeyPoints = append(in.Patterns.KeyPoints, fragments(body)...)
	case bucketRisks:
		in.Patterns.Risks = append(in.Patterns.Risks, fragments(body)...)
	case bucketOpportunities:
		in.Patterns.Opportunities = append(in.Patterns.Opportunities, fragments(body)...)
	case bucketMainTrends:
		in.Trends.MainTrends = append(in.Trends.MainTrends, fragments(body)...)
	case bucketAnomalies:
		in.Trends.Anomalies = append(in.Trends.Anomalies, fragments(body)...)
	case bucketForecasts:
		in.Trends.Forecasts = append(in.Trends.Forecasts, fragments(body)...)
	case bucketRecommendedActions:
		in.Trends.RecommendedActions = append(in.Trends.RecommendedActions, fragments(body)...)
	case bucketPriorityActions:
		in.Recommendations.PriorityActions = append(in.Recommendations.PriorityActions, recommendations(body)...)
	case bucketOptimizations:
		in.Recommendations.Optimizations = append(in.Recommendations.Optimizations, recommendations(body)...)
	case bucketRiskManagement:
		in.Recommendations.RiskManagement = append(in.Recommendations.RiskManagement, recommendations(body)...)
	case bucketGrowthOpportunities:
		in.Recommendations.GrowthOpportunities = append(in.Recommendations.GrowthOpportunities, recommendations(body)...)
	}
}

func matchRule(rules []rule, header string) (bucket, bool) {
	if header == "" {
		return "", false
	}
	h := strings.ToLower(header)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(h, kw) {
				return r.bucket, true
			}
		}
	}
	return "", false
}

type section struct {
	header string
	body   string
}

// splitSections cuts text at lines that start with a markdown heading or a
// bold span. Text before the first header forms a section with no header.
// Inside an open section a numbered bold line is a list item unless it is a
// bare title from rules.
func splitSections(text string, rules []rule) []section {
	var (
		out  []section
		cur  section
		body []string
	)
	flush := func() {
		cur.body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.header != "" || cur.body != "" {
			out = append(out, cur)
		}
		body = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if h, rest, ok := parseHeader(line); ok && !listItem(cur, line, h, rest, rules) {
			flush()
			cur = section{header: h}
			if rest != "" {
				body = append(body, rest)
			}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

func listItem(open section, line, header, rest string, rules []rule) bool {
	if open.header == "" || !numberedPrefix.MatchString(strings.TrimSpace(line)) {
		return false
	}
	_, known := matchRule(rules, header)
	return rest != "" || !known
}

// parseHeader recognises "# Title", "**Title**" and "1. **Title** : rest".
func parseHeader(line string) (header, rest string, ok bool) {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "#") {
		h := strings.Trim(strings.TrimLeft(s, "#"), "*: \t")
		return h, "", h != ""
	}

	s = numberedPrefix.ReplaceAllString(s, "")
	if !strings.HasPrefix(s, "**") {
		return "", "", false
	}
	end := strings.Index(s[2:], "**")
	if end < 0 {
		return "", "", false
	}
	h := strings.TrimRight(strings.TrimSpace(s[2:2+end]), ": ")
	if h == "" || isFieldLabel(h) {
		return "", "", false
	}
	rest = strings.TrimSpace(strings.TrimLeft(s[2+end+2:], ": "))
	return h, rest, true
}

func isFieldLabel(h string) bool {
	h = strings.ToLower(h)
	for _, l := range fieldLabels {
		if strings.HasPrefix(h, l) {
			return true
		}
	}
	return false
}

// fragments splits a section body on bullet markers and drops fragments
// shorter than MinFragmentLength. Continuation lines join the open fragment.
func fragments(body string) []string {
	body = strings.ReplaceAll(body, "•", "\n- ")

	out := []string{}
	var cur strings.Builder
	flush := func() {
		f := strings.TrimSpace(strings.ReplaceAll(cur.String(), "**", ""))
		cur.Reset()
		if utf8.RuneCountInString(f) >= MinFragmentLength {
			out = append(out, f)
		}
	}

	for _, line := range strings.Split(body, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			flush()
			continue
		}
		if item, ok := bulletItem(s); ok {
			flush()
			cur.WriteString(item)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	flush()
	return out
}

func bulletItem(s string) (string, bool) {
	switch {
	case strings.HasPrefix(s, "-"):
		return strings.TrimSpace(s[1:]), true
	case strings.HasPrefix(s, "* "):
		return strings.TrimSpace(s[2:]), true
	case numberedPrefix.MatchString(s):
		return strings.TrimSpace(numberedPrefix.ReplaceAllString(s, "")), true
	}
	return "", false
}

func recommendations(body string) []domain.Recommendation {
	frags := fragments(body)
	out := make([]domain.Recommendation, 0, len(frags))
	for _, f := range frags {
		out = append(out, parseRecommendation(f))
	}
	return out
}

// parseRecommendation extracts the optional impact, effort and deadline
// fields. Text is whatever precedes the first field.
func parseRecommendation(fragment string) domain.Recommendation {
	rec := domain.Recommendation{Text: fragment}

	matches := fieldPattern.FindAllStringSubmatchIndex(fragment, -1)
	if len(matches) == 0 {
		return rec
	}
	for _, m := range matches {
		label := strings.ToLower(fragment[m[2]:m[3]])
		value := strings.TrimRight(strings.TrimSpace(fragment[m[4]:m[5]]), ".")
		switch {
		case label == "impact":
			rec.Impact = value
		case label == "effort":
			rec.Effort = value
		default:
			rec.Deadline = value
		}
	}

	if text := strings.TrimRight(strings.TrimSpace(fragment[:matches[0][0]]), " -:;,(|–—"); text != "" {
		rec.Text = text
	}
	return rec
}
