package domain

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// ErrInvalidRequest is returned when an AnalysisRequest fails validation.
var ErrInvalidRequest = errors.New("invalid analysis request")

// NoDataMessage is the message carried by a result when the period has no transactions.
const NoDataMessage = "no transactions in period"

// AnalysisKind selects the prompt template and the response vocabulary.
type AnalysisKind string

const (
	KindPatterns        AnalysisKind = "patterns"
	KindTrends          AnalysisKind = "trends"
	KindRecommendations AnalysisKind = "recommendations"
	KindStreaming       AnalysisKind = "streaming"
)

// Valid reports whether k is one of the known analysis kinds.
func (k AnalysisKind) Valid() bool {
	switch k {
	case KindPatterns, KindTrends, KindRecommendations, KindStreaming:
		return true
	}
	return false
}

// ParseKind converts user input into an AnalysisKind.
func ParseKind(s string) (AnalysisKind, error) {
	k := AnalysisKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, s)
	}
	return k, nil
}

// AnalysisRequest is the input contract shared by all analysis kinds.
type AnalysisRequest struct {
	UserID    string       `json:"user_id"`
	StartDate civil.Date   `json:"start_date"`
	EndDate   civil.Date   `json:"end_date"`
	Kind      AnalysisKind `json:"kind"`

	// FocusAreas is used by pattern analysis.
	FocusAreas []string `json:"focus_areas,omitempty"`
	// Compare asks trend analysis to load the previous period.
	Compare bool `json:"compare,omitempty"`
	// Goals is used by recommendations.
	Goals []string `json:"goals,omitempty"`
	// Label names the analysis in the streaming prompt.
	Label string `json:"label,omitempty"`
}

// Validate checks the request invariants.
func (r *AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if !r.StartDate.IsValid() || !r.EndDate.IsValid() {
		return fmt.Errorf("%w: start_date and end_date must be valid calendar dates", ErrInvalidRequest)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: start_date %s is after end_date %s", ErrInvalidRequest, r.StartDate, r.EndDate)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, r.Kind)
	}
	return nil
}

// ErrorClass tells callers how a failed analysis should be presented.
type ErrorClass string

const (
	// ErrorClassConfiguration means the model client is not available.
	ErrorClassConfiguration ErrorClass = "configuration"
	// ErrorClassInternal covers provider auth, quota, not-found and 5xx failures.
	ErrorClassInternal ErrorClass = "internal"
	// ErrorClassAnalysis covers every other failure of the model call.
	ErrorClassAnalysis ErrorClass = "analysis"
)

// AnalysisError is the typed failure attached to a result.
type AnalysisError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}

// ResultReason distinguishes a structured non-success from an error.
type ResultReason string

const ReasonNoData ResultReason = "no_data"

// AnalysisResult is the output contract of every entry point.
type AnalysisResult struct {
	ID      uuid.UUID    `json:"id"`
	UserID  string       `json:"user_id"`
	Kind    AnalysisKind `json:"kind"`
	Success bool         `json:"success"`
	Reason  ResultReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`

	Patterns        *PatternInsights        `json:"patterns,omitempty"`
	Trends          *TrendInsights          `json:"trends,omitempty"`
	Recommendations *RecommendationInsights `json:"recommendations,omitempty"`

	RawText          string `json:"raw_text,omitempty"`
	TransactionCount int    `json:"transaction_count"`
	Model            string `json:"model,omitempty"`
	AnalyzedAt       string `json:"analyzed_at"`

	Error *AnalysisError `json:"error,omitempty"`
}

// PatternInsights holds the buckets produced by pattern analysis.
type PatternInsights struct {
	Overview      string   `json:"overview"`
	KeyPoints     []string `json:"key_points"`
	Risks         []string `json:"risks"`
	Opportunities []string `json:"opportunities"`
}

// TrendInsights holds the buckets produced by trend analysis.
type TrendInsights struct {
	MainTrends         []string `json:"main_trends"`
	Anomalies          []string `json:"anomalies"`
	Forecasts          []string `json:"forecasts"`
	RecommendedActions []string `json:"recommended_actions"`
}

// Recommendation is one actionable item with its optional estimates.
type Recommendation struct {
	Text     string `json:"text"`
	Impact   string `json:"impact,omitempty"`
	Effort   string `json:"effort,omitempty"`
	Deadline string `json:"deadline,omitempty"`
}

// RecommendationInsights holds the buckets produced by recommendations.
type RecommendationInsights struct {
	PriorityActions     []Recommendation `json:"priority_actions"`
	Optimizations       []Recommendation `json:"optimizations"`
	RiskManagement      []Recommendation `json:"risk_management"`
	GrowthOpportunities []Recommendation `json:"growth_opportunities"`
}

// NewPatternInsights returns insights with every bucket initialised.
func NewPatternInsights() *PatternInsights {
	return &PatternInsights{KeyPoints: []string{}, Risks: []string{}, Opportunities: []string{}}
}

// NewTrendInsights returns insights with every bucket initialised.
func NewTrendInsights() *TrendInsights {
	return &TrendInsights{
		MainTrends:         []string{},
		Anomalies:          []string{},
		Forecasts:          []string{},
		RecommendedActions: []string{},
	}
}

// NewRecommendationInsights returns insights with every bucket initialised.
func NewRecommendationInsights() *RecommendationInsights {
	return &RecommendationInsights{
		PriorityActions:     []Recommendation{},
		Optimizations:       []Recommendation{},
		RiskManagement:      []Recommendation{},
		GrowthOpportunities: []Recommendation{},
	}
}
