package domain

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
)

func TestAnalysisRequest_Validate(t *testing.T) {
	jan1 := civil.Date{Year: 2024, Month: 1, Day: 1}
	jan31 := civil.Date{Year: 2024, Month: 1, Day: 31}

	tests := []struct {
		name    string
		req     AnalysisRequest
		wantErr bool
	}{
		{
			name: "valid range",
			req:  AnalysisRequest{UserID: "u1", StartDate: jan1, EndDate: jan31, Kind: KindPatterns},
		},
		{
			name: "single day range",
			req:  AnalysisRequest{UserID: "u1", StartDate: jan1, EndDate: jan1, Kind: KindTrends},
		},
		{
			name:    "missing user",
			req:     AnalysisRequest{StartDate: jan1, EndDate: jan31, Kind: KindPatterns},
			wantErr: true,
		},
		{
			name:    "start after end",
			req:     AnalysisRequest{UserID: "u1", StartDate: jan31, EndDate: jan1, Kind: KindPatterns},
			wantErr: true,
		},
		{
			name:    "zero dates",
			req:     AnalysisRequest{UserID: "u1", Kind: KindPatterns},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			req:     AnalysisRequest{UserID: "u1", StartDate: jan1, EndDate: jan31, Kind: "forecast"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Recommendations ")
	if err != nil {
		t.Fatalf("ParseKind failed: %v", err)
	}
	if k != KindRecommendations {
		t.Errorf("expected %q, got %q", KindRecommendations, k)
	}

	if _, err := ParseKind("weekly"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestNewInsightsHaveEmptyBuckets(t *testing.T) {
	p := NewPatternInsights()
	if p.KeyPoints == nil || p.Risks == nil || p.Opportunities == nil {
		t.Error("pattern buckets must not be nil")
	}
	tr := NewTrendInsights()
	if tr.MainTrends == nil || tr.Anomalies == nil || tr.Forecasts == nil || tr.RecommendedActions == nil {
		t.Error("trend buckets must not be nil")
	}
	r := NewRecommendationInsights()
	if r.PriorityActions == nil || r.Optimizations == nil || r.RiskManagement == nil || r.GrowthOpportunities == nil {
		t.Error("recommendation buckets must not be nil")
	}
}
