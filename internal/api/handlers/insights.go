package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-insights/internal/api/middleware"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
	"github.com/dvloznov/finance-insights/internal/pipeline"
	"github.com/rs/zerolog"
)

// Analyzer runs analyses for the insights endpoints.
type Analyzer interface {
	Run(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
	StreamAnalysis(ctx context.Context, req domain.AnalysisRequest, sink llm.ChunkSink) (*domain.AnalysisResult, error)
}

// LatestLookup returns the newest result committed for a user.
type LatestLookup interface {
	Latest(userID string) (*domain.AnalysisResult, bool)
}

// analysisRequestBody is the JSON body shared by the insights and jobs
// endpoints. The user comes from the auth middleware, never from the body.
type analysisRequestBody struct {
	Kind       string     `json:"kind,omitempty"`
	StartDate  civil.Date `json:"start_date"`
	EndDate    civil.Date `json:"end_date"`
	FocusAreas []string   `json:"focus_areas,omitempty"`
	Compare    bool       `json:"compare,omitempty"`
	Goals      []string   `json:"goals,omitempty"`
	Label      string     `json:"label,omitempty"`
}

func (b analysisRequestBody) toRequest(userID string, kind domain.AnalysisKind) domain.AnalysisRequest {
	return domain.AnalysisRequest{
		UserID:     userID,
		StartDate:  b.StartDate,
		EndDate:    b.EndDate,
		Kind:       kind,
		FocusAreas: b.FocusAreas,
		Compare:    b.Compare,
		Goals:      b.Goals,
		Label:      b.Label,
	}
}

// InsightsHandler handles the synchronous and streaming analysis endpoints.
type InsightsHandler struct {
	analyzer      Analyzer
	latest        LatestLookup
	streamTimeout time.Duration
	log           zerolog.Logger
}

// NewInsightsHandler creates a new insights handler. latest may be nil.
// streamTimeout bounds how long a streaming response may keep writing.
func NewInsightsHandler(analyzer Analyzer, latest LatestLookup, streamTimeout time.Duration, log zerolog.Logger) *InsightsHandler {
	return &InsightsHandler{
		analyzer:      analyzer,
		latest:        latest,
		streamTimeout: streamTimeout,
		log:           log,
	}
}

// Analyze returns the handler for POST /api/insights/{kind}.
func (h *InsightsHandler) Analyze(kind domain.AnalysisKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body analysisRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		req := body.toRequest(middleware.UserID(r.Context()), kind)
		result, err := h.analyzer.Run(r.Context(), req)
		h.writeOutcome(w, req, result, err)
	}
}

// Latest handles GET /api/insights/latest
func (h *InsightsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.latest == nil {
		middleware.WriteError(w, http.StatusNotFound, "No analysis yet")
		return
	}
	result, ok := h.latest.Latest(middleware.UserID(r.Context()))
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No analysis yet")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Stream handles POST /api/insights/stream. Chunks are sent as server-sent
// events as soon as the model produces them, followed by a final "done"
// event carrying the result. Failures detected before the first chunk are
// answered with a plain JSON response.
func (h *InsightsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var body analysisRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req := body.toRequest(middleware.UserID(r.Context()), domain.KindStreaming)

	rc := http.NewResponseController(w)
	if h.streamTimeout > 0 {
		_ = rc.SetWriteDeadline(time.Now().Add(h.streamTimeout))
	}

	started := false
	sink := func(chunk string) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := writeEvent(w, "", chunk); err != nil {
			return err
		}
		return rc.Flush()
	}

	result, err := h.analyzer.StreamAnalysis(r.Context(), req, sink)
	if !started {
		h.writeOutcome(w, req, result, err)
		return
	}

	if err != nil {
		h.log.Warn().Err(err).Str("user_id", req.UserID).Msg("Stream ended with an error")
		var failure *pipeline.AnalysisFailure
		payload := &domain.AnalysisError{Class: domain.ErrorClassInternal, Message: pipeline.GenericFailureMessage}
		if errors.As(err, &failure) {
			payload = failure.Detail()
		}
		data, _ := json.Marshal(payload)
		_ = writeEvent(w, "error", string(data))
		_ = rc.Flush()
		return
	}

	data, _ := json.Marshal(result)
	_ = writeEvent(w, "done", string(data))
	_ = rc.Flush()
}

// writeEvent writes one server-sent event. Multi-line data is split into
// several data fields, which the client joins back with newlines.
func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := w.Write([]byte(b.String()))
	return err
}

// writeOutcome maps an analysis outcome to a response. Classified failures
// still return the result body so clients see the error class and message.
func (h *InsightsHandler) writeOutcome(w http.ResponseWriter, req domain.AnalysisRequest, result *domain.AnalysisResult, err error) {
	var failure *pipeline.AnalysisFailure
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, result)
	case errors.As(err, &failure):
		middleware.WriteJSON(w, failureStatus(failure.Class), result)
	case errors.Is(err, domain.ErrInvalidRequest):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("user_id", req.UserID).Str("kind", string(req.Kind)).Msg("Analysis timed out")
		middleware.WriteError(w, http.StatusGatewayTimeout, "Analysis timed out")
	default:
		h.log.Error().Err(err).Str("user_id", req.UserID).Str("kind", string(req.Kind)).Msg("Failed to run analysis")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to run analysis")
	}
}

func failureStatus(class domain.ErrorClass) int {
	switch class {
	case domain.ErrorClassConfiguration:
		return http.StatusServiceUnavailable
	case domain.ErrorClassInternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
