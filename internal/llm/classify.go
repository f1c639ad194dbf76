package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// StatusError is a provider failure carrying an HTTP status code.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model provider returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from any supported provider error.
func StatusCode(err error) (int, bool) {
	var gv genai.APIError
	if errors.As(err, &gv) {
		return gv.Code, true
	}
	var gp *genai.APIError
	if errors.As(err, &gp) && gp != nil {
		return gp.Code, true
	}
	var oe *openai.Error
	if errors.As(err, &oe) && oe != nil {
		return oe.StatusCode, true
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) && ae != nil {
		return ae.StatusCode, true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// Classify maps a model call failure to an error class. Authentication,
// authorization, not-found, rate-limit and server errors are internal;
// everything else is an analysis error.
func Classify(err error) domain.ErrorClass {
	if errors.Is(err, ErrNotConfigured) {
		return domain.ErrorClassConfiguration
	}
	if code, ok := StatusCode(err); ok && isInternalStatus(code) {
		return domain.ErrorClassInternal
	}
	return domain.ErrorClassAnalysis
}

func isInternalStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError && code <= 599
}
