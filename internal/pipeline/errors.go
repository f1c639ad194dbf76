package pipeline

import (
	"github.com/dvloznov/finance-insights/internal/domain"
	"github.com/dvloznov/finance-insights/internal/llm"
)

// AnalysisFailure is the single error type returned for a failed model call.
// Message is safe to show to end users.
type AnalysisFailure struct {
	Class   domain.ErrorClass
	Message string
	Err     error
}

func (f *AnalysisFailure) Error() string { return f.Message }

func (f *AnalysisFailure) Unwrap() error { return f.Err }

// Detail returns the public form attached to a result.
func (f *AnalysisFailure) Detail() *domain.AnalysisError {
	return &domain.AnalysisError{Class: f.Class, Message: f.Message}
}

// newFailure classifies err. Provider failures get the generic message so
// quota and credential details never reach the caller.
func newFailure(err error) *AnalysisFailure {
	class := llm.Classify(err)
	msg := err.Error()
	switch class {
	case domain.ErrorClassInternal:
		msg = GenericFailureMessage
	case domain.ErrorClassConfiguration:
		msg = NotConfiguredMessage
	}
	return &AnalysisFailure{Class: class, Message: msg, Err: err}
}
