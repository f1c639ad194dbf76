package pipeline

import "time"

// Default values for analysis runs.
// These can be overridden through Deps.
const (
	// DefaultTimeout bounds a whole analysis, fetch and model call included.
	DefaultTimeout = 90 * time.Second

	// GenericFailureMessage is shown for provider failures instead of the provider's text.
	GenericFailureMessage = "analysis failed, please try again later"

	// NotConfiguredMessage is shown when no model client is available.
	NotConfiguredMessage = "AI analysis is not configured"

	// RecentTrendLimit is the number of trend descriptors loaded for recommendations.
	RecentTrendLimit = 5
)
