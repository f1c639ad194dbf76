package pipeline

import (
	"sync"

	"github.com/dvloznov/finance-insights/internal/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLatestCapacity is the number of users whose latest result is kept.
const DefaultLatestCapacity = 10000

// LatestResults remembers the newest result per user. Each analysis takes a
// generation number when it starts; a result is only kept if no newer
// analysis was started for the same user in the meantime. The least
// recently active users are evicted once capacity is reached.
type LatestResults struct {
	mu      sync.Mutex
	next    uint64
	entries *lru.Cache[string, *latestEntry]
}

type latestEntry struct {
	gen    uint64
	result *domain.AnalysisResult
}

// NewLatestResults creates an empty tracker holding DefaultLatestCapacity users.
func NewLatestResults() *LatestResults {
	return NewLatestResultsWithCapacity(DefaultLatestCapacity)
}

// NewLatestResultsWithCapacity creates an empty tracker holding at most
// capacity users. Capacities below one are raised to one.
func NewLatestResultsWithCapacity(capacity int) *LatestResults {
	if capacity < 1 {
		capacity = 1
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, *latestEntry](capacity)
	return &LatestResults{entries: entries}
}

// Begin starts a new generation for userID. Generations are unique across
// users, so an evicted user's in-flight analysis can never commit.
func (l *LatestResults) Begin(userID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	e, ok := l.entries.Get(userID)
	if !ok {
		e = &latestEntry{}
		l.entries.Add(userID, e)
	}
	e.gen = l.next
	return l.next
}

// Commit stores result if gen is still current and reports whether it did.
func (l *LatestResults) Commit(userID string, gen uint64, result *domain.AnalysisResult) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries.Get(userID)
	if !ok || e.gen != gen {
		return false
	}
	e.result = result
	return true
}

// Latest returns the last committed result for userID.
func (l *LatestResults) Latest(userID string) (*domain.AnalysisResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries.Get(userID)
	if !ok || e.result == nil {
		return nil, false
	}
	return e.result, true
}

// Len returns the number of users tracked.
func (l *LatestResults) Len() int {
	return l.entries.Len()
}
