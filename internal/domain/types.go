package domain

import (
	"fmt"
	"time"
)

// KnowledgeRecord is a stored question/answer pair
type KnowledgeRecord struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredRecord pairs a record with its text-search relevance score
type ScoredRecord struct {
	KnowledgeRecord
	Score float64 `json:"score"`
}

// MatchTier identifies which fallback strategy produced a match
type MatchTier string

const (
	TierText  MatchTier = "text"
	TierRegex MatchTier = "regex"
	TierTag   MatchTier = "tag"
	TierNone  MatchTier = "none"
)

// QueryLogEntry records a single resolution attempt.
// RecordID is empty exactly when MatchedBy is TierNone.
type QueryLogEntry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	RecordID  string    `json:"record_id,omitempty"`
	Score     *float64  `json:"score,omitempty"`
	MatchedBy MatchTier `json:"matched_by"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryCount is one row of the top-queries analytics view
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Resolution is the outcome of one lookup attempt
type Resolution struct {
	Answer    string    `json:"answer"`
	Source    string    `json:"source,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	MatchedBy MatchTier `json:"matched_by"`
	Score     *float64  `json:"score,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
}

// ValidationError reports a missing or malformed input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
