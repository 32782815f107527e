// Package types defines the data structures shared by the driftwatch scoring,
// loop-detection and growth-vector pipelines.
package types

import "time"

// DetectorResult is the per-turn output of the text signal detectors.
type DetectorResult struct {
	// TemporalMismatch is set when the user talks about the future and the
	// response claims the work already happened.
	TemporalMismatch bool `json:"temporal_mismatch"`

	// QualityDecay is set when a terse user turn receives a disproportionately
	// intimate or legacy-focused response.
	QualityDecay bool `json:"quality_decay"`

	// RecursiveMetaBonus is one of 0, 0.15, 0.3, 0.45.
	RecursiveMetaBonus float64 `json:"recursive_meta_bonus"`

	// MetaConceptCount is the raw meta-concept count for the current pair.
	MetaConceptCount int `json:"meta_concept_count"`
}

// Observation is one scored turn. Immutable once appended to the log.
type Observation struct {
	Timestamp          time.Time      `json:"timestamp"`
	AgentID            string         `json:"agent_id,omitempty"`
	SessionID          string         `json:"session_id,omitempty"`
	CompositeScore     float64        `json:"composite_score"`
	SustainedTurnCount int            `json:"sustained_turn_count"`
	DetectorResults    DetectorResult `json:"detector_results"`
	UserLength         int            `json:"user_length"`
	ResponseLength     int            `json:"response_length"`

	// Triggers names the scorer clauses that contributed to the score.
	Triggers []string `json:"triggers,omitempty"`

	// LexicalEntropy is the Shannon entropy (bits per word) of the response.
	// Logged for diagnostics only.
	LexicalEntropy float64 `json:"lexical_entropy"`
}

// HistoryPoint is the compact tuple kept in the recent-history ring.
type HistoryPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	Entropy          float64   `json:"entropy"`
	MetaConceptCount int       `json:"meta_concept_count"`
}

// EntropyState is the mutable per-agent scorer state.
type EntropyState struct {
	LastScore          float64        `json:"last_score"`
	SustainedTurns     int            `json:"sustained_turns"`
	SustainedStartTime *time.Time     `json:"sustained_start_time,omitempty"`
	RecentHistory      []HistoryPoint `json:"recent_history"`

	// LastTriggers are the triggers of the most recent scored turn. The
	// ranker uses them to decide entropy-source alignment.
	LastTriggers []string `json:"last_triggers,omitempty"`

	// MetaHistory is the detectors' rolling meta-concept history.
	MetaHistory []int `json:"meta_history,omitempty"`
}

// ToolCallRecord is one entry in the loop detector's deque.
type ToolCallRecord struct {
	Tool       string    `json:"tool"`
	OutputHash uint32    `json:"output_hash"`
	Timestamp  time.Time `json:"timestamp"`
}

// ValidationStatus is the lifecycle stage of a growth vector.
type ValidationStatus string

const (
	StatusCandidate  ValidationStatus = "candidate"
	StatusValidated  ValidationStatus = "validated"
	StatusIntegrated ValidationStatus = "integrated"
)

// Injectable reports whether vectors in this status may be ranked for injection.
func (s ValidationStatus) Injectable() bool {
	return s == StatusValidated || s == StatusIntegrated
}

// GrowthVector is an agent-curated lesson with a confidence weight.
type GrowthVector struct {
	ID                    string           `json:"id"`
	Type                  string           `json:"type"`
	Description           string           `json:"description"`
	IntegrationHypothesis string           `json:"integration_hypothesis,omitempty"`
	EntropySource         string           `json:"entropy_source,omitempty"`
	Weight                float64          `json:"weight"`
	Priority              string           `json:"priority,omitempty"`
	Detected              time.Time        `json:"detected"`
	ValidationStatus      ValidationStatus `json:"validation_status"`

	// Recurrence counts how many times a near-duplicate candidate was seen.
	Recurrence int `json:"recurrence,omitempty"`
}

// FeedbackEntry is one inject→observe pairing for a vector.
type FeedbackEntry struct {
	PreEntropy      float64   `json:"pre_entropy"`
	PostEntropy     float64   `json:"post_entropy"`
	EntropyDelta    float64   `json:"entropy_delta"`
	RelevanceScore  float64   `json:"relevance_score"`
	TensionDetected bool      `json:"tension_detected"`
	Timestamp       time.Time `json:"timestamp"`
}

// FeedbackRecord aggregates the rolling feedback window of one vector.
type FeedbackRecord struct {
	Entries         []FeedbackEntry `json:"entries"`
	AvgEntropyDelta float64         `json:"avg_entropy_delta"`
	TotalInjections int             `json:"total_injections"`
	LastUsed        time.Time       `json:"last_used"`
}

// TensionStatus is the state of a detected tension.
type TensionStatus string

const (
	TensionActive   TensionStatus = "active"
	TensionResolved TensionStatus = "resolved"
)

// Tension is an unresolved friction point awaiting resolution.
type Tension struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Description  string        `json:"description"`
	EntropyScore float64       `json:"entropy_score"`
	DetectedAt   time.Time     `json:"detected_at"`
	Status       TensionStatus `json:"status"`
	SessionID    string        `json:"session_id,omitempty"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
}

// RateLimitState holds two independent fixed windows.
type RateLimitState struct {
	HourlyCount     int       `json:"hourly_count"`
	DailyCount      int       `json:"daily_count"`
	HourlyResetTime time.Time `json:"hourly_reset_time"`
	DailyResetTime  time.Time `json:"daily_reset_time"`
}
