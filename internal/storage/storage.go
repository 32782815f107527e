// Package storage persists driftwatch state: per-agent JSON state files and
// append-only JSONL logs under a base directory.
package storage

// File names inside an agent namespace (<base>/agents/<agentID>/).
const (
	// ObservationsFile is the append-only observation log.
	ObservationsFile = "observations.jsonl"

	// EntropyStateFile holds the scorer's ring buffer and sustained counters.
	EntropyStateFile = "entropy-state.json"

	// VectorsFile is the externally maintained growth-vector collection.
	VectorsFile = "growth-vectors.json"

	// CandidatesFile holds auto-detected vectors awaiting promotion.
	CandidatesFile = "growth-candidates.json"

	// FeedbackFile maps vector IDs to their feedback records.
	FeedbackFile = "vector-feedback.json"

	// PoolChainFile is the audit trail of candidate pool operations.
	PoolChainFile = "pool-chain.jsonl"

	// SessionFile holds hook-to-hook session state for one-shot mode.
	SessionFile = "session.json"

	// InvestigationsFile is the process-wide governance state, stored at the
	// base directory rather than per agent.
	InvestigationsFile = "investigations.json"

	// AgentsDir is the directory holding one namespace per agent.
	AgentsDir = "agents"
)

// Storage is the persistence contract used by the scoring pipeline. Every
// method is expected to be called from a single agent pipeline at a time.
type Storage interface {
	// Path returns the absolute path of name inside this namespace.
	Path(name string) string

	// ReadJSON decodes name into v. It reports false when the file is
	// absent or corrupt, leaving v untouched.
	ReadJSON(name string, v any) bool

	// WriteJSON atomically replaces name with the JSON encoding of v.
	WriteJSON(name string, v any) error

	// AppendJSONL appends v as one JSON line to name.
	AppendJSONL(name string, v any) error

	// ReadJSONL calls fn with every non-empty line of name. A missing file
	// yields no calls.
	ReadJSONL(name string, fn func(line []byte) error) error

	// CountLines returns the number of non-empty lines in name.
	CountLines(name string) (int, error)

	// TruncateJSONL keeps only the newest keep lines of name.
	TruncateJSONL(name string, keep int) error

	// Init creates the namespace directory.
	Init() error
}
