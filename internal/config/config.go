// Package config provides configuration management for driftwatch.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (DRIFTWATCH_*)
// 3. Project config (.driftwatch/config.yaml in cwd, or DRIFTWATCH_CONFIG)
// 4. Home config (~/.driftwatch/config.yaml)
// 5. Defaults (phrase tables come from the embedded patterns.yaml)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/driftwatch/embedded"
)

// Config holds all driftwatch configuration.
type Config struct {
	// Output controls the default output format (table, json).
	Output string `yaml:"output" json:"output"`

	// BaseDir is the driftwatch data directory (default: .agents/driftwatch).
	BaseDir string `yaml:"base_dir" json:"base_dir"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	Entropy    EntropyConfig    `yaml:"entropy" json:"entropy"`
	Detectors  DetectorsConfig  `yaml:"detectors" json:"detectors"`
	Loop       LoopConfig       `yaml:"loop" json:"loop"`
	Vectors    VectorsConfig    `yaml:"vectors" json:"vectors"`
	Feedback   FeedbackConfig   `yaml:"feedback" json:"feedback"`
	Governance GovernanceConfig `yaml:"governance" json:"governance"`
	Inject     InjectConfig     `yaml:"inject" json:"inject"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`

	// Patterns holds the phrase and regex tables. A non-empty list in a
	// config file replaces the default list of the same name.
	Patterns Patterns `yaml:"patterns" json:"patterns"`
}

// EntropyConfig holds composite scorer settings.
type EntropyConfig struct {
	// CriticalThreshold is the score considered critical. Sustained
	// tracking triggers above 80% of it.
	CriticalThreshold float64 `yaml:"critical_threshold" json:"critical_threshold"`

	// SustainedMinutes is the wall-clock duration after which elevated
	// entropy is reported as sustained.
	SustainedMinutes int `yaml:"sustained_minutes" json:"sustained_minutes"`

	// QuietDecayHours bounds how far back a turbulent observation still
	// qualifies a reflective turn for the quiet-integration bonus.
	QuietDecayHours int `yaml:"quiet_decay_hours" json:"quiet_decay_hours"`

	// LogCapacity is the observation count that triggers pruning to half.
	LogCapacity int `yaml:"log_capacity" json:"log_capacity"`
}

// DetectorsConfig holds text signal detector thresholds.
type DetectorsConfig struct {
	// ShortMessageWords marks a user turn as terse below this word count.
	ShortMessageWords int `yaml:"short_message_words" json:"short_message_words"`

	// Meta-concept rolling-total thresholds (ascending).
	MetaWarning  int `yaml:"meta_warning" json:"meta_warning"`
	MetaDanger   int `yaml:"meta_danger" json:"meta_danger"`
	MetaCritical int `yaml:"meta_critical" json:"meta_critical"`
}

// LoopConfig holds tool-loop detector settings.
type LoopConfig struct {
	HistorySize          int `yaml:"history_size" json:"history_size"`
	ConsecutiveThreshold int `yaml:"consecutive_threshold" json:"consecutive_threshold"`
	RereadThreshold      int `yaml:"reread_threshold" json:"reread_threshold"`

	// ExemptTools are glob patterns for tools that never trigger detection.
	ExemptTools []string `yaml:"exempt_tools" json:"exempt_tools"`

	// ReadTools are glob patterns for tools whose path params count as reads.
	ReadTools []string `yaml:"read_tools" json:"read_tools"`
}

// VectorsConfig holds growth-vector ranking and lifecycle settings.
type VectorsConfig struct {
	RelevanceThreshold  float64  `yaml:"relevance_threshold" json:"relevance_threshold"`
	MaxInjected         int      `yaml:"max_injected" json:"max_injected"`
	CacheSeconds        int      `yaml:"cache_seconds" json:"cache_seconds"`
	CacheEntries        int      `yaml:"cache_entries" json:"cache_entries"`
	EntropyGate         float64  `yaml:"entropy_gate" json:"entropy_gate"`
	CorrelatedSources   []string `yaml:"correlated_sources" json:"correlated_sources"`
	FeedbackCap         float64  `yaml:"feedback_cap" json:"feedback_cap"`
	MinFeedbackEntries  int      `yaml:"min_feedback_entries" json:"min_feedback_entries"`
	MaxValidated        int      `yaml:"max_validated" json:"max_validated"`
	CandidateMaxAgeDays int      `yaml:"candidate_max_age_days" json:"candidate_max_age_days"`
	PromotionRecurrence int      `yaml:"promotion_recurrence" json:"promotion_recurrence"`
	DuplicateSimilarity float64  `yaml:"duplicate_similarity" json:"duplicate_similarity"`
}

// FeedbackConfig holds feedback loop settings.
type FeedbackConfig struct {
	// WindowSize is the rolling entry capacity per vector.
	WindowSize int `yaml:"window_size" json:"window_size"`
}

// GovernanceConfig holds autonomous-investigation budget settings.
type GovernanceConfig struct {
	MaxPerHour       int     `yaml:"max_per_hour" json:"max_per_hour"`
	MaxPerDay        int     `yaml:"max_per_day" json:"max_per_day"`
	DedupWindowHours int     `yaml:"dedup_window_hours" json:"dedup_window_hours"`
	DedupSimilarity  float64 `yaml:"dedup_similarity" json:"dedup_similarity"`

	// QuietStart and QuietEnd are local HH:MM times. Equal values disable
	// quiet hours.
	QuietStart string `yaml:"quiet_start" json:"quiet_start"`
	QuietEnd   string `yaml:"quiet_end" json:"quiet_end"`

	BatchSeconds int `yaml:"batch_seconds" json:"batch_seconds"`
}

// InjectConfig holds turn-start context injection settings.
type InjectConfig struct {
	// TokenBudget caps the injected block (estimated at 4 chars/token).
	TokenBudget int `yaml:"token_budget" json:"token_budget"`

	// MaxTensions caps active tensions listed in the block.
	MaxTensions int `yaml:"max_tensions" json:"max_tensions"`
}

// PathsConfig holds configurable paths for external documents.
type PathsConfig struct {
	// PrinciplesFile is the identity/principles document.
	// Default: IDENTITY.md
	PrinciplesFile string `yaml:"principles_file" json:"principles_file"`

	// TranscriptsDir is where Claude transcripts are located.
	// Default: ~/.claude/projects
	TranscriptsDir string `yaml:"transcripts_dir" json:"transcripts_dir"`
}

// MemoryConfig selects the external store backend.
type MemoryConfig struct {
	// Backend is one of "sqlite", "index", or "none".
	Backend string `yaml:"backend" json:"backend"`

	// Path is the database or index file. Relative paths resolve under BaseDir.
	Path string `yaml:"path" json:"path"`
}

// Patterns holds every phrase and regex table used by the detectors,
// scorer and tension tracker.
type Patterns struct {
	Correction       []string `yaml:"correction" json:"correction"`
	NovelConcepts    []string `yaml:"novel_concepts" json:"novel_concepts"`
	Emotional        []string `yaml:"emotional" json:"emotional"`
	Paradox          []string `yaml:"paradox" json:"paradox"`
	Realization      []string `yaml:"realization" json:"realization"`
	Settling         []string `yaml:"settling" json:"settling"`
	FuturePlan       []string `yaml:"future_plan" json:"future_plan"`
	AlreadyHappened  []string `yaml:"already_happened" json:"already_happened"`
	Conclusory       []string `yaml:"conclusory" json:"conclusory"`
	ForcedIntimacy   []string `yaml:"forced_intimacy" json:"forced_intimacy"`
	LegacyDeflection []string `yaml:"legacy_deflection" json:"legacy_deflection"`
	MetaConcepts     []string `yaml:"meta_concepts" json:"meta_concepts"`
	Acknowledgment   []string `yaml:"acknowledgment" json:"acknowledgment"`
	CapabilityClaim  []string `yaml:"capability_claim" json:"capability_claim"`
}

// Default config values (used in resolution and validation).
const (
	defaultOutput         = "table"
	defaultBaseDir        = ".agents/driftwatch"
	defaultMemoryBackend  = "sqlite"
	defaultPrinciplesFile = "IDENTITY.md"
)

// DefaultPatterns parses the embedded phrase tables.
func DefaultPatterns() (Patterns, error) {
	var p Patterns
	if err := yaml.Unmarshal(embedded.PatternsYAML, &p); err != nil {
		return Patterns{}, fmt.Errorf("%w: %v", ErrEmbeddedPatterns, err)
	}
	return p, nil
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	// The embedded table is covered by tests; an empty table only disables
	// phrase matching.
	patterns, _ := DefaultPatterns()
	return &Config{
		Output:  defaultOutput,
		BaseDir: defaultBaseDir,
		Entropy: EntropyConfig{
			CriticalThreshold: 1.0,
			SustainedMinutes:  45,
			QuietDecayHours:   6,
			LogCapacity:       500,
		},
		Detectors: DetectorsConfig{
			ShortMessageWords: 15,
			MetaWarning:       10,
			MetaDanger:        14,
			MetaCritical:      16,
		},
		Loop: LoopConfig{
			HistorySize:          20,
			ConsecutiveThreshold: 5,
			RereadThreshold:      3,
			ExemptTools:          []string{"TodoWrite", "mcp__memory__*"},
			ReadTools:            []string{"Read", "read_file", "NotebookRead", "mcp__filesystem__read*"},
		},
		Vectors: VectorsConfig{
			RelevanceThreshold:  0.65,
			MaxInjected:         2,
			CacheSeconds:        30,
			CacheEntries:        8,
			EntropyGate:         0.4,
			CorrelatedSources:   []string{"correction", "temporal_mismatch", "quality_decay", "recursive_meta"},
			FeedbackCap:         0.1,
			MinFeedbackEntries:  3,
			MaxValidated:        100,
			CandidateMaxAgeDays: 30,
			PromotionRecurrence: 3,
			DuplicateSimilarity: 0.7,
		},
		Feedback: FeedbackConfig{
			WindowSize: 10,
		},
		Governance: GovernanceConfig{
			MaxPerHour:       3,
			MaxPerDay:        10,
			DedupWindowHours: 6,
			DedupSimilarity:  0.8,
			QuietStart:       "22:00",
			QuietEnd:         "07:00",
			BatchSeconds:     30,
		},
		Inject: InjectConfig{
			TokenBudget: 1500,
			MaxTensions: 3,
		},
		Paths: PathsConfig{
			PrinciplesFile: defaultPrinciplesFile,
			TranscriptsDir: filepath.Join(homeDir, ".claude", "projects"),
		},
		Memory: MemoryConfig{
			Backend: defaultMemoryBackend,
			Path:    "memory.db",
		},
		Patterns: patterns,
	}
}

// Load loads configuration with proper precedence and validates the result.
// Priority: flags > env > project > home > defaults
func Load(flagOverrides *Config) (*Config, error) {
	cfg := Default()

	// Load home config
	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	// Load project config
	projectConfig, err := loadFromPath(projectConfigPath())
	if err != nil {
		return nil, err
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	// Apply environment variables
	cfg = applyEnv(cfg)

	// Apply flag overrides
	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".driftwatch", "config.yaml")
}

// projectConfigPath returns the project config path.
func projectConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("DRIFTWATCH_CONFIG")); override != "" {
		return override
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, ".driftwatch", "config.yaml")
}

// loadFromPath loads config from a YAML file. A missing file is not an
// error; a malformed one is.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) *Config {
	if v := os.Getenv("DRIFTWATCH_OUTPUT"); v != "" {
		cfg.Output = v
	}
	if v := os.Getenv("DRIFTWATCH_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v, ok := getEnvBool("DRIFTWATCH_VERBOSE"); ok {
		cfg.Verbose = v
	}
	if v, ok := getEnvFloat("DRIFTWATCH_CRITICAL_THRESHOLD"); ok {
		cfg.Entropy.CriticalThreshold = v
	}
	if v, ok := getEnvInt("DRIFTWATCH_SUSTAINED_MINUTES"); ok {
		cfg.Entropy.SustainedMinutes = v
	}
	if v, ok := getEnvInt("DRIFTWATCH_MAX_INJECTED"); ok {
		cfg.Vectors.MaxInjected = v
	}
	if v := os.Getenv("DRIFTWATCH_MEMORY_BACKEND"); v != "" {
		cfg.Memory.Backend = v
	}
	if v := os.Getenv("DRIFTWATCH_PRINCIPLES_FILE"); v != "" {
		cfg.Paths.PrinciplesFile = v
	}
	if v := os.Getenv("DRIFTWATCH_QUIET_HOURS"); v != "" {
		if start, end, found := strings.Cut(v, "-"); found {
			cfg.Governance.QuietStart = strings.TrimSpace(start)
			cfg.Governance.QuietEnd = strings.TrimSpace(end)
		}
	}
	return cfg
}

// getEnvString returns the value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

func getEnvInt(key string) (int, bool) {
	v, ok := getEnvString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvFloat(key string) (float64, bool) {
	v, ok := getEnvString(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeFloat overwrites dst with src when src is non-zero.
func mergeFloat(dst *float64, src float64) {
	if src != 0 {
		*dst = src
	}
}

// mergeList replaces dst with src when src is non-empty.
func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = append([]string(nil), src...)
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Output, src.Output)
	mergeStr(&dst.BaseDir, src.BaseDir)
	if src.Verbose {
		dst.Verbose = true
	}

	mergeEntropy(&dst.Entropy, &src.Entropy)
	mergeDetectors(&dst.Detectors, &src.Detectors)
	mergeLoop(&dst.Loop, &src.Loop)
	mergeVectors(&dst.Vectors, &src.Vectors)
	mergeInt(&dst.Feedback.WindowSize, src.Feedback.WindowSize)
	mergeGovernance(&dst.Governance, &src.Governance)
	mergeInt(&dst.Inject.TokenBudget, src.Inject.TokenBudget)
	mergeInt(&dst.Inject.MaxTensions, src.Inject.MaxTensions)
	mergeStr(&dst.Paths.PrinciplesFile, src.Paths.PrinciplesFile)
	mergeStr(&dst.Paths.TranscriptsDir, src.Paths.TranscriptsDir)
	mergeStr(&dst.Memory.Backend, src.Memory.Backend)
	mergeStr(&dst.Memory.Path, src.Memory.Path)
	mergePatterns(&dst.Patterns, &src.Patterns)

	return dst
}

func mergeEntropy(dst, src *EntropyConfig) {
	mergeFloat(&dst.CriticalThreshold, src.CriticalThreshold)
	mergeInt(&dst.SustainedMinutes, src.SustainedMinutes)
	mergeInt(&dst.QuietDecayHours, src.QuietDecayHours)
	mergeInt(&dst.LogCapacity, src.LogCapacity)
}

func mergeDetectors(dst, src *DetectorsConfig) {
	mergeInt(&dst.ShortMessageWords, src.ShortMessageWords)
	mergeInt(&dst.MetaWarning, src.MetaWarning)
	mergeInt(&dst.MetaDanger, src.MetaDanger)
	mergeInt(&dst.MetaCritical, src.MetaCritical)
}

func mergeLoop(dst, src *LoopConfig) {
	mergeInt(&dst.HistorySize, src.HistorySize)
	mergeInt(&dst.ConsecutiveThreshold, src.ConsecutiveThreshold)
	mergeInt(&dst.RereadThreshold, src.RereadThreshold)
	mergeList(&dst.ExemptTools, src.ExemptTools)
	mergeList(&dst.ReadTools, src.ReadTools)
}

func mergeVectors(dst, src *VectorsConfig) {
	mergeFloat(&dst.RelevanceThreshold, src.RelevanceThreshold)
	mergeInt(&dst.MaxInjected, src.MaxInjected)
	mergeInt(&dst.CacheSeconds, src.CacheSeconds)
	mergeInt(&dst.CacheEntries, src.CacheEntries)
	mergeFloat(&dst.EntropyGate, src.EntropyGate)
	mergeList(&dst.CorrelatedSources, src.CorrelatedSources)
	mergeFloat(&dst.FeedbackCap, src.FeedbackCap)
	mergeInt(&dst.MinFeedbackEntries, src.MinFeedbackEntries)
	mergeInt(&dst.MaxValidated, src.MaxValidated)
	mergeInt(&dst.CandidateMaxAgeDays, src.CandidateMaxAgeDays)
	mergeInt(&dst.PromotionRecurrence, src.PromotionRecurrence)
	mergeFloat(&dst.DuplicateSimilarity, src.DuplicateSimilarity)
}

func mergeGovernance(dst, src *GovernanceConfig) {
	mergeInt(&dst.MaxPerHour, src.MaxPerHour)
	mergeInt(&dst.MaxPerDay, src.MaxPerDay)
	mergeInt(&dst.DedupWindowHours, src.DedupWindowHours)
	mergeFloat(&dst.DedupSimilarity, src.DedupSimilarity)
	mergeStr(&dst.QuietStart, src.QuietStart)
	mergeStr(&dst.QuietEnd, src.QuietEnd)
	mergeInt(&dst.BatchSeconds, src.BatchSeconds)
}

func mergePatterns(dst, src *Patterns) {
	mergeList(&dst.Correction, src.Correction)
	mergeList(&dst.NovelConcepts, src.NovelConcepts)
	mergeList(&dst.Emotional, src.Emotional)
	mergeList(&dst.Paradox, src.Paradox)
	mergeList(&dst.Realization, src.Realization)
	mergeList(&dst.Settling, src.Settling)
	mergeList(&dst.FuturePlan, src.FuturePlan)
	mergeList(&dst.AlreadyHappened, src.AlreadyHappened)
	mergeList(&dst.Conclusory, src.Conclusory)
	mergeList(&dst.ForcedIntimacy, src.ForcedIntimacy)
	mergeList(&dst.LegacyDeflection, src.LegacyDeflection)
	mergeList(&dst.MetaConcepts, src.MetaConcepts)
	mergeList(&dst.Acknowledgment, src.Acknowledgment)
	mergeList(&dst.CapabilityClaim, src.CapabilityClaim)
}

// SustainedDuration returns the sustained-entropy threshold as a duration.
func (c EntropyConfig) SustainedDuration() time.Duration {
	return time.Duration(c.SustainedMinutes) * time.Minute
}

// QuietDecay returns the quiet-integration decay window.
func (c EntropyConfig) QuietDecay() time.Duration {
	return time.Duration(c.QuietDecayHours) * time.Hour
}

// CacheTTL returns the vector-collection freshness window.
func (c VectorsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheSeconds) * time.Second
}

// CandidateMaxAge returns the age after which unpromoted candidates are pruned.
func (c VectorsConfig) CandidateMaxAge() time.Duration {
	return time.Duration(c.CandidateMaxAgeDays) * 24 * time.Hour
}

// DedupWindow returns the topic deduplication window.
func (c GovernanceConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowHours) * time.Hour
}

// BatchDelay returns the notification debounce delay.
func (c GovernanceConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchSeconds) * time.Second
}

// MemoryPath returns the memory store path, resolved under BaseDir when relative.
func (c *Config) MemoryPath() string {
	if c.Memory.Path == "" || filepath.IsAbs(c.Memory.Path) {
		return c.Memory.Path
	}
	return filepath.Join(c.BaseDir, c.Memory.Path)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.driftwatch/config.yaml"
	SourceProject Source = ".driftwatch/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	// Start with default
	result := resolved{Value: def, Source: SourceDefault}

	// Home config overrides default
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}

	// Project config overrides home
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}

	// Environment overrides project
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}

	// Flag overrides everything (if set)
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}

	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Output         resolved `json:"output"`
	BaseDir        resolved `json:"base_dir"`
	Verbose        resolved `json:"verbose"`
	MemoryBackend  resolved `json:"memory_backend"`
	PrinciplesFile resolved `json:"principles_file"`
	QuietStart     resolved `json:"quiet_start"`
	QuietEnd       resolved `json:"quiet_end"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking.
// Uses precedence chain: flags > env > project > home > defaults.
func Resolve(flagOutput, flagBaseDir string, flagVerbose bool) *ResolvedConfig {
	homeConfig, _ := loadFromPath(homeConfigPath())
	projectConfig, _ := loadFromPath(projectConfigPath())
	if homeConfig == nil {
		homeConfig = &Config{}
	}
	if projectConfig == nil {
		projectConfig = &Config{}
	}

	envOutput, _ := getEnvString("DRIFTWATCH_OUTPUT")
	envBaseDir, _ := getEnvString("DRIFTWATCH_BASE_DIR")
	envVerbose, envVerboseSet := getEnvBool("DRIFTWATCH_VERBOSE")
	envBackend, _ := getEnvString("DRIFTWATCH_MEMORY_BACKEND")
	envPrinciples, _ := getEnvString("DRIFTWATCH_PRINCIPLES_FILE")
	var envQuietStart, envQuietEnd string
	if v, ok := getEnvString("DRIFTWATCH_QUIET_HOURS"); ok {
		if start, end, found := strings.Cut(v, "-"); found {
			envQuietStart, envQuietEnd = strings.TrimSpace(start), strings.TrimSpace(end)
		}
	}

	def := Default()
	rc := &ResolvedConfig{
		Output:         resolveStringField(homeConfig.Output, projectConfig.Output, envOutput, flagOutput, defaultOutput),
		BaseDir:        resolveStringField(homeConfig.BaseDir, projectConfig.BaseDir, envBaseDir, flagBaseDir, defaultBaseDir),
		Verbose:        resolved{Value: false, Source: SourceDefault},
		MemoryBackend:  resolveStringField(homeConfig.Memory.Backend, projectConfig.Memory.Backend, envBackend, "", defaultMemoryBackend),
		PrinciplesFile: resolveStringField(homeConfig.Paths.PrinciplesFile, projectConfig.Paths.PrinciplesFile, envPrinciples, "", defaultPrinciplesFile),
		QuietStart:     resolveStringField(homeConfig.Governance.QuietStart, projectConfig.Governance.QuietStart, envQuietStart, "", def.Governance.QuietStart),
		QuietEnd:       resolveStringField(homeConfig.Governance.QuietEnd, projectConfig.Governance.QuietEnd, envQuietEnd, "", def.Governance.QuietEnd),
	}

	// Resolve verbose (boolean with OR semantics through chain)
	if homeConfig.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceHome}
	}
	if projectConfig.Verbose {
		rc.Verbose = resolved{Value: true, Source: SourceProject}
	}
	if envVerboseSet && envVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceEnv}
	}
	if flagVerbose {
		rc.Verbose = resolved{Value: true, Source: SourceFlag}
	}

	return rc
}
