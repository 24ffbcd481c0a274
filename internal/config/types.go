// Package config provides configuration loading for wisdomd.
package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so YAML values like "24h" unmarshal cleanly.
type Duration time.Duration

// UnmarshalText parses a duration string ("30s", "24h").
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in time.Duration string form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root wisdomd configuration.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Store   StoreConfig   `koanf:"store"`
	Graph   GraphConfig   `koanf:"graph"`
	Flow    FlowConfig    `koanf:"flow"`
	Compose ComposeConfig `koanf:"compose"`
	Distill DistillConfig `koanf:"distill"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`

	// Fields are constant fields attached to every log line.
	Fields map[string]string `koanf:"fields"`
}

// StoreConfig selects and configures the content store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `koanf:"driver"`

	// Path is the SQLite database file path. Ignored for the memory driver.
	Path string `koanf:"path"`
}

// GraphConfig holds the reference application graph tunables.
//
// The numeric values are empirically chosen, not derived; treat them as
// knobs, not invariants.
type GraphConfig struct {
	// LearningRate is the exponential update step applied to edge weight
	// on each feedback signal.
	LearningRate float64 `koanf:"learning_rate"`

	// PriorPositive and PriorNegative are the Beta prior pseudo-counts
	// used in the confidence estimate.
	PriorPositive float64 `koanf:"prior_positive"`
	PriorNegative float64 `koanf:"prior_negative"`

	// ConfidenceSampleSize is the signal count at which the sample-size
	// factor saturates at 1.0.
	ConfidenceSampleSize int `koanf:"confidence_sample_size"`

	// MinRecommendConfidence is the confidence floor below which an edge
	// is excluded from recommendations.
	MinRecommendConfidence float64 `koanf:"min_recommend_confidence"`

	// ExplorationBonus is added to the composite score of under-sampled
	// edges so they are not permanently starved.
	ExplorationBonus float64 `koanf:"exploration_bonus"`

	// ExplorationShowThreshold is the times-shown count below which an
	// edge receives the exploration bonus.
	ExplorationShowThreshold int `koanf:"exploration_show_threshold"`

	// SeedWeight and SeedConfidence are the initial values for a freshly
	// created edge.
	SeedWeight     float64 `koanf:"seed_weight"`
	SeedConfidence float64 `koanf:"seed_confidence"`

	// DecayRatePerDay is how far a stale edge's weight moves toward
	// neutral (0.5) per day of staleness.
	DecayRatePerDay float64 `koanf:"decay_rate_per_day"`

	// StaleAfter is how long an edge may go without an update before the
	// decay pass touches it.
	StaleAfter Duration `koanf:"stale_after"`

	// DecayInterval is how often the background decay scheduler runs.
	DecayInterval Duration `koanf:"decay_interval"`
}

// FlowConfig holds the conversation flow engine tunables.
type FlowConfig struct {
	// MinTurnsPerPhase is how many turns a session spends in a phase
	// before the engine advances it.
	MinTurnsPerPhase int `koanf:"min_turns_per_phase"`

	// CrisisIntents force an unconditional reset to the CONNECT phase.
	CrisisIntents []string `koanf:"crisis_intents"`

	// CrisisKeywords in entities likewise force a reset to CONNECT.
	CrisisKeywords []string `koanf:"crisis_keywords"`

	// AdviceIntents qualify a session for an early jump into GUIDE.
	AdviceIntents []string `koanf:"advice_intents"`
}

// ComposeConfig holds the response composition engine tunables.
type ComposeConfig struct {
	// MinConfidence is the usability threshold below which the composer
	// declines and the caller falls back to the LLM.
	MinConfidence float64 `koanf:"min_confidence"`

	// AtomWeight, TemplateWeight and CoverageWeight blend the three
	// confidence components. They should sum to 1.0.
	AtomWeight     float64 `koanf:"atom_weight"`
	TemplateWeight float64 `koanf:"template_weight"`
	CoverageWeight float64 `koanf:"coverage_weight"`

	// DeactivateSuccessRate is the success rate below which a template is
	// deactivated, once it has DeactivateMinSamples uses.
	DeactivateSuccessRate float64 `koanf:"deactivate_success_rate"`
	DeactivateMinSamples  int     `koanf:"deactivate_min_samples"`
}

// DistillConfig holds the distillation pipeline tunables.
type DistillConfig struct {
	// MinSegmentLength is the minimum rune length for a segment to become
	// an atom. Shorter spans are noise.
	MinSegmentLength int `koanf:"min_segment_length"`

	// MaxAtomsPerResponse caps how many atoms one LLM response may yield.
	MaxAtomsPerResponse int `koanf:"max_atoms_per_response"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "wisdomd.db",
		},
		Graph: GraphConfig{
			LearningRate:             0.1,
			PriorPositive:            1.0,
			PriorNegative:            1.0,
			ConfidenceSampleSize:     50,
			MinRecommendConfidence:   0.15,
			ExplorationBonus:         0.05,
			ExplorationShowThreshold: 5,
			SeedWeight:               0.5,
			SeedConfidence:           0.1,
			DecayRatePerDay:          0.005,
			StaleAfter:               Duration(14 * 24 * time.Hour),
			DecayInterval:            Duration(24 * time.Hour),
		},
		Flow: FlowConfig{
			MinTurnsPerPhase: 2,
			CrisisIntents:    []string{"crisis", "self_harm", "emergency"},
			CrisisKeywords:   []string{"suicide", "hurt myself", "end it all"},
			AdviceIntents:    []string{"seek_advice", "ask_guidance", "what_should_i_do"},
		},
		Compose: ComposeConfig{
			MinConfidence:         0.55,
			AtomWeight:            0.4,
			TemplateWeight:        0.3,
			CoverageWeight:        0.3,
			DeactivateSuccessRate: 0.3,
			DeactivateMinSamples:  10,
		},
		Distill: DistillConfig{
			MinSegmentLength:    12,
			MaxAtomsPerResponse: 10,
		},
	}
}

// Validate checks invariants the engines rely on.
func (c *Config) Validate() error {
	if c.Graph.LearningRate <= 0 || c.Graph.LearningRate >= 1 {
		return fmt.Errorf("graph.learning_rate must be in (0,1), got %v", c.Graph.LearningRate)
	}
	if c.Graph.SeedWeight < 0 || c.Graph.SeedWeight > 1 {
		return fmt.Errorf("graph.seed_weight must be in [0,1], got %v", c.Graph.SeedWeight)
	}
	if c.Graph.SeedConfidence < 0 || c.Graph.SeedConfidence > 1 {
		return fmt.Errorf("graph.seed_confidence must be in [0,1], got %v", c.Graph.SeedConfidence)
	}
	if c.Graph.ConfidenceSampleSize <= 0 {
		return fmt.Errorf("graph.confidence_sample_size must be positive, got %d", c.Graph.ConfidenceSampleSize)
	}
	if c.Graph.DecayRatePerDay < 0 {
		return fmt.Errorf("graph.decay_rate_per_day must be non-negative, got %v", c.Graph.DecayRatePerDay)
	}
	if c.Flow.MinTurnsPerPhase <= 0 {
		return fmt.Errorf("flow.min_turns_per_phase must be positive, got %d", c.Flow.MinTurnsPerPhase)
	}
	if c.Compose.MinConfidence < 0 || c.Compose.MinConfidence > 1 {
		return fmt.Errorf("compose.min_confidence must be in [0,1], got %v", c.Compose.MinConfidence)
	}
	sum := c.Compose.AtomWeight + c.Compose.TemplateWeight + c.Compose.CoverageWeight
	if sum <= 0 {
		return fmt.Errorf("compose confidence weights must sum to a positive value, got %v", sum)
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver)
	}
	return nil
}
