package mot

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MatchingAlgorithm is for algorithm type for matching observations to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment
	MatchingAlgorithmHungarian MatchingAlgorithm = iota
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	case MatchingAlgorithmGreedy:
		return "greedy"
	default:
		return "unknown"
	}
}

// MarshalYAML implements yaml.Marshaler
func (algorithm MatchingAlgorithm) MarshalYAML() (interface{}, error) {
	return algorithm.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (algorithm *MatchingAlgorithm) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "hungarian", "":
		*algorithm = MatchingAlgorithmHungarian
	case "greedy":
		*algorithm = MatchingAlgorithmGreedy
	default:
		return errors.Errorf("unknown matching algorithm %q", value.Value)
	}
	return nil
}

// Chamber is two-region chamber geometry: the expected centers of the left and right object
type Chamber struct {
	Centers [2]Point `yaml:"centers"`
}

// SplitX returns vertical coordinate separating the two regions
func (chamber Chamber) SplitX() float64 {
	return (chamber.Centers[0].X + chamber.Centers[1].X) / 2
}

// Config holds every tunable threshold of the tracker. It is passed by value and never mutated by the tracker.
type Config struct {
	// Shape gates (pixels²)
	MinShapeArea float64 `yaml:"min_shape_area"`
	MaxShapeArea float64 `yaml:"max_shape_area"` // 0 disables the upper bound

	// Assignment gates (pixels)
	MaxJump      float64 `yaml:"max_jump"`
	MaxJumpSplit float64 `yaml:"max_jump_split"`
	// Fraction of the last velocity dropped when predicting next position, [0, 1]
	Dampen float64 `yaml:"dampen"`
	// Weight of squared orientation difference in the default cost
	AngleWeight float64           `yaml:"angle_weight"`
	Matching    MatchingAlgorithm `yaml:"matching"`

	// Hindsight window lengths (frames). Zero disables the rule
	LostDetectionLength     int `yaml:"lost_detection_length"`
	SpuriousDetectionLength int `yaml:"spurious_detection_length"`
	MergedDetectionLength   int `yaml:"merged_detection_length"`
	SplitDetectionLength    int `yaml:"split_detection_length"`

	// Shadow detector
	UseShadowDetector     bool     `yaml:"use_shadow_detector"`
	ShadowDetectorMinArea float64  `yaml:"shadow_detector_min_area"`
	Chamber               *Chamber `yaml:"chamber,omitempty"`

	// Background model
	RecalcNFrames       int     `yaml:"recalc_n_frames"` // 0 disables recalculation
	BackgroundThreshold float64 `yaml:"background_threshold"`
	BackgroundFrames    int     `yaml:"background_frames"`
	MergeGap            int     `yaml:"merge_gap"` // 0 disables grouping of nearby components

	DiagnosticsInterval int `yaml:"diagnostics_interval"` // 0 disables periodic snapshots
	Workers             int `yaml:"workers"`
}

// DefaultConfig returns reference configuration
func DefaultConfig() Config {
	return Config{
		MinShapeArea:            10,
		MaxShapeArea:            0,
		MaxJump:                 20,
		MaxJumpSplit:            30,
		Dampen:                  0,
		AngleWeight:             0,
		Matching:                MatchingAlgorithmHungarian,
		LostDetectionLength:     50,
		SpuriousDetectionLength: 20,
		MergedDetectionLength:   50,
		SplitDetectionLength:    50,
		UseShadowDetector:       false,
		ShadowDetectorMinArea:   0,
		RecalcNFrames:           0,
		BackgroundThreshold:     25,
		BackgroundFrames:        50,
		MergeGap:                0,
		DiagnosticsInterval:     100,
		Workers:                 1,
	}
}

// MaxLookback returns the number of frames hindsight may reach back
func (cfg Config) MaxLookback() int {
	return maxInt(maxInt(cfg.LostDetectionLength, cfg.SpuriousDetectionLength), maxInt(cfg.MergedDetectionLength, cfg.SplitDetectionLength))
}

// Validate checks configuration for consistency
func (cfg Config) Validate() error {
	switch {
	case cfg.MinShapeArea < 0:
		return errors.Errorf("min_shape_area must be non-negative, got %v", cfg.MinShapeArea)
	case cfg.MaxShapeArea < 0:
		return errors.Errorf("max_shape_area must be non-negative, got %v", cfg.MaxShapeArea)
	case cfg.MaxShapeArea > 0 && cfg.MaxShapeArea < cfg.MinShapeArea:
		return errors.Errorf("max_shape_area %v is below min_shape_area %v", cfg.MaxShapeArea, cfg.MinShapeArea)
	case cfg.MaxJump <= 0:
		return errors.Errorf("max_jump must be positive, got %v", cfg.MaxJump)
	case cfg.MaxJumpSplit < cfg.MaxJump:
		return errors.Errorf("max_jump_split %v must not be below max_jump %v", cfg.MaxJumpSplit, cfg.MaxJump)
	case cfg.Dampen < 0 || cfg.Dampen > 1:
		return errors.Errorf("dampen must be within [0, 1], got %v", cfg.Dampen)
	case cfg.AngleWeight < 0:
		return errors.Errorf("angle_weight must be non-negative, got %v", cfg.AngleWeight)
	case cfg.LostDetectionLength < 0, cfg.SpuriousDetectionLength < 0, cfg.MergedDetectionLength < 0, cfg.SplitDetectionLength < 0:
		return errors.New("hindsight lengths must be non-negative")
	case cfg.UseShadowDetector && cfg.Chamber == nil:
		return errors.New("use_shadow_detector requires chamber geometry")
	case cfg.ShadowDetectorMinArea < 0:
		return errors.Errorf("shadow_detector_min_area must be non-negative, got %v", cfg.ShadowDetectorMinArea)
	case cfg.RecalcNFrames < 0:
		return errors.Errorf("recalc_n_frames must be non-negative, got %d", cfg.RecalcNFrames)
	case cfg.BackgroundFrames < 1:
		return errors.Errorf("background_frames must be positive, got %d", cfg.BackgroundFrames)
	case cfg.MergeGap < 0:
		return errors.Errorf("merge_gap must be non-negative, got %d", cfg.MergeGap)
	case cfg.DiagnosticsInterval < 0:
		return errors.Errorf("diagnostics_interval must be non-negative, got %d", cfg.DiagnosticsInterval)
	case cfg.Workers < 1:
		return errors.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	return nil
}

// LoadConfig reads YAML configuration. Fields omitted from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration on top of DefaultConfig
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
