package sohcast

import (
	"errors"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrNoFeatureCSV = errors.New("feature_csv is required")
	ErrNoArtifacts  = errors.New("artifact_dir is required")
)

// Config locates the backing files of the engine.
type Config struct {
	// FeatureCSV is the path of the master per-vehicle monthly feature table.
	FeatureCSV string `json:"feature_csv"`
	// ArtifactDir holds the feature config and the five fitted artifacts.
	ArtifactDir string `json:"artifact_dir"`
	// StaticCacheDir holds the trained static baseline bundles. Defaults to
	// ArtifactDir.
	StaticCacheDir string `json:"static_cache_dir"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.StaticCacheDir == "" {
		c.StaticCacheDir = c.ArtifactDir
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.FeatureCSV == "" {
		return ErrNoFeatureCSV
	}
	if c.ArtifactDir == "" {
		return ErrNoArtifacts
	}
	return nil
}

// LoadConfig reads an engine config JSON file, with SOHCAST_ prefixed
// environment variables taking precedence over file values.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("SOHCAST_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sohcast_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
