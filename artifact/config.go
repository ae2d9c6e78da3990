package artifact

import (
	"os"
	"strings"

	"github.com/evfleet/sohcast/fault"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const defaultNKnown = 6

// Config names the feature columns consumed by the sequence model and scalers
// and the default lookback window length.
type Config struct {
	// UseFeatures is the ordered feature column list. It defines the column
	// order of every feature matrix built downstream.
	UseFeatures []string `json:"use_features"`
	// NKnownDefault is the lookback window used when a request omits n_known.
	NKnownDefault int `json:"n_known_default"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.NKnownDefault <= 0 {
		c.NKnownDefault = defaultNKnown
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if len(c.UseFeatures) == 0 {
		return fault.New(fault.KindSchemaMismatch, "feature config has no use_features")
	}
	return nil
}

// LoadConfig reads the feature configuration JSON, with SOHCAST_ prefixed
// environment variables taking precedence over file values.
func LoadConfig(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Config{}, fault.Wrap(fault.KindNotFound, err, "feature config %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return Config{}, fault.Wrap(fault.KindSchemaMismatch, err, "unable to parse feature config %s", path)
	}
	if err := k.Load(env.Provider("SOHCAST_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "sohcast_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return Config{}, fault.Wrap(fault.KindSchemaMismatch, err, "unable to decode feature config %s", path)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
