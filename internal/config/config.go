// Package config loads knoldrill's configuration from defaults, an optional
// YAML file, KNOLDRILL_ environment variables and command line flags, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/knoldrill/internal/confidence"
	"github.com/conorfennell/knoldrill/internal/domain"
	"github.com/conorfennell/knoldrill/internal/reviewdue"
)

// EnvPrefix prefixes every environment variable. Nested keys are separated
// by a double underscore: KNOLDRILL_STORAGE__PATH sets storage.path.
const EnvPrefix = "KNOLDRILL_"

// Config holds all configuration for the application.
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Storage    StorageConfig    `koanf:"storage"`
	ReposDir   string           `koanf:"repos_dir" validate:"required"`
	Server     ServerConfig     `koanf:"server"`
	Outbox     OutboxConfig     `koanf:"outbox"`
	Mastery    MasteryConfig    `koanf:"mastery"`
	Confidence ConfidenceConfig `koanf:"confidence"`
	Review     reviewdue.Config `koanf:"review"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// StorageConfig holds the sqlite database location.
type StorageConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

// OutboxConfig selects where snapshots are delivered. An empty AMQPURL with
// the amqp or both sink leaves broker publishing disabled.
type OutboxConfig struct {
	Sink         string        `koanf:"sink" validate:"oneof=sqlite amqp both"`
	AMQPURL      string        `koanf:"amqp_url"`
	Exchange     string        `koanf:"exchange"`
	Retries      int           `koanf:"retries" validate:"gte=0"`
	Backoff      time.Duration `koanf:"backoff" validate:"gte=0"`
	CloseTimeout time.Duration `koanf:"close_timeout" validate:"gt=0"`
}

// MasteryConfig holds mastery drill settings.
type MasteryConfig struct {
	ReinsertDistance int `koanf:"reinsert_distance" validate:"gte=0"`
}

// ConfidenceConfig holds confidence queue settings.
type ConfidenceConfig struct {
	Preset confidence.Preset `koanf:"preset" validate:"oneof=fibonacci deep_drill leitner custom"`
	// Intervals maps rating names to distances for the custom preset.
	Intervals map[string]int `koanf:"intervals"`
	// NewWordCount caps never-rated items in a new queue. Zero means no cap.
	NewWordCount int `koanf:"new_word_count" validate:"gte=0"`
}

// IntervalConfig resolves the configured preset.
func (c ConfidenceConfig) IntervalConfig() (confidence.IntervalConfig, error) {
	if c.Preset != confidence.PresetCustom {
		return confidence.PresetIntervals(c.Preset)
	}
	values := make(map[domain.Rating]int, len(c.Intervals))
	for name, v := range c.Intervals {
		r, err := domain.ParseRating(strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("confidence.intervals: %w", err)
		}
		values[r] = v
	}
	return confidence.NewIntervalConfig(values), nil
}

// NewWordLimit returns the cap on new items, nil when unlimited.
func (c ConfidenceConfig) NewWordLimit() *int {
	if c.NewWordCount <= 0 {
		return nil
	}
	n := c.NewWordCount
	return &n
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Storage:  StorageConfig{Path: "knoldrill.db"},
		ReposDir: "repos",
		Server:   ServerConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Outbox: OutboxConfig{
			Sink:         "sqlite",
			Retries:      3,
			Backoff:      200 * time.Millisecond,
			CloseTimeout: 5 * time.Second,
		},
		Mastery:    MasteryConfig{ReinsertDistance: 2},
		Confidence: ConfidenceConfig{Preset: confidence.PresetFibonacci},
		Review:     reviewdue.DefaultConfig(),
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"db":                "storage.path",
	"log-level":         "log.level",
	"log-format":        "log.format",
	"addr":              "server.addr",
	"repos-dir":         "repos_dir",
	"outbox-sink":       "outbox.sink",
	"amqp-url":          "outbox.amqp_url",
	"reinsert-distance": "mastery.reinsert_distance",
	"preset":            "confidence.preset",
	"new-word-count":    "confidence.new_word_count",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("db", d.Storage.Path, "Path to the SQLite database file")
	fs.String("log-level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "Log format: text or json")
	fs.String("addr", d.Server.Addr, "HTTP listen address")
	fs.String("repos-dir", d.ReposDir, "Directory for cloned git sources")
	fs.String("outbox-sink", d.Outbox.Sink, "Snapshot sink: sqlite, amqp or both")
	fs.String("amqp-url", "", "AMQP broker URL for the amqp sink")
	fs.Int("reinsert-distance", d.Mastery.ReinsertDistance, "Slots a missed item moves back in mastery drills")
	fs.String("preset", string(d.Confidence.Preset), "Confidence interval preset: fibonacci, deep_drill, leitner or custom")
	fs.Int("new-word-count", 0, "Cap on new items in a fresh confidence queue, 0 for no cap")
}

// Load builds the configuration. fs may be nil; when set it must have been
// prepared with RegisterFlags and parsed. Only flags set explicitly override
// the file and the environment.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path := os.Getenv(EnvPrefix + "CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key == "config" {
			return ""
		}
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if fs != nil {
		err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, f.Value.String()
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("error reading flags: %w", err)
		}
	}

	cfg := Default()
	err = k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			// Lists from a source replace the defaults instead of
			// overwriting them element by element.
			ZeroFields:       true,
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Confidence.IntervalConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
