package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. MEDSCRY_SERVER_PORT.
const EnvPrefix = "MEDSCRY"

// defaults lists every configuration key with its default. Registering each key
// lets viper resolve it from the environment during Unmarshal.
var defaults = map[string]interface{}{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 15 * time.Second,

	"database.url":            "",
	"database.max_open_conns": 10,

	"redis.addr":     "",
	"redis.db":       0,
	"redis.lock_ttl": 10 * time.Second,

	"auth.jwt_secret": "",

	"content.seed_file": "",

	"engine.start_band": "B",

	"engine.srs.min_interval_days":    0,
	"engine.srs.max_interval_days":    0,
	"engine.srs.growth_rate":          0.0,
	"engine.srs.lapse_factor":         0.0,
	"engine.srs.min_stability":        0.0,
	"engine.srs.leech_threshold":      0,
	"engine.srs.leech_clear_streak":   0,
	"engine.srs.hint_penalty":         0,
	"engine.srs.slow_ratio":           0.0,
	"engine.srs.correct_grade_floor":  0,
	"engine.srs.default_expected_sec": 0,

	"engine.band.window_size":         0,
	"engine.band.promote_min_samples": 0,
	"engine.band.promote_accuracy":    0.0,
	"engine.band.demote_min_samples":  0,
	"engine.band.demote_accuracy":     0.0,

	"engine.gate.min_cards":           0,
	"engine.gate.mean_stability":      0.0,
	"engine.gate.stability_floor":     0.0,
	"engine.gate.max_criterion_score": 0,
	"engine.gate.passing_score":       0.0,

	"engine.recovery.history_days":         0,
	"engine.recovery.difficult_accuracy":   0.0,
	"engine.recovery.difficult_hint_ratio": 0.0,
	"engine.recovery.trigger_days":         0,
	"engine.recovery.exit_accuracy":        0.0,

	"engine.mix.budget_minutes":             0,
	"engine.mix.new_slice_minutes":          0,
	"engine.mix.recovery_new_slice_minutes": 0,
	"engine.mix.interleave_slice_minutes":   0,
	"engine.mix.max_interleave_per_domain":  0,
	"engine.mix.weak_accuracy":              0.0,
	"engine.mix.weak_min_items":             0,
	"engine.mix.max_weak_domains":           0,
	"engine.mix.dominance_margin":           0.0,
	"engine.mix.default_item_seconds":       0,

	"engine.persistence.max_retries": 3,
	"engine.persistence.base_delay":  50 * time.Millisecond,
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom loads configuration through a caller-supplied viper instance,
// letting tests inject values without touching the process environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
