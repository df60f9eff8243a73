package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Content  ContentConfig  `mapstructure:"content"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL runs the engine on in-memory stores.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// RedisConfig configures the distributed learner lock.
// An empty Addr falls back to an in-process lock.
type RedisConfig struct {
	Addr    string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	DB      int           `mapstructure:"db" validate:"gte=0"`
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// ContentConfig points at a JSON seed for the in-memory content catalog.
type ContentConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// EngineConfig carries the progression engine thresholds.
// A zero value keeps the built-in default for that threshold.
type EngineConfig struct {
	// StartBand is the band of a learner seen for the first time.
	StartBand   string            `mapstructure:"start_band" validate:"omitempty,oneof=A B C D E"`
	SRS         SRSConfig         `mapstructure:"srs"`
	Band        BandConfig        `mapstructure:"band"`
	Gate        GateConfig        `mapstructure:"gate"`
	Recovery    RecoveryConfig    `mapstructure:"recovery"`
	Mix         MixConfig         `mapstructure:"mix"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// SRSConfig tunes the card scheduler.
type SRSConfig struct {
	MinIntervalDays    int     `mapstructure:"min_interval_days" validate:"gte=0"`
	MaxIntervalDays    int     `mapstructure:"max_interval_days" validate:"gte=0"`
	GrowthRate         float64 `mapstructure:"growth_rate" validate:"gte=0"`
	LapseFactor        float64 `mapstructure:"lapse_factor" validate:"gte=0,lte=1"`
	MinStability       float64 `mapstructure:"min_stability" validate:"gte=0"`
	LeechThreshold     int     `mapstructure:"leech_threshold" validate:"gte=0"`
	LeechClearStreak   int     `mapstructure:"leech_clear_streak" validate:"gte=0"`
	HintPenalty        int     `mapstructure:"hint_penalty" validate:"gte=0,lte=5"`
	SlowRatio          float64 `mapstructure:"slow_ratio" validate:"gte=0"`
	CorrectGradeFloor  int     `mapstructure:"correct_grade_floor" validate:"gte=0,lte=5"`
	DefaultExpectedSec int     `mapstructure:"default_expected_sec" validate:"gte=0"`
}

// BandConfig tunes the band controller.
type BandConfig struct {
	WindowSize        int     `mapstructure:"window_size" validate:"gte=0"`
	PromoteMinSamples int     `mapstructure:"promote_min_samples" validate:"gte=0"`
	PromoteAccuracy   float64 `mapstructure:"promote_accuracy" validate:"gte=0,lte=1"`
	DemoteMinSamples  int     `mapstructure:"demote_min_samples" validate:"gte=0"`
	DemoteAccuracy    float64 `mapstructure:"demote_accuracy" validate:"gte=0,lte=1"`
}

// GateConfig tunes the domain gate evaluator.
type GateConfig struct {
	MinCards          int     `mapstructure:"min_cards" validate:"gte=0"`
	MeanStability     float64 `mapstructure:"mean_stability" validate:"gte=0"`
	StabilityFloor    float64 `mapstructure:"stability_floor" validate:"gte=0"`
	MaxCriterionScore int     `mapstructure:"max_criterion_score" validate:"gte=0"`
	PassingScore      float64 `mapstructure:"passing_score" validate:"gte=0,lte=1"`
}

// RecoveryConfig tunes the recovery monitor.
type RecoveryConfig struct {
	HistoryDays        int     `mapstructure:"history_days" validate:"gte=0"`
	DifficultAccuracy  float64 `mapstructure:"difficult_accuracy" validate:"gte=0,lte=1"`
	DifficultHintRatio float64 `mapstructure:"difficult_hint_ratio" validate:"gte=0"`
	TriggerDays        int     `mapstructure:"trigger_days" validate:"gte=0"`
	ExitAccuracy       float64 `mapstructure:"exit_accuracy" validate:"gte=0,lte=1"`
}

// MixConfig tunes the daily mix generator.
type MixConfig struct {
	BudgetMinutes           int     `mapstructure:"budget_minutes" validate:"gte=0"`
	NewSliceMinutes         int     `mapstructure:"new_slice_minutes" validate:"gte=0"`
	RecoveryNewSliceMinutes int     `mapstructure:"recovery_new_slice_minutes" validate:"gte=0"`
	InterleaveSliceMinutes  int     `mapstructure:"interleave_slice_minutes" validate:"gte=0"`
	MaxInterleavePerDomain  int     `mapstructure:"max_interleave_per_domain" validate:"gte=0"`
	WeakAccuracy            float64 `mapstructure:"weak_accuracy" validate:"gte=0,lte=1"`
	WeakMinItems            int     `mapstructure:"weak_min_items" validate:"gte=0"`
	MaxWeakDomains          int     `mapstructure:"max_weak_domains" validate:"gte=0"`
	DominanceMargin         float64 `mapstructure:"dominance_margin" validate:"gte=0,lte=1"`
	DefaultItemSeconds      int     `mapstructure:"default_item_seconds" validate:"gte=0"`
}

// PersistenceConfig bounds the retry loop around profile load and save.
type PersistenceConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gte=0"`
}
