package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigError marks configuration the engine must refuse to start with.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// ServerConfig drives the HTTP surface.
type ServerConfig struct {
	Port            string `yaml:"port"`
	AllowedOrigins  string `yaml:"allowedOrigins"` // comma-separated; empty = *
	AuthToken       string `yaml:"-"`              // env only: API_AUTH_TOKEN
	RateLimitPerMin int    `yaml:"rateLimitPerMin"`
	RateBurst       int    `yaml:"rateBurst"`
}

// StoreConfig selects and bounds the record store.
type StoreConfig struct {
	PostgresURL string `yaml:"-"` // env only: DATABASE_URL; empty = in-memory store
	TimeoutMs   int    `yaml:"timeoutMs"`
}

// EngineConfig bounds the evaluation pipeline.
type EngineConfig struct {
	AlertThreshold      float64  `yaml:"alertThreshold"` // composite >= -> ALERT
	BlockThreshold      float64  `yaml:"blockThreshold"` // composite >= -> BLOCK
	MinProfileTxns      int64    `yaml:"minProfileTxns"` // grace window: learn only below this
	EvaluationTimeoutMs int      `yaml:"evaluationTimeoutMs"`
	Workers             int      `yaml:"workers"`
	AcceptedTxnTypes    []string `yaml:"acceptedTxnTypes"`
}

// ProfileConfig tunes the online statistics.
type ProfileConfig struct {
	EwmaAlpha float64 `yaml:"ewmaAlpha"` // per-txn smoothing, (0,1]
}

// RulesConfig controls the rule registry cache.
type RulesConfig struct {
	CacheRefreshSeconds int  `yaml:"cacheRefreshSeconds"`
	SeedDefaults        bool `yaml:"seedDefaults"` // install the 15 default rules on an empty store
}

// ReviewConfig controls the review queue lifecycle.
type ReviewConfig struct {
	AutoAcceptTimeoutMs            int64 `yaml:"autoAcceptTimeoutMs"`
	AutoAcceptCheckIntervalSeconds int   `yaml:"autoAcceptCheckIntervalSeconds"`
}

// TuningConfig controls the feedback-driven weight tuner.
type TuningConfig struct {
	Enabled             bool    `yaml:"enabled"`
	IntervalHours       int     `yaml:"intervalHours"`
	InitialDelayMinutes int     `yaml:"initialDelayMinutes"`
	MinSamples          int64   `yaml:"minSamples"`       // tp+fp needed before touching a weight
	MaxAdjustmentPct    float64 `yaml:"maxAdjustmentPct"` // fraction, e.g. 0.10 = ±10% per cycle
	WeightFloor         float64 `yaml:"weightFloor"`
	WeightCeiling       float64 `yaml:"weightCeiling"`
}

// SilenceConfig controls the gone-quiet monitor.
type SilenceConfig struct {
	Enabled              bool    `yaml:"enabled"`
	CheckIntervalMinutes int     `yaml:"checkIntervalMinutes"`
	SilenceMultiplier    float64 `yaml:"silenceMultiplier"` // alert past multiplier × expected gap
	MinExpectedTps       float64 `yaml:"minExpectedTps"`    // hourly tps floor for candidates
	MinCompletedHours    int64   `yaml:"minCompletedHours"`
}

// GraphConfig controls the beneficiary graph rebuilder.
type GraphConfig struct {
	RefreshSeconds int `yaml:"refreshSeconds"`
}

// ForestConfig controls isolation-forest training and caching.
type ForestConfig struct {
	TrainIntervalMinutes int `yaml:"trainIntervalMinutes"`
	MinTrainSamples      int `yaml:"minTrainSamples"`
	SampleWindow         int `yaml:"sampleWindow"`   // per-client feature vectors retained
	ModelCacheSize       int `yaml:"modelCacheSize"` // LRU entries
}

// NotifyConfig controls outbound notification dispatch.
type NotifyConfig struct {
	BufferSize int    `yaml:"bufferSize"`
	WebhookURL string `yaml:"-"` // env only: WEBHOOK_URL; empty = no webhook sink
}

// Config is the full engine configuration. Values are immutable once loaded;
// hot paths receive a copy at construction.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Engine  EngineConfig  `yaml:"engine"`
	Profile ProfileConfig `yaml:"profile"`
	Rules   RulesConfig   `yaml:"rules"`
	Review  ReviewConfig  `yaml:"review"`
	Tuning  TuningConfig  `yaml:"tuning"`
	Silence SilenceConfig `yaml:"silence"`
	Graph   GraphConfig   `yaml:"graph"`
	Forest  ForestConfig  `yaml:"forest"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// Default returns the configuration the engine runs with when no file is
// present. Every value here is safe for production except the store, which
// degrades to in-memory when DATABASE_URL is unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5340",
			RateLimitPerMin: 600,
			RateBurst:       60,
		},
		Store: StoreConfig{
			TimeoutMs: 3000,
		},
		Engine: EngineConfig{
			AlertThreshold:      30,
			BlockThreshold:      70,
			MinProfileTxns:      20,
			EvaluationTimeoutMs: 5000,
			Workers:             8,
			AcceptedTxnTypes:    []string{"NEFT", "RTGS", "IMPS", "UPI"},
		},
		Profile: ProfileConfig{
			EwmaAlpha: 0.1,
		},
		Rules: RulesConfig{
			CacheRefreshSeconds: 60,
			SeedDefaults:        true,
		},
		Review: ReviewConfig{
			AutoAcceptTimeoutMs:            24 * 60 * 60 * 1000,
			AutoAcceptCheckIntervalSeconds: 60,
		},
		Tuning: TuningConfig{
			Enabled:             true,
			IntervalHours:       6,
			InitialDelayMinutes: 60,
			MinSamples:          50,
			MaxAdjustmentPct:    0.10,
			WeightFloor:         0.5,
			WeightCeiling:       5.0,
		},
		Silence: SilenceConfig{
			Enabled:              true,
			CheckIntervalMinutes: 5,
			SilenceMultiplier:    3.0,
			MinExpectedTps:       1.0,
			MinCompletedHours:    48,
		},
		Graph: GraphConfig{
			RefreshSeconds: 300,
		},
		Forest: ForestConfig{
			TrainIntervalMinutes: 360,
			MinTrainSamples:      50,
			SampleWindow:         512,
			ModelCacheSize:       512,
		},
		Notify: NotifyConfig{
			BufferSize: 256,
		},
	}
}

// Load reads the YAML file at path (when it exists) over the defaults, then
// applies environment overrides, then validates. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers deploy-time values over the file. Credentials never live
// in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.PostgresURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("API_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.Workers = n
		}
	}
}

// Validate rejects configurations the engine cannot run correctly with.
func (c *Config) Validate() error {
	if c.Engine.AlertThreshold >= c.Engine.BlockThreshold {
		return &ConfigError{"engine.alertThreshold",
			fmt.Sprintf("must be below blockThreshold (%.1f >= %.1f)",
				c.Engine.AlertThreshold, c.Engine.BlockThreshold)}
	}
	if c.Profile.EwmaAlpha <= 0 || c.Profile.EwmaAlpha > 1 {
		return &ConfigError{"profile.ewmaAlpha",
			fmt.Sprintf("must be in (0, 1], got %v", c.Profile.EwmaAlpha)}
	}
	if c.Tuning.WeightCeiling <= c.Tuning.WeightFloor {
		return &ConfigError{"tuning.weightCeiling",
			fmt.Sprintf("must exceed weightFloor (%v <= %v)",
				c.Tuning.WeightCeiling, c.Tuning.WeightFloor)}
	}
	if c.Tuning.WeightFloor <= 0 {
		return &ConfigError{"tuning.weightFloor", "must be positive"}
	}
	if c.Tuning.MaxAdjustmentPct < 0 || c.Tuning.MaxAdjustmentPct > 1 {
		return &ConfigError{"tuning.maxAdjustmentPct",
			fmt.Sprintf("must be in [0, 1], got %v", c.Tuning.MaxAdjustmentPct)}
	}
	if c.Engine.MinProfileTxns < 0 {
		return &ConfigError{"engine.minProfileTxns", "must not be negative"}
	}
	if len(c.Engine.AcceptedTxnTypes) == 0 {
		return &ConfigError{"engine.acceptedTxnTypes", "must list at least one type"}
	}
	if c.Engine.Workers <= 0 {
		return &ConfigError{"engine.workers", "must be positive"}
	}
	if c.Store.TimeoutMs <= 0 {
		return &ConfigError{"store.timeoutMs", "must be positive"}
	}
	if c.Notify.BufferSize <= 0 {
		return &ConfigError{"notify.bufferSize", "must be positive"}
	}
	return nil
}

// StoreTimeout is a convenience for the per-call store deadline.
func (c *Config) StoreTimeout() int { return c.Store.TimeoutMs }
