package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"threatlens/internal/domain"
	"threatlens/internal/services/enrichment"
	"threatlens/internal/services/scoring"
)

type Config struct {
	Env             string        `yaml:"env" validate:"required"`
	ListenAddr      string        `yaml:"listen_addr" validate:"required"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	ClassifyWorkers int           `yaml:"classify_workers" validate:"gte=0"`
	JobPollInterval time.Duration `yaml:"job_poll_interval" validate:"gt=0"`

	Database       DatabaseConfig       `yaml:"database"`
	Enrichment     EnrichmentConfig     `yaml:"enrichment"`
	Classification ClassificationConfig `yaml:"classification"`
	OpenAI         OpenAIConfig         `yaml:"openai"`
	Providers      ProvidersConfig      `yaml:"providers"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver" validate:"oneof=postgres sqlite"`
	URL        string `yaml:"url" validate:"required_if=Driver postgres"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
}

type EnrichmentConfig struct {
	Concurrency       int           `yaml:"concurrency" validate:"gte=1"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts       int           `yaml:"max_attempts" validate:"gte=1"`
	BackoffInitial    time.Duration `yaml:"backoff_initial" validate:"gte=0"`
	BackoffMax        time.Duration `yaml:"backoff_max" validate:"gte=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" validate:"gte=1"`
	BackoffJitter     bool          `yaml:"backoff_jitter"`
}

func (c EnrichmentConfig) Policy() enrichment.Policy {
	return enrichment.Policy{
		Timeout:     c.Timeout,
		MaxAttempts: c.MaxAttempts,
		Backoff: enrichment.Backoff{
			Initial:    c.BackoffInitial,
			Max:        c.BackoffMax,
			Multiplier: c.BackoffMultiplier,
			Jitter:     c.BackoffJitter,
		},
	}
}

type ClassificationConfig struct {
	HighThreshold    float64       `yaml:"high_risk_threshold"`
	MediumThreshold  float64       `yaml:"medium_risk_threshold"`
	ScoreFloor       float64       `yaml:"score_floor"`
	ScoreCeiling     float64       `yaml:"score_ceiling"`
	ReasonTimeout    time.Duration `yaml:"reason_timeout" validate:"gt=0"`
	BatchConcurrency int           `yaml:"batch_concurrency" validate:"gte=1"`
	BatchMax         int           `yaml:"batch_max" validate:"gte=1"`
}

func (c ClassificationConfig) Thresholds() scoring.Thresholds {
	return scoring.Thresholds{High: c.HighThreshold, Medium: c.MediumThreshold, Floor: c.ScoreFloor, Ceiling: c.ScoreCeiling}
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
}

type ProvidersConfig struct {
	Simulated         bool          `yaml:"simulated"`
	RequestsPerMinute int           `yaml:"requests_per_minute" validate:"gte=0"`
	AbuseIPDBKey      string        `yaml:"abuseipdb_api_key"`
	AbuseIPDBURL      string        `yaml:"abuseipdb_url" validate:"omitempty,url"`
	MalShareKey       string        `yaml:"malshare_api_key"`
	MalShareURL       string        `yaml:"malshare_url" validate:"omitempty,url"`
	OpenPhishEnabled  bool          `yaml:"openphish_enabled"`
	OpenPhishFeedURL  string        `yaml:"openphish_feed_url" validate:"omitempty,url"`
	OpenPhishTTL      time.Duration `yaml:"openphish_ttl" validate:"gte=0"`
	PhishTankEnabled  bool          `yaml:"phishtank_enabled"`
	PhishTankFeedURL  string        `yaml:"phishtank_feed_url" validate:"omitempty,url"`
	PhishTankTTL      time.Duration `yaml:"phishtank_ttl" validate:"gte=0"`
}

// Defaults mirrors the documented out-of-the-box behavior.
func Defaults() Config {
	return Config{
		Env:             "development",
		ListenAddr:      ":8080",
		LogLevel:        "info",
		ClassifyWorkers: 2,
		JobPollInterval: 500 * time.Millisecond,
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "threatlens.db",
		},
		Enrichment: EnrichmentConfig{
			Concurrency:       5,
			Timeout:           30 * time.Second,
			MaxAttempts:       3,
			BackoffInitial:    2 * time.Second,
			BackoffMax:        30 * time.Second,
			BackoffMultiplier: 1,
		},
		Classification: ClassificationConfig{
			HighThreshold:    7.0,
			MediumThreshold:  4.0,
			ScoreFloor:       0.0,
			ScoreCeiling:     10.0,
			ReasonTimeout:    60 * time.Second,
			BatchConcurrency: 10,
			BatchMax:         50,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Providers: ProvidersConfig{
			Simulated:        true,
			OpenPhishEnabled: true,
			OpenPhishTTL:     15 * time.Minute,
			PhishTankEnabled: false,
			PhishTankTTL:     time.Hour,
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load starts from Defaults, applies the YAML file named by CONFIG_FILE if
// any, then environment variables. The result is validated; failures are
// *domain.ConfigurationError.
func Load() (Config, error) {
	return LoadFile(getenv("CONFIG_FILE", ""))
}

func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, &domain.ConfigurationError{Field: "CONFIG_FILE", Reason: err.Error()}
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, &domain.ConfigurationError{Field: "CONFIG_FILE", Reason: err.Error()}
		}
	}

	e := &env{}
	e.strVar("APP_ENV", &cfg.Env)
	e.strVar("LISTEN_ADDR", &cfg.ListenAddr)
	e.strVar("LOG_LEVEL", &cfg.LogLevel)
	e.intVar("CLASSIFY_WORKERS", &cfg.ClassifyWorkers)
	e.durationVar("JOB_POLL_INTERVAL", &cfg.JobPollInterval)

	e.strVar("DATABASE_DRIVER", &cfg.Database.Driver)
	e.strVar("DATABASE_URL", &cfg.Database.URL)
	e.strVar("SQLITE_PATH", &cfg.Database.SQLitePath)

	e.intVar("ENRICH_CONCURRENCY", &cfg.Enrichment.Concurrency)
	e.durationVar("ENRICH_TIMEOUT", &cfg.Enrichment.Timeout)
	e.intVar("ENRICH_MAX_ATTEMPTS", &cfg.Enrichment.MaxAttempts)
	e.durationVar("ENRICH_BACKOFF_INITIAL", &cfg.Enrichment.BackoffInitial)
	e.durationVar("ENRICH_BACKOFF_MAX", &cfg.Enrichment.BackoffMax)
	e.floatVar("ENRICH_BACKOFF_MULTIPLIER", &cfg.Enrichment.BackoffMultiplier)
	e.boolVar("ENRICH_BACKOFF_JITTER", &cfg.Enrichment.BackoffJitter)

	e.floatVar("HIGH_RISK_THRESHOLD", &cfg.Classification.HighThreshold)
	e.floatVar("MEDIUM_RISK_THRESHOLD", &cfg.Classification.MediumThreshold)
	e.floatVar("SCORE_FLOOR", &cfg.Classification.ScoreFloor)
	e.floatVar("SCORE_CEILING", &cfg.Classification.ScoreCeiling)
	e.durationVar("REASON_TIMEOUT", &cfg.Classification.ReasonTimeout)
	e.intVar("BATCH_CONCURRENCY", &cfg.Classification.BatchConcurrency)
	e.intVar("BATCH_MAX", &cfg.Classification.BatchMax)

	e.strVar("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	e.strVar("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	e.strVar("OPENAI_MODEL", &cfg.OpenAI.Model)
	e.floatVar("OPENAI_TEMPERATURE", &cfg.OpenAI.Temperature)
	e.intVar("OPENAI_MAX_TOKENS", &cfg.OpenAI.MaxTokens)

	e.boolVar("SIMULATED_PROVIDERS", &cfg.Providers.Simulated)
	e.intVar("PROVIDER_REQUESTS_PER_MINUTE", &cfg.Providers.RequestsPerMinute)
	e.strVar("ABUSEIPDB_API_KEY", &cfg.Providers.AbuseIPDBKey)
	e.strVar("ABUSEIPDB_URL", &cfg.Providers.AbuseIPDBURL)
	e.strVar("MALSHARE_API_KEY", &cfg.Providers.MalShareKey)
	e.strVar("MALSHARE_URL", &cfg.Providers.MalShareURL)
	e.boolVar("OPENPHISH_ENABLED", &cfg.Providers.OpenPhishEnabled)
	e.strVar("OPENPHISH_FEED_URL", &cfg.Providers.OpenPhishFeedURL)
	e.durationVar("OPENPHISH_TTL", &cfg.Providers.OpenPhishTTL)
	e.boolVar("PHISHTANK_ENABLED", &cfg.Providers.PhishTankEnabled)
	e.strVar("PHISHTANK_FEED_URL", &cfg.Providers.PhishTankFeedURL)
	e.durationVar("PHISHTANK_TTL", &cfg.Providers.PhishTankTTL)

	if e.err != nil {
		return cfg, e.err
	}
	return cfg, cfg.Validate()
}

var validate = validator.New()

// Validate checks field constraints, then the cross-field rules of the
// enrichment policy and score thresholds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return &domain.ConfigurationError{
				Field:  strings.TrimPrefix(f.Namespace(), "Config."),
				Reason: fmt.Sprintf("failed %q (value %v)", f.Tag(), f.Value()),
			}
		}
		return &domain.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if err := c.Enrichment.Policy().Validate(); err != nil {
		return err
	}
	return c.Classification.Thresholds().Validate()
}

// env applies set variables over the current values and keeps the first
// parse failure.
type env struct {
	err error
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = &domain.ConfigurationError{Field: key, Reason: fmt.Sprintf("cannot parse %q: %v", value, err)}
	}
}

func (e *env) strVar(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e *env) intVar(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) floatVar(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *env) boolVar(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

// durationVar accepts Go duration strings or a bare number of seconds.
func (e *env) durationVar(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		v = strings.TrimSpace(v)
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
