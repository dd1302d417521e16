// Package config loads server and CLI settings from defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"freightplan/internal/auth"
	"freightplan/internal/opt"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	Migrate     bool   `yaml:"migrate"`
	RedisURL    string `yaml:"redisUrl"`

	Webhooks  WebhookConfig   `yaml:"webhooks"`
	Travel    TravelConfig    `yaml:"travel"`
	Solver    SolverConfig    `yaml:"solver"`
	Retention RetentionConfig `yaml:"retention"`
	Auth      auth.Settings   `yaml:"auth"`
}

type WebhookConfig struct {
	MaxAttempts int `yaml:"maxAttempts"`
}

type TravelConfig struct {
	ORSAPIKey   string        `yaml:"orsApiKey"`
	ORSBaseURL  string        `yaml:"orsBaseUrl"`
	ORSRPS      float64       `yaml:"orsRps"`
	SpeedKMH    float64       `yaml:"speedKmh"`
	CacheTTL    time.Duration `yaml:"cacheTtl"`
	Concurrency int           `yaml:"concurrency"`
}

type SolverConfig struct {
	TimeLimit         time.Duration `yaml:"timeLimit"`
	MaxNodes          int           `yaml:"maxNodes"`
	MissingTravelTime string        `yaml:"missingTravelTime"`
	Duals             string        `yaml:"duals"`
}

type RetentionConfig struct {
	Days     int    `yaml:"days"`
	Schedule string `yaml:"schedule"`
}

// Default returns the built-in settings.
func Default() Config {
	d := opt.DefaultOptions()
	return Config{
		Port:     "8080",
		Migrate:  true,
		Webhooks: WebhookConfig{MaxAttempts: 10},
		Travel:   TravelConfig{ORSRPS: 2, SpeedKMH: 60, CacheTTL: 24 * time.Hour, Concurrency: 4},
		Solver: SolverConfig{
			TimeLimit:         d.TimeLimit,
			MaxNodes:          d.MaxNodes,
			MissingTravelTime: string(d.MissingTravelTime),
			Duals:             string(d.Duals),
		},
		Retention: RetentionConfig{Days: 30, Schedule: "0 0 3 * * *"},
		Auth:      auth.DefaultSettings(),
	}
}

// Load reads .env, then the YAML file at path (or FREIGHTPLAN_CONFIG when path
// is empty), then applies environment overrides. A missing file is an error
// only when the path was given explicitly.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = os.Getenv("FREIGHTPLAN_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		c.Migrate = v != "false"
	}
	str("REDIS_URL", &c.RedisURL)
	integer("WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts)
	str("ORS_API_KEY", &c.Travel.ORSAPIKey)
	str("ORS_BASE_URL", &c.Travel.ORSBaseURL)
	float("ORS_RPS", &c.Travel.ORSRPS)
	float("TRAVEL_SPEED_KMH", &c.Travel.SpeedKMH)
	if v := os.Getenv("SOLVER_TIME_LIMIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SOLVER_TIME_LIMIT: %w", err))
		} else {
			c.Solver.TimeLimit = d
		}
	}
	integer("SOLVER_MAX_NODES", &c.Solver.MaxNodes)
	str("MISSING_TRAVEL_TIME", &c.Solver.MissingTravelTime)
	integer("RETENTION_DAYS", &c.Retention.Days)
	str("RETENTION_SCHEDULE", &c.Retention.Schedule)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
	str("AUTH_TENANT_CLAIM", &c.Auth.TenantClaim)
	str("AUTH_ROLE_CLAIM", &c.Auth.RoleClaim)
	str("AUTH_DRIVER_CLAIM", &c.Auth.DriverClaim)
	return errors.Join(errs...)
}

// Validate rejects settings the optimizer cannot use.
func (c Config) Validate() error {
	if _, err := opt.ParseMissingTimePolicy(c.Solver.MissingTravelTime); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := opt.ParseDualPolicy(c.Solver.Duals); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Solver.TimeLimit < 0 || c.Solver.MaxNodes < 0 {
		return errors.New("config: solver limits must be non-negative")
	}
	if c.Travel.SpeedKMH <= 0 {
		return errors.New("config: travel speed must be positive")
	}
	if _, err := auth.New(c.Auth); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SolverOptions converts the solver section into optimizer options.
func (c Config) SolverOptions() opt.Options {
	o := opt.DefaultOptions()
	o.MissingTravelTime, _ = opt.ParseMissingTimePolicy(c.Solver.MissingTravelTime)
	o.Duals, _ = opt.ParseDualPolicy(c.Solver.Duals)
	o.TimeLimit = c.Solver.TimeLimit
	o.MaxNodes = c.Solver.MaxNodes
	return o
}
