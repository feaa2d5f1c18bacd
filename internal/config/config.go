// Package config loads service configuration from a YAML file with
// environment overrides. A .env file is honored in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Solver holds model construction and solve parameters.
type Solver struct {
	Backend            string  `yaml:"backend"`            // empty = first available
	TimeLimitSec       int     `yaml:"timeLimitSec"`       // per-strategy wall clock
	MaxDelayMinutes    int     `yaml:"maxDelayMinutes"`    // delay variable upper bound
	SevereDelayMinutes int     `yaml:"severeDelayMinutes"` // severely-late threshold
	DelayStepMinutes   int     `yaml:"delayStepMinutes"`   // breakpoint granularity
	BigM               float64 `yaml:"bigM"`               // 0 = derived from delay bound
}

// Costs are the base cost parameters the objective scales by strategy
// weights. Penalty multipliers map soft-violation priorities to costs;
// the HIGH/MEDIUM/LOW split is a configurable default, not a contract.
type Costs struct {
	DelayPerMinute float64 `yaml:"delayPerMinute"`
	PerLatePax     float64 `yaml:"perLatePax"`
	PenaltyHigh    float64 `yaml:"penaltyHigh"`
	PenaltyMedium  float64 `yaml:"penaltyMedium"`
	PenaltyLow     float64 `yaml:"penaltyLow"`
}

// Ranking weights combine plan summary metrics into one lower-is-better
// scalar. Defaults documented in engine.Rank.
type Ranking struct {
	Cancellations float64 `yaml:"cancellations"`
	CancelRatio   float64 `yaml:"cancelRatio"`
	TotalDelay    float64 `yaml:"totalDelay"`
	MeanDelay     float64 `yaml:"meanDelay"`
	LatePax       float64 `yaml:"latePax"`
	Cost          float64 `yaml:"cost"`
	BindingMust   float64 `yaml:"bindingMust"`
}

// Duty caps crew duty time: prep + block + delay must fit under Max for an
// executed flight.
type Duty struct {
	PrepMinutes int `yaml:"prepMinutes"`
	PostMinutes int `yaml:"postMinutes"`
	MaxMinutes  int `yaml:"maxMinutes"`
}

type Config struct {
	Addr        string  `yaml:"addr"`
	DatabaseURL string  `yaml:"databaseUrl"`
	RedisURL    string  `yaml:"redisUrl"`
	Workers     int     `yaml:"workers"` // strategy worker pool size
	RecoverRPS  float64 `yaml:"recoverRps"`
	Solver      Solver  `yaml:"solver"`
	Costs       Costs   `yaml:"costs"`
	Ranking     Ranking `yaml:"ranking"`
	Duty        Duty    `yaml:"duty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Addr:       ":8080",
		Workers:    4,
		RecoverRPS: 2,
		Solver: Solver{
			TimeLimitSec:       30,
			MaxDelayMinutes:    24 * 60,
			SevereDelayMinutes: 120,
			DelayStepMinutes:   5,
		},
		Costs: Costs{
			DelayPerMinute: 80,
			PerLatePax:     200,
			PenaltyHigh:    100,
			PenaltyMedium:  10,
			PenaltyLow:     1,
		},
		Ranking: Ranking{
			Cancellations: 1000,
			CancelRatio:   500,
			TotalDelay:    1,
			MeanDelay:     5,
			LatePax:       10,
			Cost:          0.001,
			BindingMust:   50,
		},
		Duty: Duty{
			PrepMinutes: 60,
			PostMinutes: 30,
			MaxMinutes:  14 * 60,
		},
	}
}

// Load reads path (optional) over defaults, then applies env overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("IROPS_SOLVER"); v != "" {
		cfg.Solver.Backend = v
	}
	if v := os.Getenv("IROPS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("IROPS_TIME_LIMIT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Solver.TimeLimitSec = n
		}
	}
}

func (c Config) validate() error {
	if c.Solver.MaxDelayMinutes <= 0 {
		return fmt.Errorf("solver.maxDelayMinutes must be positive")
	}
	if c.Solver.SevereDelayMinutes <= 0 || c.Solver.SevereDelayMinutes > c.Solver.MaxDelayMinutes {
		return fmt.Errorf("solver.severeDelayMinutes out of range")
	}
	if c.Solver.DelayStepMinutes <= 0 {
		return fmt.Errorf("solver.delayStepMinutes must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	return nil
}

// TimeLimit returns the per-strategy solve deadline as a duration.
func (s Solver) TimeLimit() time.Duration {
	if s.TimeLimitSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeLimitSec) * time.Second
}
