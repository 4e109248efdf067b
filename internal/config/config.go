package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"prodreport/internal/domain"
)

// Config holds everything read from the environment at process start.
// Changes to scheduler settings live in the database; everything here is
// effectively immutable for the lifetime of the process.
type Config struct {
	DatabaseURL string
	HTTPAddr    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration

	LogLevel  string
	LogFormat string

	// AllocationRangeDays bounds the default date range handed to the
	// allocation engine per workorder.
	AllocationRangeDays int

	Rules RulesConfig
}

// RulesConfig carries one profile per report kind.
type RulesConfig struct {
	Operator domain.RulesProfile `json:"operator"`
	SMT      domain.RulesProfile `json:"smt"`
}

// ProfileFor dispatches the rules profile on the report kind discriminator.
func (r RulesConfig) ProfileFor(kind domain.ReportKind) domain.RulesProfile {
	if kind == domain.ReportKindSMT {
		return r.SMT
	}
	return r.Operator
}

// AllPackagingKeywords merges both profiles' keyword lists, deduplicated
// case-insensitively, for discovery paths that scan reports of every kind.
func (r RulesConfig) AllPackagingKeywords() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{r.Operator.PackagingKeywords, r.SMT.PackagingKeywords} {
		for _, kw := range list {
			key := strings.ToLower(kw)
			if kw == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// Load reads .env (if present), the environment, and an optional rules
// profile JSON file. Malformed profiles are a configuration error: the
// engine refuses to start rather than miscompute hours.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		HTTPAddr:            envOr("HTTP_ADDR", ":8080"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envInt("REDIS_DB", 0),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              time.Duration(envInt("JWT_TTL_HOURS", 24)) * time.Hour,
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "text"),
		AllocationRangeDays: envInt("ALLOCATION_RANGE_DAYS", 30),
		Rules:               DefaultRules(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if path := os.Getenv("RULES_PROFILE_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules profile: %w", err)
		}
		if err := json.Unmarshal(raw, &cfg.Rules); err != nil {
			return nil, fmt.Errorf("parse rules profile: %w", err)
		}
	}

	if err := cfg.Rules.Operator.Validate(); err != nil {
		return nil, fmt.Errorf("operator rules profile: %w", err)
	}
	if err := cfg.Rules.SMT.Validate(); err != nil {
		return nil, fmt.Errorf("smt rules profile: %w", err)
	}

	return cfg, nil
}

// DefaultRules encodes the site policy: operators break for lunch
// 12:00-13:00 and go into overtime after 17:30; SMT machines run through
// lunch and count overtime after 16:30.
func DefaultRules() RulesConfig {
	weights := domain.AllocationWeights{Time: 0.4, Efficiency: 0.3, Process: 0.2, Operator: 0.1}
	keywords := []string{"packaging", "packing", "final pack"}
	return RulesConfig{
		Operator: domain.RulesProfile{
			Kind:              domain.ReportKindOperator,
			OvertimeThreshold: "17:30",
			LunchStart:        "12:00",
			LunchEnd:          "13:00",
			LunchDeduction:    1.0,
			PackagingKeywords: keywords,
			Weights:           weights,
			ProcessComplexity: map[string]float64{},
		},
		SMT: domain.RulesProfile{
			Kind:              domain.ReportKindSMT,
			OvertimeThreshold: "16:30",
			LunchDeduction:    1.0,
			PackagingKeywords: keywords,
			Weights:           weights,
			ProcessComplexity: map[string]float64{},
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
