package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. Numeric thresholds are
// defaults, not fixed law; every band can be tuned per deployment.
type Config struct {
	DatabasePath string
	LogLevel     string
	Port         int
	DevMode      bool

	// Plan validation
	MaxPositionSize float64 // fraction of portfolio, hard cap

	// Decision bands and aggregation adjustments
	ApproveThreshold     float64 // score >= -> approve
	ModifyThreshold      float64 // score >= -> modify (below approve)
	RiskAdjustWeight     float64
	AllocAdjustWeight    float64
	ImpactAdjustWeight   float64
	AsymmetryAdjustCap   float64
	DecisionValidity     time.Duration
	CuratorTimeout       time.Duration
	EvaluateRatePerSec   int // rate limit on the evaluate endpoint

	// Risk limits
	VaRConfidence      float64
	VaRLimit           float64
	CVaRLimit          float64
	DrawdownLimit      float64
	ConcentrationLimit float64 // max HHI after adding the candidate

	// Asymmetry
	AsymmetryMaxScaling float64

	// Lesson synthesis
	MinSampleSize         int
	SignificanceThreshold float64
	ActivityFloor         float64
	LeverMin              float64
	LeverMax              float64
	CorrelationThreshold  float64 // latent-factor clustering cutoff

	// Compliance curator
	RestrictedSymbols []string // never tradeable
	NoShortSymbols    []string // long-only names
	RequireStops      bool

	// Job schedules (cron expressions, seconds field included)
	SynthesisSchedule string
	DecaySchedule     string
	LatentSchedule    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnvAsInt("PORT", 8003),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		DatabasePath: getEnv("DATABASE_PATH", "./data/curator.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		MaxPositionSize: getEnvAsFloat("MAX_POSITION_SIZE", 0.10),

		ApproveThreshold:   getEnvAsFloat("APPROVE_THRESHOLD", 0.7),
		ModifyThreshold:    getEnvAsFloat("MODIFY_THRESHOLD", 0.4),
		RiskAdjustWeight:   getEnvAsFloat("RISK_ADJUST_WEIGHT", 0.3),
		AllocAdjustWeight:  getEnvAsFloat("ALLOC_ADJUST_WEIGHT", 0.2),
		ImpactAdjustWeight: getEnvAsFloat("IMPACT_ADJUST_WEIGHT", 0.1),
		AsymmetryAdjustCap: getEnvAsFloat("ASYMMETRY_ADJUST_CAP", 0.2),
		DecisionValidity:   getEnvAsDuration("DECISION_VALIDITY", time.Hour),
		CuratorTimeout:     getEnvAsDuration("CURATOR_TIMEOUT", 2*time.Second),
		EvaluateRatePerSec: getEnvAsInt("EVALUATE_RATE_PER_SEC", 10),

		VaRConfidence:      getEnvAsFloat("VAR_CONFIDENCE", 0.95),
		VaRLimit:           getEnvAsFloat("VAR_LIMIT", 0.05),
		CVaRLimit:          getEnvAsFloat("CVAR_LIMIT", 0.08),
		DrawdownLimit:      getEnvAsFloat("DRAWDOWN_LIMIT", 0.25),
		ConcentrationLimit: getEnvAsFloat("CONCENTRATION_LIMIT", 0.30),

		AsymmetryMaxScaling: getEnvAsFloat("ASYMMETRY_MAX_SCALING", 2.0),

		MinSampleSize:         getEnvAsInt("MIN_SAMPLE_SIZE", 20),
		SignificanceThreshold: getEnvAsFloat("SIGNIFICANCE_THRESHOLD", 0.15),
		ActivityFloor:         getEnvAsFloat("ACTIVITY_FLOOR", 0.05),
		LeverMin:              getEnvAsFloat("LEVER_MIN", 0.5),
		LeverMax:              getEnvAsFloat("LEVER_MAX", 2.0),
		CorrelationThreshold:  getEnvAsFloat("CORRELATION_THRESHOLD", 0.95),

		RestrictedSymbols: getEnvAsList("RESTRICTED_SYMBOLS", nil),
		NoShortSymbols:    getEnvAsList("NO_SHORT_SYMBOLS", nil),
		RequireStops:      getEnvAsBool("REQUIRE_STOPS", true),

		SynthesisSchedule: getEnv("SYNTHESIS_SCHEDULE", "0 */10 * * * *"),
		DecaySchedule:     getEnv("DECAY_SCHEDULE", "0 0 * * * *"),
		LatentSchedule:    getEnv("LATENT_SCHEDULE", "0 0 */6 * * *"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is internally consistent
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.MaxPositionSize <= 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("MAX_POSITION_SIZE must be in (0,1], got %v", c.MaxPositionSize)
	}
	if c.ModifyThreshold >= c.ApproveThreshold {
		return fmt.Errorf("MODIFY_THRESHOLD (%v) must be below APPROVE_THRESHOLD (%v)",
			c.ModifyThreshold, c.ApproveThreshold)
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		return fmt.Errorf("VAR_CONFIDENCE must be in (0,1), got %v", c.VaRConfidence)
	}
	if c.LeverMin <= 0 || c.LeverMin >= c.LeverMax {
		return fmt.Errorf("lever bounds invalid: [%v, %v]", c.LeverMin, c.LeverMax)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
