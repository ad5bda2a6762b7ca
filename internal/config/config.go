// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for all databases and signal archives
	Port        int
	LogLevel    string
	DevMode     bool
	RunSchedule string // Cron expression for the end-of-day planner run

	Planner PlannerConfig
	Overlay OverlayConfig
}

// PlannerConfig holds the tunables for the two-phase signal planner.
type PlannerConfig struct {
	DefaultLotSize       int64            // Minimum tradeable increment when no per-ticker override exists
	LotSizeOverrides     map[string]int64 // ticker -> lot size
	BuySlippage          float64          // Buy-side fill-price buffer, clamped to [0, 0.20]
	SellSlippage         float64          // Sell-side fill-price buffer, clamped to [0, 0.20]
	MaxPositionsPerGroup int
	MaxPositionPct       float64 // Max fraction of total group value per position
	StalenessDays        int     // Snapshots older than this are treated as missing
}

// OverlayConfig holds thresholds for the exposure overlay policy.
type OverlayConfig struct {
	BlockEntriesAbove float64 // Exposure fraction above which new entries are blocked
	ScaleStartAt      float64 // Exposure fraction at which position sizing starts shrinking
	ForceExitAbove    float64 // Exposure fraction above which all positions are liquidated (0 disables)
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("KABUPLAN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:     absDataDir,
		Port:        getEnvAsInt("KABUPLAN_PORT", 8010),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		RunSchedule: getEnv("RUN_SCHEDULE", "0 30 15 * * MON-FRI"), // after the Tokyo close
		Planner: PlannerConfig{
			DefaultLotSize:       int64(getEnvAsInt("DEFAULT_LOT_SIZE", 100)),
			LotSizeOverrides:     parseLotOverrides(getEnv("LOT_SIZE_OVERRIDES", "")),
			BuySlippage:          clampSlippage(getEnvAsFloat("BUY_SLIPPAGE", 0.02)),
			SellSlippage:         clampSlippage(getEnvAsFloat("SELL_SLIPPAGE", 0.02)),
			MaxPositionsPerGroup: getEnvAsInt("MAX_POSITIONS_PER_GROUP", 10),
			MaxPositionPct:       getEnvAsFloat("MAX_POSITION_PCT", 0.30),
			StalenessDays:        getEnvAsInt("PRICE_STALENESS_DAYS", 7),
		},
		Overlay: OverlayConfig{
			BlockEntriesAbove: getEnvAsFloat("OVERLAY_BLOCK_ENTRIES_ABOVE", 0.95),
			ScaleStartAt:      getEnvAsFloat("OVERLAY_SCALE_START_AT", 0.80),
			ForceExitAbove:    getEnvAsFloat("OVERLAY_FORCE_EXIT_ABOVE", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Planner.DefaultLotSize <= 0 {
		return fmt.Errorf("default lot size must be positive, got %d", c.Planner.DefaultLotSize)
	}
	if c.Planner.MaxPositionsPerGroup <= 0 {
		return fmt.Errorf("max positions per group must be positive, got %d", c.Planner.MaxPositionsPerGroup)
	}
	if c.Planner.MaxPositionPct <= 0 || c.Planner.MaxPositionPct > 1 {
		return fmt.Errorf("max position pct must be in (0, 1], got %f", c.Planner.MaxPositionPct)
	}
	return nil
}

// LotSize returns the lot size for a ticker, falling back to the default.
func (p PlannerConfig) LotSize(ticker string) int64 {
	if lot, ok := p.LotSizeOverrides[ticker]; ok && lot > 0 {
		return lot
	}
	return p.DefaultLotSize
}

// clampSlippage bounds a slippage buffer to [0, 0.20].
func clampSlippage(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 0.20 {
		return 0.20
	}
	return v
}

// parseLotOverrides parses "7203:100,6758:1" style ticker:lot pairs.
// Malformed entries are dropped rather than failing the whole config.
func parseLotOverrides(raw string) map[string]int64 {
	overrides := make(map[string]int64)
	if raw == "" {
		return overrides
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		lot, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || lot <= 0 {
			continue
		}
		overrides[strings.TrimSpace(parts[0])] = lot
	}
	return overrides
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
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
