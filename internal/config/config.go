package config

import (
	"os"
	"strconv"

	"sourceboot/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Paths     PathConfig
	Database  DatabaseConfig
	Resample  ResampleConfig
	Threshold ThresholdConfig
	PCI       PCIConfig
	Correlate CorrelateConfig
	Server    ServerConfig
	Workers   int
	Seed      int64
}

// PathConfig holds file system paths
type PathConfig struct {
	DataDir      string
	BehaviorFile string
	InverseDir   string
}

// DatabaseConfig holds the optional postgres stage ledger settings. When URL
// is empty the pipeline falls back to an in-memory ledger.
type DatabaseConfig struct {
	URL string
}

// ResampleConfig holds bootstrap resampling parameters. Downsample also
// governs trial selection in the correlation stage, which must see the same
// population the manifest indices refer to.
type ResampleConfig struct {
	NBoot      int
	NAve       int
	BatchSize  int
	Downsample bool
	TFR        bool
	Phase      bool
	FMin       float64
	FMax       float64
	NMin       float64
	NMax       float64
	Steps      int
}

// ThresholdConfig holds null-distribution parameters
type ThresholdConfig struct {
	NBoot          int
	Alpha          string // numeric alpha or "50_50"
	BaselineTmin   float64
	BaselineTmax   float64
	SharedBaseline bool
}

// PCIConfig holds complexity-analysis parameters
type PCIConfig struct {
	LeadingOffset int
}

// CorrelateConfig holds permutation-testing parameters
type CorrelateConfig struct {
	NPermutations int
}

// ServerConfig holds the status server settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Paths: PathConfig{
			DataDir:      getEnvOrDefault("SOURCEBOOT_DATA_DIR", "./data"),
			BehaviorFile: getEnvOrDefault("SOURCEBOOT_BEHAVIOR_FILE", ""),
			InverseDir:   getEnvOrDefault("SOURCEBOOT_INVERSE_DIR", ""),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Resample: ResampleConfig{
			NBoot:      getEnvIntOrDefault("SOURCEBOOT_NBOOT", 1000),
			NAve:       getEnvIntOrDefault("SOURCEBOOT_NAVE", 50),
			BatchSize:  getEnvIntOrDefault("SOURCEBOOT_BATCH", 10),
			Downsample: getEnvBoolOrDefault("SOURCEBOOT_DOWNSAMPLE", false),
			TFR:        getEnvBoolOrDefault("SOURCEBOOT_TFR", true),
			Phase:      getEnvBoolOrDefault("SOURCEBOOT_PHASE", true),
			FMin:       getEnvFloatOrDefault("SOURCEBOOT_FMIN", 7),
			FMax:       getEnvFloatOrDefault("SOURCEBOOT_FMAX", 35),
			NMin:       getEnvFloatOrDefault("SOURCEBOOT_NMIN", 3),
			NMax:       getEnvFloatOrDefault("SOURCEBOOT_NMAX", 10),
			Steps:      getEnvIntOrDefault("SOURCEBOOT_STEPS", 7),
		},
		Threshold: ThresholdConfig{
			NBoot:          getEnvIntOrDefault("SOURCEBOOT_THRESH_NBOOT", 480),
			Alpha:          getEnvOrDefault("SOURCEBOOT_ALPHA", "0.01"),
			BaselineTmin:   getEnvFloatOrDefault("SOURCEBOOT_BL_TMIN", -0.5),
			BaselineTmax:   getEnvFloatOrDefault("SOURCEBOOT_BL_TMAX", -0.1),
			SharedBaseline: getEnvBoolOrDefault("SOURCEBOOT_SHARED_BASELINE", false),
		},
		PCI: PCIConfig{
			LeadingOffset: getEnvIntOrDefault("SOURCEBOOT_LEADING_OFFSET", 0),
		},
		Correlate: CorrelateConfig{
			NPermutations: getEnvIntOrDefault("SOURCEBOOT_NPERM", 1000),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Workers: getEnvIntOrDefault("SOURCEBOOT_WORKERS", 4),
		Seed:    int64(getEnvIntOrDefault("SOURCEBOOT_SEED", 13)),
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Paths.DataDir == "" {
		return errors.ConfigInvalid("data directory is required")
	}
	if cfg.Resample.NBoot < 1 || cfg.Resample.NAve < 1 {
		return errors.ConfigInvalid("Nboot and Nave must be positive")
	}
	if cfg.Resample.BatchSize < 1 {
		return errors.ConfigInvalid("batch size must be positive")
	}
	if cfg.Workers < 1 {
		return errors.ConfigInvalid("worker count must be positive")
	}
	if cfg.Threshold.BaselineTmin >= cfg.Threshold.BaselineTmax {
		return errors.ConfigInvalid("baseline window must be non-empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
