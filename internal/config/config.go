package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/biofoundry/plate-planner/internal/layout"
	"github.com/biofoundry/plate-planner/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50

	// discoveryFile is picked up from the project root when no config
	// file is passed explicitly.
	discoveryFile = "plate-planner.yaml"
)

// defaultTransferVolume is the per-source transfer volume in microliters.
var defaultTransferVolume = decimal.NewFromInt(2)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	InitialSlots         [][]int
	Geometry             layout.Geometry
	TransferVolume       decimal.Decimal
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string        `yaml:"port"`
	Combinations         [][]int       `yaml:"combinations"`
	Plate                yamlPlate     `yaml:"plate"`
	TransferVolume       string        `yaml:"transfer_volume"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

// yamlPlate represents the plate geometry section in YAML.
type yamlPlate struct {
	WellsPerColumn  int   `yaml:"wells_per_column"`
	Columns         int   `yaml:"columns"`
	FirstColumn     int   `yaml:"first_column"`
	TemplateColumns []int `yaml:"template_columns"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile      string
	Port            *string
	CombinationsStr *string
	TransferVolume  *string
	RateLimitRPS    *float64
	RateLimitBurst  *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	path := ""
	if overrides != nil {
		path = overrides.ConfigFile
	}
	if path == "" {
		path = discoverConfigFile()
	}
	if path != "" {
		yamlCfg, err := loadFromFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	// Apply environment variables (override YAML)
	applyEnvConfig(&cfg)

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		InitialSlots:         storage.DefaultSpec().Slots,
		Geometry:             layout.DefaultGeometry(),
		TransferVolume:       defaultTransferVolume,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
	}
}

// discoverConfigFile walks up from the working directory looking for
// the default config file. An empty result means "use defaults".
func discoverConfigFile() string {
	path, err := findProjectFile(discoveryFile)
	if err != nil {
		return ""
	}
	return path
}

// findProjectFile locates a file relative to the project root by
// walking up the directory tree.
func findProjectFile(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if len(yamlCfg.Combinations) > 0 {
		cfg.InitialSlots = yamlCfg.Combinations
	}

	if yamlCfg.Plate.WellsPerColumn > 0 {
		cfg.Geometry.WellsPerColumn = yamlCfg.Plate.WellsPerColumn
	}
	if yamlCfg.Plate.Columns > 0 {
		cfg.Geometry.Columns = yamlCfg.Plate.Columns
	}
	if yamlCfg.Plate.FirstColumn > 0 {
		cfg.Geometry.FirstColumn = yamlCfg.Plate.FirstColumn
	}
	if len(yamlCfg.Plate.TemplateColumns) > 0 {
		cfg.Geometry.TemplateColumns = yamlCfg.Plate.TemplateColumns
	}

	if yamlCfg.TransferVolume != "" {
		if v, err := decimal.NewFromString(yamlCfg.TransferVolume); err == nil && v.IsPositive() {
			cfg.TransferVolume = v
		}
	}

	if yamlCfg.ShutdownGracePeriod != "" {
		if d, err := time.ParseDuration(yamlCfg.ShutdownGracePeriod); err == nil {
			cfg.ShutdownGracePeriod = d
		}
	}

	if yamlCfg.ReadHeaderTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.ReadHeaderTimeout); err == nil {
			cfg.ReadHeaderTimeout = d
		}
	}

	if yamlCfg.WriteTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.WriteTimeout); err == nil {
			cfg.WriteTimeout = d
		}
	}

	if yamlCfg.IdleTimeout != "" {
		if d, err := time.ParseDuration(yamlCfg.IdleTimeout); err == nil {
			cfg.IdleTimeout = d
		}
	}

	cfg.EnableRequestLogging = yamlCfg.EnableRequestLogging

	if yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = yamlCfg.RateLimit.Burst
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rawSlots := strings.TrimSpace(os.Getenv("COMBINATIONS")); rawSlots != "" {
		slots, err := ParseCombinations(rawSlots)
		if err == nil && len(slots) > 0 {
			cfg.InitialSlots = slots
		}
	}

	if rawVolume := strings.TrimSpace(os.Getenv("TRANSFER_VOLUME")); rawVolume != "" {
		if v, err := decimal.NewFromString(rawVolume); err == nil && v.IsPositive() {
			cfg.TransferVolume = v
		}
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.CombinationsStr != nil && *overrides.CombinationsStr != "" {
		slots, err := ParseCombinations(*overrides.CombinationsStr)
		if err != nil {
			return fmt.Errorf("parse combinations: %w", err)
		}
		cfg.InitialSlots = slots
	}

	if overrides.TransferVolume != nil && *overrides.TransferVolume != "" {
		v, err := decimal.NewFromString(*overrides.TransferVolume)
		if err != nil {
			return fmt.Errorf("parse transfer volume: %w", err)
		}
		cfg.TransferVolume = v
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if err := (layout.Spec{Slots: cfg.InitialSlots}).Validate(); err != nil {
		return fmt.Errorf("combinations: %w", err)
	}
	if err := cfg.Geometry.Validate(); err != nil {
		return fmt.Errorf("plate geometry: %w", err)
	}
	if !cfg.TransferVolume.IsPositive() {
		return fmt.Errorf("transfer volume must be positive")
	}
	return nil
}

// ParseCombinations parses the compact slot notation used by env vars
// and CLI flags: slots separated by semicolons, well numbers within a
// slot separated by commas, e.g. "1,9,17;2;3,11;4".
func ParseCombinations(raw string) ([][]int, error) {
	groups := strings.Split(raw, ";")
	slots := make([][]int, 0, len(groups))
	for _, group := range groups {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		parts := strings.Split(group, ",")
		slot := make([]int, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			value, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid well number %q", part)
			}
			if value <= 0 {
				return nil, fmt.Errorf("well number must be positive, got %d", value)
			}
			slot = append(slot, value)
		}
		if len(slot) == 0 {
			return nil, fmt.Errorf("empty slot in %q", raw)
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no slots provided")
	}
	return slots, nil
}
