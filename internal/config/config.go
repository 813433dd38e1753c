// Package config loads hamlet.yaml, validates it against an embedded JSON
// schema and applies environment overrides.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/talgya/hamlet/internal/engine"
)

//go:embed config.schema.json
var schemaJSON string

// Config is the full runtime configuration.
type Config struct {
	DBPath        string `yaml:"db_path"`
	Seed          uint64 `yaml:"seed"` // 0 = fresh crypto seed per invocation
	LogLevel      string `yaml:"log_level"`
	TickLogDir    string `yaml:"tick_log_dir"` // Empty disables the compressed tick log
	StatusPath    string `yaml:"status_path"`
	ChartDir      string `yaml:"chart_dir"`
	RecentWindow  int    `yaml:"recent_window"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`

	API     API     `yaml:"api"`
	Entropy Entropy `yaml:"entropy"`
	Model   Model   `yaml:"model"`
}

type API struct {
	Port       int     `yaml:"port"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

type Entropy struct {
	RandomOrgKey string `yaml:"random_org_key"`
}

type Model struct {
	ProductionPerWorker  float64 `yaml:"production_per_worker"`
	ConsumptionPerPerson float64 `yaml:"consumption_per_person"`
	ProductionNoise      float64 `yaml:"production_noise"`
	ConsumptionNoise     float64 `yaml:"consumption_noise"`
	InitialPopulation    int     `yaml:"initial_population"`
	InitialFood          float64 `yaml:"initial_food"`
	InitialWorkers       int     `yaml:"initial_workers"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	p := engine.DefaultParams()
	return Config{
		DBPath:        "data/hamlet.db",
		LogLevel:      "info",
		StatusPath:    "data/status.json",
		ChartDir:      "data/charts",
		RecentWindow:  48,
		BusyTimeoutMs: 5000,
		API: API{
			Port:       8080,
			RatePerSec: 5,
			Burst:      10,
		},
		Model: Model{
			ProductionPerWorker:  p.ProductionPerWorker,
			ConsumptionPerPerson: p.ConsumptionPerPerson,
			ProductionNoise:      p.ProductionNoise,
			ConsumptionNoise:     p.ConsumptionNoise,
			InitialPopulation:    p.InitialPopulation,
			InitialFood:          p.InitialFood,
			InitialWorkers:       p.InitialWorkers,
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := validate(raw); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if cfg.Model.InitialWorkers > cfg.Model.InitialPopulation {
		return cfg, fmt.Errorf("model.initial_workers %d exceeds initial_population %d",
			cfg.Model.InitialWorkers, cfg.Model.InitialPopulation)
	}
	return cfg, nil
}

func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	// The validator expects JSON-decoded values.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return err
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return err
	}
	return sch.Validate(v)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HAMLET_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("HAMLET_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("HAMLET_SEED: %w", err)
		}
		c.Seed = n
	}
	if v := os.Getenv("HAMLET_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("RANDOM_ORG_API_KEY"); v != "" {
		c.Entropy.RandomOrgKey = v
	}
	if v := os.Getenv("HAMLET_API_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HAMLET_API_PORT: %w", err)
		}
		c.API.Port = n
	}
	return nil
}

// Params returns the engine parameters described by the model section.
func (c Config) Params() engine.Params {
	return engine.Params{
		ProductionPerWorker:  c.Model.ProductionPerWorker,
		ConsumptionPerPerson: c.Model.ConsumptionPerPerson,
		ProductionNoise:      c.Model.ProductionNoise,
		ConsumptionNoise:     c.Model.ConsumptionNoise,
		InitialPopulation:    c.Model.InitialPopulation,
		InitialFood:          c.Model.InitialFood,
		InitialWorkers:       c.Model.InitialWorkers,
	}
}

// BusyTimeout returns the store acquisition wait.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger and installs it as the default.
func (c Config) NewLogger() *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: c.Level(),
	}))
	slog.SetDefault(logger)
	return logger
}
