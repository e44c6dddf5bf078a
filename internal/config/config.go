// Package config assembles the settings of the detector, the batch pipeline
// and the image cache.
//
// Settings are resolved in three steps: built-in defaults, an optional JSON
// file, then GCP_MCP_* environment variables. Each step overrides only the
// values it names.
//
// # Environment Variables
//
//	GCP_MCP_LOG_LEVEL=debug        per-image debug logging
//	GCP_MCP_WORKERS=8              concurrent detections
//	GCP_MCP_DETECT_TIMEOUT=30s     time limit per image
//	GCP_MCP_DISTANCE_GATE=0.0003   matching gate in CRS units
//	GCP_MCP_MAX_SQUARED_ERROR=8e4  reprojection gate in px²
//	GCP_MCP_SKIP_IF_PINNED=true    leave scenes with pins untouched
//	GCP_MCP_CACHE_CAPACITY=8       decoded images kept in memory
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ironsheep/gcp-tools-mcp/internal/detection"
	"github.com/ironsheep/gcp-tools-mcp/internal/imaging"
	"github.com/ironsheep/gcp-tools-mcp/internal/pipeline"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "GCP_MCP_"

// Config is the complete tool configuration.
type Config struct {
	Detection detection.Config `json:"detection"`
	Pipeline  pipeline.Config  `json:"pipeline"`

	// CacheCapacity is the number of decoded images kept in memory.
	CacheCapacity int `json:"cache_capacity"`

	// Debug enables verbose logging everywhere.
	Debug bool `json:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Detection:     detection.DefaultConfig(),
		Pipeline:      pipeline.DefaultConfig(),
		CacheCapacity: imaging.DefaultCacheCapacity,
	}
}

// LoadFromFile reads a JSON file on top of the defaults. Unknown fields are
// rejected so typos do not go unnoticed.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the process environment.
func (c *Config) ApplyEnv() error {
	return c.ApplyLookup(os.LookupEnv)
}

// ApplyLookup overrides settings from lookup, which has the signature of
// os.LookupEnv.
func (c *Config) ApplyLookup(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}

	if v, ok := get("LOG_LEVEL"); ok {
		c.Debug = v == "debug"
	}
	if v, ok := get("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", EnvPrefix, err)
		}
		c.Pipeline.Workers = n
	}
	if v, ok := get("DETECT_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sDETECT_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Pipeline.DetectTimeout = pipeline.Duration(d)
	}
	if v, ok := get("DISTANCE_GATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sDISTANCE_GATE: %w", EnvPrefix, err)
		}
		c.Pipeline.Matcher.DistanceGate = f
	}
	if v, ok := get("MAX_SQUARED_ERROR"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_SQUARED_ERROR: %w", EnvPrefix, err)
		}
		c.Pipeline.Validator.MaxSquaredError = f
	}
	if v, ok := get("SKIP_IF_PINNED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSKIP_IF_PINNED: %w", EnvPrefix, err)
		}
		c.Pipeline.SkipIfPinned = b
	}
	if v, ok := get("CACHE_CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_CAPACITY: %w", EnvPrefix, err)
		}
		c.CacheCapacity = n
	}

	c.Pipeline.Debug = c.Pipeline.Debug || c.Debug
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("cache_capacity must be positive, got %d", c.CacheCapacity)
	}
	return nil
}

// Load resolves the configuration: defaults, then path when not empty, then
// the environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
