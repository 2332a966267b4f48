// Package config defines the JSON configuration model for the pipeline.
// It is intentionally small and explicit: parameters live in one file
// (parameters.json), the per-dataset stage toggles in another
// (switchers.json), so operators can switch stages on and off without
// touching the run parameters. Decoding is performed by the standard
// library, with a light Options helper for the pluggable sections whose
// shape varies by kind.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is the top-level object decoded from parameters.json.
type Config struct {
	// Global holds the parameters shared by every dataset family.
	Global Global `json:"global"`

	// Census configures the census pipeline.
	Census CensusConfig `json:"census"`

	// Elections configures the election pipeline.
	Elections ElectionsConfig `json:"elections"`

	// Metrics selects the metrics backend.
	Metrics Metrics `json:"metrics"`

	// Export selects the optional SQL sink for processed artifacts.
	Export Export `json:"export"`

	// Runtime controls concurrency.
	Runtime RuntimeConfig `json:"runtime"`
}

// Global holds parameters shared by every dataset family. RootPath is
// usually supplied through the ROOT_DATA environment variable rather
// than committed to the parameters file.
type Global struct {
	RootPath string `json:"root_path"`
	Region   string `json:"region"`
}

// CensusConfig configures the census dataset family.
type CensusConfig struct {
	// Org and Year place the dataset in the folder layout.
	Org  string `json:"org"`
	Year string `json:"year"`

	// Dataset is the folder name under each stage. Defaults to "census".
	Dataset string `json:"data_name"`

	// URL is the index page the raw stage scrapes for zip archives.
	URL string `json:"url"`

	// Levels are the aggregation levels materialized per run.
	Levels []string `json:"aggregation_levels"`

	// NAThreshold is the percentage of present cells a row or column
	// must keep to survive the processed-stage sparsity drop.
	NAThreshold float64 `json:"na_threshold"`

	// GlobalThreshold is the saturation cutoff for the no-global
	// variant.
	GlobalThreshold float64 `json:"global_threshold"`
}

// ElectionsConfig configures the election dataset family.
type ElectionsConfig struct {
	Org     string   `json:"org"`
	Year    string   `json:"year"`
	Dataset string   `json:"data_name"`
	URL     string   `json:"url"`
	Levels  []string `json:"aggregation_levels"`

	// Candidacy names the race ("president", "governor").
	Candidacy string `json:"candidacy"`

	// Position overrides the candidacy position code when nonzero,
	// for races the built-in candidacy table does not know.
	Position int `json:"candidacy_position"`

	// Candidates are the ballot numbers pivoted into columns.
	Candidates []int `json:"candidates"`

	// GeocodingAPI selects the locations lookup (gmaps, osm, ibge).
	GeocodingAPI string `json:"geocoding_api"`
}

// Metrics selects the metrics backend. Current kinds: "none",
// "prompush" (Prometheus Pushgateway). Options for prompush:
// push_gateway (string), job (string), timeout_seconds (int).
type Metrics struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Export selects the SQL sink processed artifacts are copied into.
// Current kinds: "none", "sqlite", "postgres". Options: path (sqlite),
// dsn (postgres), truncate (bool, rewrite instead of append).
type Export struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// RuntimeConfig controls concurrency. Workers bounds the parallel
// per-file raw-to-interim transformations; zero means one at a time.
type RuntimeConfig struct {
	Workers int `json:"workers"`
}

// StageSwitch toggles the stages of one dataset family. Stages always
// run in raw, interim, processed order; the switch only selects which
// of them run.
type StageSwitch struct {
	Raw       bool `json:"raw"`
	Interim   bool `json:"interim"`
	Processed bool `json:"processed"`
}

// Switchers maps a dataset family name to its stage toggles, decoded
// from switchers.json.
type Switchers map[string]StageSwitch

// Load reads and decodes parameters.json. A .env file in the working
// directory is read first, then the environment fills what the file
// leaves machine-specific: ROOT_DATA overrides global.root_path,
// PUSHGATEWAY_URL and DATABASE_URL supply metrics.options.push_gateway
// and export.options.dsn when the file omits them. The parameters file
// stays committable; the secrets and per-machine paths do not.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("load parameters: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("load parameters %s: %w", path, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return c, nil
}

// LoadSwitchers reads and decodes switchers.json.
func LoadSwitchers(path string) (Switchers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load switchers: %w", err)
	}
	var s Switchers
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("load switchers %s: %w", path, err)
	}
	return s, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ROOT_DATA"); v != "" {
		c.Global.RootPath = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" && c.Metrics.Options.String("push_gateway", "") == "" {
		c.Metrics.Options = c.Metrics.Options.with("push_gateway", v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && c.Export.Options.String("dsn", "") == "" {
		c.Export.Options = c.Export.Options.with("dsn", v)
	}
}

func (c *Config) applyDefaults() {
	if c.Census.Dataset == "" {
		c.Census.Dataset = "census"
	}
	if c.Elections.Dataset == "" {
		c.Elections.Dataset = "elections"
	}
	if c.Metrics.Kind == "" {
		c.Metrics.Kind = "none"
	}
	if c.Export.Kind == "" {
		c.Export.Kind = "none"
	}
}

// Options fetches typed values from the free-form sections whose shape
// depends on the selected kind. It performs only minimal type coercion
// and returns the provided default when a key is absent or of an
// unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or
// not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a
// bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as
// float64, so this method accepts float64 and casts.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Float returns the float value for key or def.
func (o Options) Float(key string, def float64) float64 {
	if v, ok := o[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// StringSlice returns the []string value for key, accepting both a JSON
// string array and a single string. Missing or mistyped keys return nil.
func (o Options) StringSlice(key string) []string {
	switch v := o[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// with returns a copy of o with key set, allocating when o is nil.
func (o Options) with(key string, v any) Options {
	out := Options{}
	for k, val := range o {
		out[k] = val
	}
	out[key] = v
	return out
}

// UnmarshalJSON decodes a null options object to a non-nil, empty
// Options map. A missing object leaves the field nil, which the typed
// getters tolerate, so call sites never need a nil check.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
