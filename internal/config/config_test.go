package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

/*
TestConfig_DecodeRoundTrip verifies that the parameters JSON decodes
into the intended struct graph, including the typed access to the
free-form metrics and export option bags. Parsing from a JSON string
keeps the test hermetic and focused on the API surface rather than
filesystem wiring.
*/
func TestConfig_DecodeRoundTrip(t *testing.T) {
	t.Parallel()

	const js = `{
	  "global": { "root_path": "/srv/data", "region": "brazil" },
	  "census": {
	    "org": "ibge",
	    "year": "2010",
	    "data_name": "census",
	    "url": "https://example.org/census/",
	    "aggregation_levels": ["census tract", "city"],
	    "na_threshold": 70,
	    "global_threshold": 97
	  },
	  "elections": {
	    "org": "tse",
	    "year": "2018",
	    "data_name": "elections",
	    "aggregation_levels": ["polling place", "city"],
	    "candidacy": "president",
	    "candidates": [90, 91],
	    "geocoding_api": "gmaps"
	  },
	  "metrics": {
	    "kind": "prompush",
	    "options": { "push_gateway": "http://push:9091", "job": "geoetl", "timeout_seconds": 5 }
	  },
	  "export": {
	    "kind": "sqlite",
	    "options": { "path": "out.db", "truncate": true }
	  },
	  "runtime": { "workers": 4 }
	}`

	var c Config
	if err := json.Unmarshal([]byte(js), &c); err != nil {
		t.Fatalf("json.Unmarshal(Config): %v", err)
	}

	if c.Global.RootPath != "/srv/data" || c.Global.Region != "brazil" {
		t.Fatalf("global decoded = %#v", c.Global)
	}
	if c.Census.Org != "ibge" || c.Census.Year != "2010" {
		t.Fatalf("census org/year = %q/%q", c.Census.Org, c.Census.Year)
	}
	if want := []string{"census tract", "city"}; !reflect.DeepEqual(c.Census.Levels, want) {
		t.Fatalf("census levels = %v, want %v", c.Census.Levels, want)
	}
	if c.Census.NAThreshold != 70 || c.Census.GlobalThreshold != 97 {
		t.Fatalf("census thresholds = %v/%v", c.Census.NAThreshold, c.Census.GlobalThreshold)
	}
	if c.Elections.Candidacy != "president" || c.Elections.GeocodingAPI != "gmaps" {
		t.Fatalf("elections decoded = %#v", c.Elections)
	}
	if want := []int{90, 91}; !reflect.DeepEqual(c.Elections.Candidates, want) {
		t.Fatalf("candidates = %v, want %v", c.Elections.Candidates, want)
	}

	if c.Metrics.Kind != "prompush" {
		t.Fatalf("metrics.kind = %q, want prompush", c.Metrics.Kind)
	}
	if got := c.Metrics.Options.String("push_gateway", ""); got != "http://push:9091" {
		t.Fatalf("push_gateway = %q", got)
	}
	if got := c.Metrics.Options.Int("timeout_seconds", 0); got != 5 {
		t.Fatalf("timeout_seconds = %d, want 5", got)
	}
	if got := c.Export.Options.Bool("truncate", false); !got {
		t.Fatalf("truncate = %v, want true", got)
	}
	if c.Runtime.Workers != 4 {
		t.Fatalf("workers = %d, want 4", c.Runtime.Workers)
	}
}

/*
TestOptions_NullDecodesEmpty verifies missing and null options objects
decode to a non-nil, empty map so call sites never nil-check.
*/
func TestOptions_NullDecodesEmpty(t *testing.T) {
	t.Parallel()

	var m Metrics
	if err := json.Unmarshal([]byte(`{ "kind": "none", "options": null }`), &m); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if m.Options == nil {
		t.Fatal("options is nil, want empty map")
	}
	if got := m.Options.String("push_gateway", "default"); got != "default" {
		t.Fatalf("String on empty options = %q, want default", got)
	}
}

func TestLoad_DefaultsAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.json")
	js := `{ "global": { "root_path": "/from/file", "region": "brazil" } }`
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("ROOT_DATA", "/from/env")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Global.RootPath != "/from/env" {
		t.Fatalf("root_path = %q, want env override /from/env", c.Global.RootPath)
	}
	if c.Census.Dataset != "census" || c.Elections.Dataset != "elections" {
		t.Fatalf("dataset defaults = %q/%q", c.Census.Dataset, c.Elections.Dataset)
	}
	if c.Metrics.Kind != "none" || c.Export.Kind != "none" {
		t.Fatalf("kind defaults = %q/%q", c.Metrics.Kind, c.Export.Kind)
	}
}

/*
TestLoad_EnvFillsConnectionOptions verifies the deploy-specific option
keys can come from the environment when the parameters file omits them:
PUSHGATEWAY_URL fills metrics.options.push_gateway and DATABASE_URL
fills export.options.dsn. The environment supplies values only; the
kinds still come from the file, so an env var alone never switches a
backend on.
*/
func TestLoad_EnvFillsConnectionOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.json")
	js := `{ "global": { "root_path": "/srv/data", "region": "brazil" } }`
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PUSHGATEWAY_URL", "http://push.internal:9091")
	t.Setenv("DATABASE_URL", "postgres://geo:geo@db:5432/geo")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Metrics.Options.String("push_gateway", ""); got != "http://push.internal:9091" {
		t.Fatalf("push_gateway = %q, want env value", got)
	}
	if got := c.Export.Options.String("dsn", ""); got != "postgres://geo:geo@db:5432/geo" {
		t.Fatalf("dsn = %q, want env value", got)
	}
	if c.Metrics.Kind != "none" || c.Export.Kind != "none" {
		t.Fatalf("kinds = %q/%q, env must not enable backends", c.Metrics.Kind, c.Export.Kind)
	}
}

func TestLoad_FileOptionsWinOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parameters.json")
	js := `{
	  "global":  { "root_path": "/srv/data", "region": "brazil" },
	  "metrics": { "kind": "prompush", "options": { "push_gateway": "http://file:9091" } },
	  "export":  { "kind": "postgres", "options": { "dsn": "postgres://file/db" } }
	}`
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PUSHGATEWAY_URL", "http://env:9091")
	t.Setenv("DATABASE_URL", "postgres://env/db")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Metrics.Options.String("push_gateway", ""); got != "http://file:9091" {
		t.Fatalf("push_gateway = %q, want file value to win", got)
	}
	if got := c.Export.Options.String("dsn", ""); got != "postgres://file/db" {
		t.Fatalf("dsn = %q, want file value to win", got)
	}
}

/*
TestOptions_TypedGetters exercises the coercion rules of the typed
accessors against literal option bags:

  - Float accepts float64 and otherwise returns the default.
  - StringSlice flattens a JSON string array, promotes a lone string to
    a one-element slice, skips non-string elements, and returns nil for
    missing or mistyped keys.
  - Int casts float64, the type JSON numbers decode to.
*/
func TestOptions_TypedGetters(t *testing.T) {
	t.Parallel()

	o := Options{
		"na_ratio":   0.7,
		"label":      "city",
		"encodings":  []any{"utf8", "latin1", 42},
		"single":     "gmaps",
		"timeout":    float64(30),
		"not_a_list": true,
	}

	if got := o.Float("na_ratio", 0); got != 0.7 {
		t.Fatalf("Float(na_ratio) = %v, want 0.7", got)
	}
	if got := o.Float("label", 1.5); got != 1.5 {
		t.Fatalf("Float on string = %v, want default 1.5", got)
	}
	if got := o.Float("missing", 2.5); got != 2.5 {
		t.Fatalf("Float on missing = %v, want default 2.5", got)
	}

	if got, want := o.StringSlice("encodings"), []string{"utf8", "latin1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("StringSlice(encodings) = %v, want %v", got, want)
	}
	if got, want := o.StringSlice("single"), []string{"gmaps"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("StringSlice(single) = %v, want %v", got, want)
	}
	if got := o.StringSlice("not_a_list"); got != nil {
		t.Fatalf("StringSlice on bool = %v, want nil", got)
	}
	if got := o.StringSlice("missing"); got != nil {
		t.Fatalf("StringSlice on missing = %v, want nil", got)
	}

	if got := o.Int("timeout", 0); got != 30 {
		t.Fatalf("Int(timeout) = %d, want 30", got)
	}
}

func TestLoadSwitchers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "switchers.json")
	js := `{
	  "census":    { "raw": false, "interim": true, "processed": true },
	  "elections": { "raw": true,  "interim": true, "processed": false }
	}`
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sw, err := LoadSwitchers(path)
	if err != nil {
		t.Fatalf("LoadSwitchers: %v", err)
	}
	if got := sw["census"]; got.Raw || !got.Interim || !got.Processed {
		t.Fatalf("census switch = %+v", got)
	}
	if got := sw["elections"]; !got.Raw || !got.Interim || got.Processed {
		t.Fatalf("elections switch = %+v", got)
	}
}
