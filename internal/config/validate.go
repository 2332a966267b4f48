// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of
// issues (errors and warnings) that callers can surface in a CLI or in
// tests, before any stage touches a file.
package config

import (
	"fmt"
	"strings"

	"geoetl/internal/pipeline"
	"geoetl/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block
	// execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be
	// surfaced to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "global.root_path",
// "census.aggregation_levels[1]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is of error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a Config together with its
// stage switchers. It does not mutate either; callers decide whether to
// treat warnings as fatal.
func Validate(c Config, sw Switchers) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Global.RootPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "global.root_path",
			Message:  "root path must not be empty; set it in parameters or via ROOT_DATA",
		})
	}
	if strings.TrimSpace(c.Global.Region) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "global.region",
			Message:  "region must not be empty; it is the first element of the folder layout",
		})
	}

	issues = append(issues, validateCensus(c.Census, sw["census"])...)
	issues = append(issues, validateElections(c.Elections, sw["elections"])...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	issues = append(issues, validateExport(c.Export)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateSwitchers(sw)...)

	return issues
}

func validateCensus(c CensusConfig, sw StageSwitch) []Issue {
	issues := validateFamilyCommon("census", c.Org, c.Year, sw)

	if (sw.Interim || sw.Processed) && len(c.Levels) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "census.aggregation_levels",
			Message:  "at least one aggregation level is required",
		})
	}
	for i, level := range c.Levels {
		if _, err := pipeline.CensusLevel(level); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("census.aggregation_levels[%d]", i),
				Message:  err.Error(),
			})
		}
	}
	if c.NAThreshold < 0 || c.NAThreshold > 100 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "census.na_threshold",
			Message:  fmt.Sprintf("na_threshold=%v; must be a percentage in [0, 100]", c.NAThreshold),
		})
	}
	if sw.Processed && c.GlobalThreshold <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "census.global_threshold",
			Message:  fmt.Sprintf("global_threshold=%v; the no-global variant will prune every strictly positive column", c.GlobalThreshold),
		})
	}
	if sw.Raw && strings.TrimSpace(c.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "census.url",
			Message:  "the raw stage is enabled but no source url is configured",
		})
	}
	return issues
}

func validateElections(c ElectionsConfig, sw StageSwitch) []Issue {
	issues := validateFamilyCommon("elections", c.Org, c.Year, sw)

	if (sw.Interim || sw.Processed) && len(c.Levels) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "elections.aggregation_levels",
			Message:  "at least one aggregation level is required",
		})
	}
	for i, level := range c.Levels {
		if _, err := pipeline.ElectionLevel(level); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("elections.aggregation_levels[%d]", i),
				Message:  err.Error(),
			})
		}
	}
	if sw.Interim || sw.Processed {
		if strings.TrimSpace(c.Candidacy) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "elections.candidacy",
				Message:  "candidacy must not be empty; it names the race and its output folder",
			})
		} else if _, known := schema.CandidacyPositions[c.Candidacy]; !known && c.Position == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "elections.candidacy",
				Message:  fmt.Sprintf("unknown candidacy %q and no candidacy_position override", c.Candidacy),
			})
		}
		if len(c.Candidates) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "elections.candidates",
				Message:  "no candidates configured; only the blank and null columns will be produced",
			})
		}
	}
	if sw.Processed {
		switch c.GeocodingAPI {
		case "":
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "elections.geocoding_api",
				Message:  "the processed stage is enabled but no geocoding api is configured",
			})
		case "gmaps", "osm", "ibge":
		default:
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "elections.geocoding_api",
				Message:  fmt.Sprintf("unknown geocoding api %q; a matching locations_%s.csv must exist", c.GeocodingAPI, c.GeocodingAPI),
			})
		}
	}
	if sw.Raw && strings.TrimSpace(c.URL) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "elections.url",
			Message:  "the raw stage is enabled but no source url is configured",
		})
	}
	return issues
}

// validateFamilyCommon checks the folder-layout parameters a family
// needs as soon as any of its stages is enabled.
func validateFamilyCommon(name, org, year string, sw StageSwitch) []Issue {
	if !sw.Raw && !sw.Interim && !sw.Processed {
		return nil
	}
	var issues []Issue
	if strings.TrimSpace(org) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     name + ".org",
			Message:  "org must not be empty; it is part of the folder layout",
		})
	}
	if strings.TrimSpace(year) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     name + ".year",
			Message:  "year must not be empty; it is part of the folder layout",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Kind {
	case "none":
	case "prompush":
		if m.Options.String("push_gateway", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.options.push_gateway",
				Message:  "prompush metrics require a push_gateway address",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.kind",
			Message:  fmt.Sprintf("unknown metrics kind %q; ensure a matching backend exists", m.Kind),
		})
	}
	return issues
}

func validateExport(e Export) []Issue {
	var issues []Issue
	switch e.Kind {
	case "none":
	case "sqlite":
		if e.Options.String("path", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "export.options.path",
				Message:  "sqlite export requires a database path",
			})
		}
	case "postgres":
		if e.Options.String("dsn", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "export.options.dsn",
				Message:  "postgres export requires a dsn",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "export.kind",
			Message:  fmt.Sprintf("unknown export kind %q; ensure a matching sink exists", e.Kind),
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	return issues
}

func validateSwitchers(sw Switchers) []Issue {
	var issues []Issue
	for name := range sw {
		if name != "census" && name != "elections" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "switchers." + name,
				Message:  fmt.Sprintf("unknown dataset family %q; its toggles have no effect", name),
			})
		}
	}
	return issues
}
