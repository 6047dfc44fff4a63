package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"sql2parquet/internal/parquetio"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the export.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// document, e.g. "output.block_size_mb".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownSources = map[string]struct{}{
	"mssql":      {},
	"sqlserver":  {},
	"postgres":   {},
	"postgresql": {},
	"mysql":      {},
	"sqlite":     {},
}

// ValidateExport lints e without modifying it. Call it after ApplyDefaults
// and flag overrides.
func ValidateExport(e Export) []Issue {
	var issues []Issue

	if strings.TrimSpace(e.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels metrics and the manifest",
		})
	}
	issues = append(issues, validateSource(e.Source)...)
	issues = append(issues, validateOutput(e.Output)...)
	issues = append(issues, validateRuntime(e.Runtime)...)
	issues = append(issues, validateMetrics(e.Metrics)...)
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{SeverityError, "source.kind", "source.kind must not be empty"})
	} else if _, ok := knownSources[strings.ToLower(s.Kind)]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.kind",
			Message:  fmt.Sprintf("unknown source kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "source.dsn", "source.dsn must not be empty"})
	}

	table, query := strings.TrimSpace(s.Table), strings.TrimSpace(s.Query)
	switch {
	case table == "" && query == "":
		issues = append(issues, Issue{SeverityError, "source", "one of source.table or source.query is required"})
	case table != "" && query != "":
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "source.query",
			Message:  fmt.Sprintf("both table and query are set; exporting table %q and ignoring the query", table),
		})
	}
	return issues
}

func validateOutput(o Output) []Issue {
	var issues []Issue

	if strings.TrimSpace(o.Path) == "" {
		issues = append(issues, Issue{SeverityError, "output.path", "output.path must not be empty"})
	} else if ext := strings.ToLower(filepath.Ext(o.Path)); ext != ".parquet" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output.path",
			Message:  fmt.Sprintf("output extension %q is not .parquet", ext),
		})
	}
	if _, err := parquetio.ParseCompression(o.Compression); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output.compression",
			Message:  fmt.Sprintf("%v (have %s)", err, strings.Join(parquetio.CompressionNames(), ", ")),
		})
	}
	if o.BlockSizeMB < 0 {
		issues = append(issues, Issue{SeverityError, "output.block_size_mb", "block_size_mb must not be negative"})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.RowGroupSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.rowgroup_size",
			Message:  fmt.Sprintf("rowgroup_size=%d; must be positive", r.RowGroupSize),
		})
	} else if r.RowGroupSize < 10_000 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.rowgroup_size",
			Message:  fmt.Sprintf("rowgroup_size=%d; small rowgroups compress poorly and slow down readers", r.RowGroupSize),
		})
	}
	if r.QueueDepth < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.queue_depth", "queue_depth must not be negative"})
	}
	if !r.Pipelined && r.QueueDepth > 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.queue_depth",
			Message:  "queue_depth only applies when runtime.pipelined is true",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend requires pushgateway_url"})
		}
	case "datadog":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.datadog_addr", "datadog backend requires datadog_addr"})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend),
		})
	}
	return issues
}
