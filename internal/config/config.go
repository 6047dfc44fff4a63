// Package config defines the JSON configuration model for an export job.
//
// An export file names the source query, the output location and the runtime
// knobs of the pipeline:
//
//	{
//	  "job":     "orders_nightly",
//	  "source":  { "kind": "mssql", "dsn": "sqlserver://...", "table": "dbo.Orders" },
//	  "output":  { "path": "out/orders.parquet", "block_size_mb": 512 },
//	  "runtime": { "rowgroup_size": 1000000, "pipelined": true },
//	  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://localhost:9091" }
//	}
//
// Command-line flags override file values; runtime sizes can also come from
// the environment. The precedence is flag, env, file, default.
package config

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sql2parquet/internal/source"
)

// Environment overrides for runtime sizes.
const (
	EnvRowGroupSize = "SQL2PQ_ROWGROUP_SIZE"
	EnvBlockSizeMB  = "SQL2PQ_BLOCK_SIZE_MB"
	EnvQueueDepth   = "SQL2PQ_QUEUE_DEPTH"
)

// Defaults.
const (
	DefaultJob          = "sql2parquet"
	DefaultSourceKind   = "mssql"
	DefaultRowGroupSize = source.DefaultBatchCapacity
	DefaultQueueDepth   = 1
	DefaultCompression  = "snappy"
	DefaultMetrics      = "none"
	DefaultPushgateway  = "http://localhost:9091"
)

// Export is the top-level document.
type Export struct {
	// Job labels metrics, log lines and the manifest.
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Output  Output  `json:"output"`
	Runtime Runtime `json:"runtime"`
	Mapping Mapping `json:"mapping"`
	Metrics Metrics `json:"metrics"`
}

// Source selects the database and the rows to export. When both Table and
// Query are set the table wins.
type Source struct {
	Kind  string `json:"kind"`
	DSN   string `json:"dsn"`
	Table string `json:"table"`
	Query string `json:"query"`

	// Options is interpreted by the backend (for postgres: application_name,
	// connect_timeout_seconds, runtime_params).
	Options source.Options `json:"options"`
}

// Cursor returns the source collaborator configuration.
func (s Source) Cursor() source.Config {
	return source.Config{Kind: s.Kind, DSN: s.DSN, Table: s.Table, Query: s.Query, Options: s.Options}
}

// Output controls the segments written.
type Output struct {
	Path        string `json:"path"`
	Compression string `json:"compression"`
	// BlockSizeMB is the rotation threshold in MiB; 0 writes a single file.
	BlockSizeMB int  `json:"block_size_mb"`
	Overwrite   bool `json:"overwrite"`
	// Manifest defaults to true when omitted.
	Manifest *bool `json:"manifest,omitempty"`
}

// WriteManifest reports whether a manifest should be written.
func (o Output) WriteManifest() bool { return o.Manifest == nil || *o.Manifest }

// Runtime controls batching and stage overlap.
type Runtime struct {
	RowGroupSize int  `json:"rowgroup_size"`
	Pipelined    bool `json:"pipelined"`
	QueueDepth   int  `json:"queue_depth"`
	Debug        bool `json:"debug"`
}

// Mapping adjusts the type mapping rules.
type Mapping struct {
	IEEEFloats bool `json:"ieee_floats"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string   `json:"backend"`
	PushgatewayURL string   `json:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr"`
	Tags           []string `json:"tags"`
}

// Decode reads an Export document.
func Decode(r io.Reader) (Export, error) {
	var e Export
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return Export{}, errors.Wrap(err, "decode config")
	}
	return e, nil
}

// Load reads the Export document at path.
func Load(path string) (Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return Export{}, errors.Wrap(err, "open config")
	}
	defer f.Close()
	e, err := Decode(f)
	if err != nil {
		return Export{}, errors.Wrapf(err, "%s", path)
	}
	return e, nil
}

// ApplyDefaults fills unset values. Runtime sizes found in the environment
// replace file values; flags are applied by the caller afterwards.
func ApplyDefaults(e *Export) {
	if strings.TrimSpace(e.Job) == "" {
		e.Job = DefaultJob
	}
	if e.Source.Kind == "" {
		e.Source.Kind = DefaultSourceKind
	}
	if e.Source.Options == nil {
		e.Source.Options = source.Options{}
	}
	if e.Output.Path == "" {
		e.Output.Path = DefaultOutputPath(e.Source)
	}
	if e.Output.Compression == "" {
		e.Output.Compression = DefaultCompression
	}
	if v := getenvInt(EnvBlockSizeMB, -1); v >= 0 {
		e.Output.BlockSizeMB = v
	}
	e.Runtime.RowGroupSize = pickInt(getenvInt(EnvRowGroupSize, 0), pickInt(e.Runtime.RowGroupSize, DefaultRowGroupSize))
	e.Runtime.QueueDepth = pickInt(getenvInt(EnvQueueDepth, 0), pickInt(e.Runtime.QueueDepth, DefaultQueueDepth))
	if e.Metrics.Backend == "" {
		e.Metrics.Backend = DefaultMetrics
	}
	if e.Metrics.Backend == "pushgateway" && e.Metrics.PushgatewayURL == "" {
		e.Metrics.PushgatewayURL = DefaultPushgateway
	}
}

// DefaultOutputPath derives "<table>.parquet" from the source table: lower
// case, dots replaced by underscores, diacritics removed. A query export
// defaults to "query.parquet".
func DefaultOutputPath(s Source) string {
	t := strings.TrimSpace(s.Table)
	if t == "" {
		return "query.parquet"
	}
	t = strings.Trim(t, "[]\"`")
	t = strings.NewReplacer("].[", ".", `"."`, ".", "`.`", ".").Replace(t)

	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(chain, strings.ToLower(t))
	if err != nil {
		ascii = strings.ToLower(t)
	}
	return strings.ReplaceAll(ascii, ".", "_") + ".parquet"
}

// getenvInt reads an int from the environment, returning def when unset or
// invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses a when positive, otherwise b.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
