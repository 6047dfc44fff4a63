package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Decoding
// -----------------------------------------------------------------------------

func TestExport_Decode(t *testing.T) {
	t.Parallel()

	const js = `{
	  "job": "orders_nightly",
	  "source": {
	    "kind": "postgres",
	    "dsn": "postgres://reader@db/shop",
	    "table": "sales.orders",
	    "options": { "runtime_params": { "search_path": "sales" } }
	  },
	  "output": { "path": "out/orders.parquet", "compression": "zstd", "block_size_mb": 512, "manifest": false },
	  "runtime": { "rowgroup_size": 250000, "pipelined": true, "queue_depth": 2 },
	  "mapping": { "ieee_floats": true },
	  "metrics": { "backend": "datadog", "datadog_addr": "127.0.0.1:8125", "tags": ["env:test"] }
	}`

	e, err := Decode(strings.NewReader(js))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Job != "orders_nightly" || e.Source.Kind != "postgres" || e.Source.Table != "sales.orders" {
		t.Fatalf("decoded = %+v", e)
	}
	if got := e.Source.Options.StringMap("runtime_params")["search_path"]; got != "sales" {
		t.Fatalf("source.options.runtime_params.search_path = %q", got)
	}
	if e.Output.BlockSizeMB != 512 || e.Output.Compression != "zstd" || e.Output.WriteManifest() {
		t.Fatalf("output = %+v", e.Output)
	}
	if e.Runtime.RowGroupSize != 250000 || !e.Runtime.Pipelined || e.Runtime.QueueDepth != 2 {
		t.Fatalf("runtime = %+v", e.Runtime)
	}
	if !e.Mapping.IEEEFloats || e.Metrics.DatadogAddr != "127.0.0.1:8125" || len(e.Metrics.Tags) != 1 {
		t.Fatalf("mapping/metrics = %+v %+v", e.Mapping, e.Metrics)
	}

	c := e.Source.Cursor()
	if c.Kind != "postgres" || c.Table != "sales.orders" || c.Options == nil {
		t.Fatalf("cursor config = %+v", c)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"job": 1`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Fatalf("err = %v, want decode error naming the file", err)
	}
}

// -----------------------------------------------------------------------------
// Defaults
// -----------------------------------------------------------------------------

// Not parallel: the environment is process-wide.
func TestApplyDefaults(t *testing.T) {
	t.Setenv(EnvRowGroupSize, "")
	t.Setenv(EnvBlockSizeMB, "")
	t.Setenv(EnvQueueDepth, "")

	e := Export{Source: Source{Table: "dbo.Objednávky"}, Metrics: Metrics{Backend: "pushgateway"}}
	ApplyDefaults(&e)

	if e.Job != DefaultJob || e.Source.Kind != DefaultSourceKind {
		t.Fatalf("job/kind = %q/%q", e.Job, e.Source.Kind)
	}
	if e.Output.Path != "dbo_objednavky.parquet" {
		t.Fatalf("output.path = %q", e.Output.Path)
	}
	if e.Output.Compression != "snappy" || e.Output.BlockSizeMB != 0 || !e.Output.WriteManifest() {
		t.Fatalf("output = %+v", e.Output)
	}
	if e.Runtime.RowGroupSize != 1_000_000 || e.Runtime.QueueDepth != 1 {
		t.Fatalf("runtime = %+v", e.Runtime)
	}
	if e.Metrics.PushgatewayURL != DefaultPushgateway {
		t.Fatalf("pushgateway url = %q", e.Metrics.PushgatewayURL)
	}
	if e.Source.Options == nil {
		t.Fatalf("source.options must be non-nil after defaults")
	}
}

func TestApplyDefaults_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvRowGroupSize, "5000")
	t.Setenv(EnvBlockSizeMB, "0")
	t.Setenv(EnvQueueDepth, "not-a-number")

	e := Export{
		Output:  Output{Path: "x.parquet", BlockSizeMB: 128},
		Runtime: Runtime{RowGroupSize: 20000, QueueDepth: 3},
	}
	ApplyDefaults(&e)

	if e.Runtime.RowGroupSize != 5000 {
		t.Fatalf("rowgroup_size = %d, want env value 5000", e.Runtime.RowGroupSize)
	}
	if e.Output.BlockSizeMB != 0 {
		t.Fatalf("block_size_mb = %d, want env value 0", e.Output.BlockSizeMB)
	}
	if e.Runtime.QueueDepth != 3 {
		t.Fatalf("queue_depth = %d, invalid env must keep file value", e.Runtime.QueueDepth)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  Source
		want string
	}{
		{Source{Table: "Orders"}, "orders.parquet"},
		{Source{Table: "dbo.Orders"}, "dbo_orders.parquet"},
		{Source{Table: "[dbo].[Orders]"}, "dbo_orders.parquet"},
		{Source{Table: "Sklad.Příjemka"}, "sklad_prijemka.parquet"},
		{Source{Query: "SELECT 1"}, "query.parquet"},
		{Source{}, "query.parquet"},
	}
	for _, tt := range tests {
		if got := DefaultOutputPath(tt.src); got != tt.want {
			t.Fatalf("DefaultOutputPath(%+v) = %q, want %q", tt.src, got, tt.want)
		}
	}
}
