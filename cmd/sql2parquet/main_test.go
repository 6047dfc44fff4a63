package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"sql2parquet/internal/export"
	"sql2parquet/internal/parquetio"
	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// seedDB creates a SQLite database with an items table of n rows.
func seedDB(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE items (
		id INTEGER NOT NULL,
		name TEXT,
		price DECIMAL(10,2),
		added DATE
	)`)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		var name any = fmt.Sprintf("item-%d", i)
		if i%5 == 0 {
			name = nil
		}
		_, err := db.Exec(`INSERT INTO items VALUES (?, ?, ?, ?)`, i, name, "4.20", "2024-02-29")
		require.NoError(t, err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()

	db := seedDB(t, 45)
	out := filepath.Join(t.TempDir(), "items.parquet")

	code, stdout, stderr := runCLI(t,
		"-kind", "sqlite", "-dsn", db, "-table", "items",
		"-output", out, "-rowgroup", "20")
	require.Equal(t, export.ExitOK, code, stderr)
	require.Contains(t, stdout, "exported 45 rows in 1 segment(s)")
	require.Contains(t, stdout, "manifest: "+parquetio.ManifestPath(out))

	sum, err := parquetio.Inspect(out)
	require.NoError(t, err)
	require.EqualValues(t, 45, sum.Rows)
	require.Equal(t, []int64{20, 20, 5}, sum.RowGroupRows)

	m, err := parquetio.ReadManifest(out)
	require.NoError(t, err)
	require.Equal(t, parquetio.StatusComplete, m.Status)
	require.Equal(t, []string{"id", "name", "price", "added"}, m.Columns)
}

func TestRun_ConfigFileWithFlagOverrides(t *testing.T) {
	t.Parallel()

	db := seedDB(t, 30)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "export.json")
	fromFile := filepath.Join(dir, "from_file.parquet")
	fromFlag := filepath.Join(dir, "from_flag.parquet")

	js := fmt.Sprintf(`{
	  "job": "items_test",
	  "source": { "kind": "sqlite", "dsn": %q, "query": "SELECT id, name FROM items ORDER BY id" },
	  "output": { "path": %q, "compression": "zstd", "manifest": false },
	  "runtime": { "rowgroup_size": 10 }
	}`, db, fromFile)
	require.NoError(t, os.WriteFile(cfgPath, []byte(js), 0o644))

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-output", fromFlag, "-pipelined")
	require.Equal(t, export.ExitOK, code, stderr)
	require.NotContains(t, stdout, "manifest:")
	require.NoFileExists(t, fromFile)

	sum, err := parquetio.Inspect(fromFlag)
	require.NoError(t, err)
	require.EqualValues(t, 30, sum.Rows)
	require.Equal(t, []int64{10, 10, 10}, sum.RowGroupRows)
}

func TestRun_RotationAndDebugPreview(t *testing.T) {
	t.Parallel()

	db := seedDB(t, 12)
	out := filepath.Join(t.TempDir(), "items.parquet")

	// A 1 MiB threshold is never reached by this data: one segment, suffixed.
	code, stdout, stderr := runCLI(t,
		"-kind", "sqlite", "-dsn", db, "-table", "items",
		"-output", out, "-blocksize", "1", "-debug")
	require.Equal(t, export.ExitOK, code, stderr)

	seg := parquetio.SegmentPath(out, 1, true)
	require.FileExists(t, seg)
	require.NoFileExists(t, out)
	require.Contains(t, stdout, "== "+seg)
	require.Contains(t, stdout, "verified: 12 rows in 1 rowgroups")
	require.Contains(t, stdout, "== manifest complete: 12 rows, 1 segment(s)")
	require.Contains(t, stdout, "(null)")
	require.Contains(t, stdout, "item-1")
}

func TestRun_ValidateOnly(t *testing.T) {
	t.Parallel()

	code, stdout, _ := runCLI(t, "-kind", "sqlite", "-dsn", "x.db", "-table", "items", "-validate")
	require.Equal(t, export.ExitOK, code)
	require.Contains(t, stdout, "configuration is valid")

	code, _, stderr := runCLI(t, "-kind", "sqlite", "-table", "items", "-validate")
	require.Equal(t, export.ExitOther, code)
	require.Contains(t, stderr, "source.dsn")
}

func TestRun_BadFlagsAndConfig(t *testing.T) {
	t.Parallel()

	code, _, _ := runCLI(t, "-nope")
	require.Equal(t, export.ExitOther, code)

	code, _, stderr := runCLI(t, "-config", filepath.Join(t.TempDir(), "missing.json"))
	require.Equal(t, export.ExitOther, code)
	require.Contains(t, stderr, "config: load failed")
}

func TestRun_ExistingOutputIsRotationError(t *testing.T) {
	t.Parallel()

	db := seedDB(t, 3)
	out := filepath.Join(t.TempDir(), "items.parquet")
	require.NoError(t, os.WriteFile(out, []byte("previous run"), 0o644))

	code, _, _ := runCLI(t, "-kind", "sqlite", "-dsn", db, "-table", "items", "-output", out)
	require.Equal(t, export.ExitRotation, code)

	code, _, stderr := runCLI(t, "-kind", "sqlite", "-dsn", db, "-table", "items", "-output", out, "-overwrite")
	require.Equal(t, export.ExitOK, code, stderr)
}

// Not parallel: swaps the openCursor hook.
func TestRun_ExitCodePerFailureKind(t *testing.T) {
	orig := openCursor
	t.Cleanup(func() { openCursor = orig })

	cols := []schema.ColumnDescriptor{{Name: "id", Tag: schema.TagInteger, Precision: 10}}
	rows := []schema.Row{{int32(1)}, {int32(2)}, {int32(3)}}

	tests := []struct {
		name string
		open func(context.Context, source.Config) (source.Cursor, error)
		want int
	}{
		{"connect failure", func(context.Context, source.Config) (source.Cursor, error) {
			return nil, errors.New("login failed")
		}, export.ExitFetch},
		{"fetch failure", func(context.Context, source.Config) (source.Cursor, error) {
			return &source.SliceCursor{Cols: cols, Rows: rows, FailAt: 2, Err: errors.New("reset")}, nil
		}, export.ExitFetch},
		{"unsupported type", func(context.Context, source.Config) (source.Cursor, error) {
			return &source.SliceCursor{Cols: []schema.ColumnDescriptor{{Name: "v", Tag: schema.TagUnknown}}}, nil
		}, export.ExitUnsupportedType},
		{"bad value", func(context.Context, source.Config) (source.Cursor, error) {
			return &source.SliceCursor{Cols: cols, Rows: []schema.Row{{"x"}}}, nil
		}, export.ExitWrite},
	}
	for _, tt := range tests {
		openCursor = tt.open
		out := filepath.Join(t.TempDir(), "out.parquet")
		code, _, stderr := runCLI(t, "-kind", "mssql", "-dsn", "sqlserver://x", "-table", "t", "-output", out, "-rowgroup", "1")
		if code != tt.want {
			t.Fatalf("%s: exit=%d, want %d\n%s", tt.name, code, tt.want, stderr)
		}
		if !strings.Contains(stderr, "export failed") {
			t.Fatalf("%s: failure not logged:\n%s", tt.name, stderr)
		}
	}
}
