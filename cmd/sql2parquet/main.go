// Command sql2parquet streams the result of a SQL query (or a whole table)
// into one or more Parquet files.
//
//	sql2parquet -kind mssql -dsn 'sqlserver://...' -table dbo.Orders -blocksize 512
//	sql2parquet -config export.json -pipelined
//
// The exit status identifies the failure kind: 2 unsupported column type,
// 3 source fetch failure, 4 write failure, 5 rotation failure, 130 canceled,
// 1 anything else (bad flags or config).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"sql2parquet/internal/config"
	"sql2parquet/internal/export"
	"sql2parquet/internal/metrics"
	"sql2parquet/internal/metrics/datadog"
	"sql2parquet/internal/metrics/prompush"

	// register every database backend with the source registry.
	_ "sql2parquet/internal/source/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// flagValues holds the command-line overrides. Only flags that were set on
// the command line are applied.
type flagValues struct {
	kind, dsn, table, query string
	output, compression     string
	rowGroup, blockSize     int
	queueDepth              int
	pipelined, overwrite    bool
	metricsBackend          string
	pushgatewayURL          string
	datadogAddr             string
	debug                   bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sql2parquet", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		fv       flagValues
		cfgPath  string
		validate bool
		verbose  bool
	)
	fs.StringVar(&cfgPath, "config", "", "export config JSON path")
	fs.StringVar(&fv.kind, "kind", "", "source kind: mssql, postgres, mysql, sqlite")
	fs.StringVar(&fv.dsn, "dsn", "", "source connection string")
	fs.StringVar(&fv.table, "table", "", "table to export (wins over -query)")
	fs.StringVar(&fv.query, "query", "", "query to export")
	fs.StringVar(&fv.output, "output", "", "output path; segments get a _NNNNN suffix when -blocksize > 0")
	fs.StringVar(&fv.compression, "compression", "", "snappy, zstd, gzip, brotli, lz4 or none")
	fs.IntVar(&fv.rowGroup, "rowgroup", 0, "rows per batch and rowgroup (env "+config.EnvRowGroupSize+")")
	fs.IntVar(&fv.blockSize, "blocksize", 0, "segment rotation threshold in MiB, 0 = single file (env "+config.EnvBlockSizeMB+")")
	fs.IntVar(&fv.queueDepth, "queue-depth", 0, "batches in flight between stages with -pipelined (env "+config.EnvQueueDepth+")")
	fs.BoolVar(&fv.pipelined, "pipelined", false, "overlap fetch, convert and write")
	fs.BoolVar(&fv.overwrite, "overwrite", false, "replace existing output files")
	fs.StringVar(&fv.metricsBackend, "metrics-backend", "", "none, pushgateway or datadog (env METRICS_BACKEND)")
	fs.StringVar(&fv.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	fs.StringVar(&fv.datadogAddr, "datadog-addr", "", "DogStatsD address (env DD_DOGSTATSD_ADDR)")
	fs.BoolVar(&fv.debug, "debug", false, "stage timings in progress lines and a preview of every segment")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return export.ExitOK
		}
		return export.ExitOther
	}

	log := newLogger(stderr, verbose)

	var cfg config.Export
	if cfgPath != "" {
		c, err := config.Load(cfgPath)
		if err != nil {
			log.WithError(err).Error("config: load failed")
			return export.ExitOther
		}
		cfg = c
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// Flags are applied before defaults so the derived output name sees
	// -table, and again after so they win over the environment.
	applyFlags(&cfg, fv, set)
	applyMetricsEnv(&cfg.Metrics)
	config.ApplyDefaults(&cfg)
	applyFlags(&cfg, fv, set)

	issues := config.ValidateExport(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Errorf("configuration is invalid")
		return export.ExitOther
	}
	if validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return export.ExitOK
	}

	flush := setupMetrics(cfg, log)
	err := runExport(ctx, cfg, log, stdout)
	flush()
	if err != nil {
		log.WithError(err).WithField("exit", export.ExitCode(err)).Error("sql2parquet: export failed")
		return export.ExitCode(err)
	}
	return export.ExitOK
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func applyFlags(cfg *config.Export, fv flagValues, set map[string]bool) {
	str := func(name, v string, dst *string) {
		if set[name] {
			*dst = v
		}
	}
	str("kind", fv.kind, &cfg.Source.Kind)
	str("dsn", fv.dsn, &cfg.Source.DSN)
	str("table", fv.table, &cfg.Source.Table)
	str("query", fv.query, &cfg.Source.Query)
	str("output", fv.output, &cfg.Output.Path)
	str("compression", fv.compression, &cfg.Output.Compression)
	str("metrics-backend", fv.metricsBackend, &cfg.Metrics.Backend)
	str("pushgateway-url", fv.pushgatewayURL, &cfg.Metrics.PushgatewayURL)
	str("datadog-addr", fv.datadogAddr, &cfg.Metrics.DatadogAddr)

	if set["rowgroup"] {
		cfg.Runtime.RowGroupSize = fv.rowGroup
	}
	if set["blocksize"] {
		cfg.Output.BlockSizeMB = fv.blockSize
	}
	if set["queue-depth"] {
		cfg.Runtime.QueueDepth = fv.queueDepth
	}
	if set["pipelined"] {
		cfg.Runtime.Pipelined = fv.pipelined
	}
	if set["overwrite"] {
		cfg.Output.Overwrite = fv.overwrite
	}
	if set["debug"] {
		cfg.Runtime.Debug = fv.debug
	}
}

// applyMetricsEnv fills metrics settings the file left empty from the
// environment.
func applyMetricsEnv(m *config.Metrics) {
	env := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	env(&m.Backend, "METRICS_BACKEND")
	env(&m.PushgatewayURL, "PUSHGATEWAY_URL")
	env(&m.DatadogAddr, "DD_DOGSTATSD_ADDR")
}

// setupMetrics installs the configured backend and returns a flush func. A
// backend that fails to initialize leaves metrics disabled.
func setupMetrics(cfg config.Export, log logrus.FieldLogger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case "datadog":
		tags := append([]string{"job:" + cfg.Job}, cfg.Metrics.Tags...)
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.DatadogAddr,
			Namespace:  "sql2parquet.",
			GlobalTags: tags,
		})
	default:
		log.WithField("backend", strconv.Quote(cfg.Metrics.Backend)).Debug("metrics: disabled")
		return func() {}
	}
	if err != nil {
		log.WithError(err).Warn("metrics: backend init failed; metrics disabled")
		return func() {}
	}
	metrics.SetBackend(b)
	log.WithFields(logrus.Fields{"backend": cfg.Metrics.Backend, "job": cfg.Job}).Debug("metrics: enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush failed")
		}
	}
}
