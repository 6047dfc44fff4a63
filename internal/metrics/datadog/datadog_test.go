package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"sql2parquet/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("expected error for empty Addr")
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	got := labelsToTags(metrics.Labels{"step": "write", "job": "orders", "status": "success"})
	want := []string{"job:orders", "status:success", "step:write"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	if labelsToTags(nil) != nil {
		t.Fatalf("nil labels must give nil tags")
	}
}

func TestBackend_SendsDogStatsD(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp unavailable: %v", err)
	}
	defer conn.Close()

	b, err := NewBackend(
		Config{Addr: conn.LocalAddr().String(), Namespace: "sql2parquet."},
		statsd.WithoutTelemetry(),
		statsd.WithoutClientSideAggregation(),
	)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"job": "orders"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "sql2parquet.export_rows_total:5|c|#job:orders") {
		t.Fatalf("packet %q", got)
	}

	// A closed backend drops metrics silently.
	b.IncCounter(metrics.RowsTotal, 1, nil)
}
