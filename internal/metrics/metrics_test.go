package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	t.Cleanup(func() {
		mu.Lock()
		backend = orig
		mu.Unlock()
	})
	fb := &fakeBackend{}
	SetBackend(fb)
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("orders", "fetch", nil, 2*time.Second)
	RecordStep("orders", "write", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("counters=%d histograms=%d; want 2/2", len(fb.counters), len(fb.histograms))
	}

	c0 := fb.counters[0]
	if c0.name != StepTotal || c0.delta != 1 {
		t.Fatalf("counter[0] = %#v", c0)
	}
	if c0.labels["job"] != "orders" || c0.labels["step"] != "fetch" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0] labels = %v", c0.labels)
	}
	if h0 := fb.histograms[0]; h0.name != StepDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0] = %#v", h0)
	}
	if fb.counters[1].labels["status"] != "failure" {
		t.Fatalf("counter[1] labels = %v", fb.counters[1].labels)
	}
	if h1 := fb.histograms[1]; h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRowsBatchesSegments(t *testing.T) {
	fb := install(t)

	RecordRows("orders", 1_000_000)
	RecordRows("orders", 0) // ignored
	RecordBatches("orders", 1)
	RecordSegment("orders", 52_428_800)

	want := []counterCall{
		{RowsTotal, 1_000_000, Labels{"job": "orders"}},
		{BatchesTotal, 1, Labels{"job": "orders"}},
		{SegmentTotal, 1, Labels{"job": "orders"}},
		{BytesTotal, 52_428_800, Labels{"job": "orders"}},
	}
	if len(fb.counters) != len(want) {
		t.Fatalf("got %d counter calls, want %d: %#v", len(fb.counters), len(want), fb.counters)
	}
	for i, w := range want {
		got := fb.counters[i]
		if got.name != w.name || got.delta != w.delta || got.labels["job"] != "orders" {
			t.Fatalf("counter[%d] = %#v; want %#v", i, got, w)
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount=%d", fb.flushCount)
	}

	SetBackend(nil)
	if current() != Backend(fb) {
		t.Fatal("SetBackend(nil) must keep the installed backend")
	}
}
