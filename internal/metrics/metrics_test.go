package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
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
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// install swaps in fb for the duration of the test.
func install(t *testing.T, fb *fakeBackend) {
	t.Helper()
	orig := current()
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
}

func TestRecordTask_SuccessAndFailure(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	RecordTask("dagA", "extract_task", nil, 2*time.Second)
	RecordTask("dagB", "load_task", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.callsCounters))
	}
	if len(fb.callsHistograms) != 2 {
		t.Fatalf("expected 2 histogram calls, got %d", len(fb.callsHistograms))
	}

	cc0 := fb.callsCounters[0]
	if cc0.name != TaskTotal || cc0.delta != 1 {
		t.Fatalf("counter[0] = %#v; want name=%s, delta=1", cc0, TaskTotal)
	}
	if cc0.labels["dag"] != "dagA" || cc0.labels["task"] != "extract_task" || cc0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels = %v; want dagA/extract_task/success", cc0.labels)
	}

	h0 := fb.callsHistograms[0]
	if h0.name != TaskDuration {
		t.Fatalf("hist[0].name=%q; want %s", h0.name, TaskDuration)
	}
	if h0.value < 2.0-0.001 || h0.value > 2.0+0.001 {
		t.Fatalf("hist[0].value=%v; want ~2.0", h0.value)
	}

	cc1 := fb.callsCounters[1]
	if cc1.labels["status"] != "failure" {
		t.Fatalf("counter[1].labels[status]=%q; want %q", cc1.labels["status"], "failure")
	}
	if h1 := fb.callsHistograms[1]; h1.value < 1.5-0.001 || h1.value > 1.5+0.001 {
		t.Fatalf("hist[1].value=%v; want ~1.5", h1.value)
	}
}

func TestRecordRun_Status(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	RecordRun("d", nil, false, time.Second)
	RecordRun("d", errors.New("x"), false, time.Second)
	RecordRun("d", context.DeadlineExceeded, true, time.Second)

	want := []string{"success", "failure", "cancelled"}
	for i, w := range want {
		c := fb.callsCounters[i]
		if c.name != RunTotal || c.labels["status"] != w || c.labels["dag"] != "d" {
			t.Fatalf("counter[%d] = %#v; want %s status=%s", i, c, RunTotal, w)
		}
		if fb.callsHistograms[i].name != RunDuration {
			t.Fatalf("hist[%d].name = %q; want %s", i, fb.callsHistograms[i].name, RunDuration)
		}
	}
}

func TestRecordObjects(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	RecordObjects("dagX", "uploaded", 3)
	RecordObjects("dagX", "uploaded", 0) // ignored
	RecordObjects("dagY", "rows", 5)

	if len(fb.callsCounters) != 2 {
		t.Fatalf("expected 2 counter calls, got %d", len(fb.callsCounters))
	}
	c0 := fb.callsCounters[0]
	if c0.name != ObjectsTotal || c0.delta != 3 || c0.labels["kind"] != "uploaded" {
		t.Fatalf("counter[0] = %#v; want %s delta=3 kind=uploaded", c0, ObjectsTotal)
	}
	c1 := fb.callsCounters[1]
	if c1.delta != 5 || c1.labels["dag"] != "dagY" || c1.labels["kind"] != "rows" {
		t.Fatalf("counter[1] = %#v; want dagY rows 5", c1)
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := &fakeBackend{}
	install(t, fb)

	if current() != Backend(fb) {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	// SetBackend(nil) should not nil out the backend.
	SetBackend(nil)
	if current() != Backend(fb) {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
