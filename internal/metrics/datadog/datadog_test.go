package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"disneyetl/internal/metrics"
)

func TestLabelsToTags_Sorted(t *testing.T) {
	t.Parallel()

	got := labelsToTags(metrics.Labels{"task": "load_task", "dag": "d", "status": "success"})
	want := []string{"dag:d", "status:success", "task:load_task"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labelsToTags = %v; want %v", got, want)
	}
	if labelsToTags(nil) != nil {
		t.Fatalf("labelsToTags(nil) should be nil")
	}
}

func TestZeroBackendIsNop(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v; want nil", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() = %v; want nil", err)
	}
}

/*
TestBackend_SendsOverUDP points the backend at a local UDP listener and
checks that a counter with its namespace and tags arrives after Flush.
*/
func TestBackend_SendsOverUDP(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listener unavailable: %v", err)
	}
	defer conn.Close()

	b, err := NewBackend(Config{Addr: conn.LocalAddr().String(), Namespace: "disneyetl."})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	defer b.Close()

	b.IncCounter(metrics.ObjectsTotal, 3, metrics.Labels{"dag": "d", "kind": "uploaded"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	got := string(buf[:n])
	if !strings.Contains(got, "disneyetl.etl_objects_total:3|c") {
		t.Fatalf("payload = %q; want namespaced count", got)
	}
	if !strings.Contains(got, "dag:d") || !strings.Contains(got, "kind:uploaded") {
		t.Fatalf("payload = %q; want dag and kind tags", got)
	}
}
