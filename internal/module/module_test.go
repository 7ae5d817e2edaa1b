package module

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDAGName(t *testing.T) {
	t.Parallel()

	if got := DAGName("disney_api", "curated"); got != "disney_api_curated_dag" {
		t.Fatalf("DAGName = %q; want disney_api_curated_dag", got)
	}
}

func TestBase_TempFilePath(t *testing.T) {
	t.Parallel()

	b := &Base{Name: "disney_api_raw_dag", TmpDir: "/tmp/etl/", Ext: ".json"}
	if got, want := b.TempFilePath(), "/tmp/etl/disney_api_raw_dag.json"; got != want {
		t.Fatalf("TempFilePath = %q; want %q", got, want)
	}
	if b.DAGName() != "disney_api_raw_dag" {
		t.Fatalf("DAGName = %q", b.DAGName())
	}
}

/*
TestBase_DeleteTempFile removes an existing scratch file once, then reports
the second call as a TempFileMissingError that also matches os.ErrNotExist.
*/
func TestBase_DeleteTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() + string(os.PathSeparator)
	b := &Base{Name: "d", TmpDir: dir, Ext: ".json", Logger: zerolog.Nop()}
	if err := os.WriteFile(filepath.Join(dir, "d.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := b.DeleteTempFile(); err != nil {
		t.Fatalf("first DeleteTempFile: %v", err)
	}
	if _, err := os.Stat(b.TempFilePath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}

	err := b.DeleteTempFile()
	var missing *TempFileMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("second DeleteTempFile = %v; want *TempFileMissingError", err)
	}
	if missing.Path != b.TempFilePath() {
		t.Fatalf("Path = %q; want %q", missing.Path, b.TempFilePath())
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("errors.Is(err, os.ErrNotExist) = false")
	}
}
