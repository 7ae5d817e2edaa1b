package datasource_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"disneyetl/internal/datasource"
	"disneyetl/internal/datasource/file"
)

type closeErrSource struct{ err error }

type closeErrReader struct {
	io.Reader
	err error
}

func (r closeErrReader) Close() error { return r.err }

func (s closeErrSource) Open(context.Context) (io.ReadCloser, error) {
	return closeErrReader{Reader: strings.NewReader("abc"), err: s.err}, nil
}

func readString(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}

func TestDecode_LocalFile(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "x.json")
	if err := os.WriteFile(p, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := datasource.Decode(context.Background(), file.NewLocal(p), readString)
	if err != nil || got != "payload" {
		t.Fatalf("Decode = (%q, %v); want (payload, nil)", got, err)
	}
}

func TestDecode_OpenError(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "missing.json")
	if _, err := datasource.Decode(context.Background(), file.NewLocal(p), readString); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Decode err = %v; want os.ErrNotExist", err)
	}
}

func TestDecode_CloseError(t *testing.T) {
	t.Parallel()

	boom := errors.New("close failed")
	if _, err := datasource.Decode(context.Background(), closeErrSource{err: boom}, readString); !errors.Is(err, boom) {
		t.Fatalf("Decode err = %v; want close error", err)
	}

	fnErr := errors.New("decode failed")
	_, err := datasource.Decode(context.Background(), closeErrSource{err: boom}, func(io.Reader) (int, error) {
		return 0, fnErr
	})
	if !errors.Is(err, fnErr) || errors.Is(err, boom) {
		t.Fatalf("Decode err = %v; want only the decode error", err)
	}
}
