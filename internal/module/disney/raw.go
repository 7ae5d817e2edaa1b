package disney

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"disneyetl/internal/config"
	"disneyetl/internal/datasource/disneyapi"
	"disneyetl/internal/metrics"
	"disneyetl/internal/module"
	"disneyetl/internal/objectstore"
)

// CharacterLister is the subset of *disneyapi.Client the raw module needs.
type CharacterLister interface {
	Characters(ctx context.Context, opt disneyapi.ListOptions) ([]json.RawMessage, error)
}

// Raw copies the character listing into the raw bucket as is.
type Raw struct {
	module.Base
	API   CharacterLister
	Store objectstore.Store
}

var _ module.Module = (*Raw)(nil)

// NewRaw wires a raw module writing its scratch file under tmpDir.
func NewRaw(tmpDir string, api CharacterLister, store objectstore.Store, logger zerolog.Logger) *Raw {
	return &Raw{
		Base: module.Base{
			Name:   RawDAG,
			TmpDir: tmpDir,
			Ext:    ".json",
			Logger: logger.With().Str("dag", RawDAG).Logger(),
		},
		API:   api,
		Store: store,
	}
}

// Extract fetches up to p.Limit characters, p.ChunkSize per page, and writes
// them to the scratch file as one JSON array.
func (m *Raw) Extract(ctx context.Context, p config.DAGParams) error {
	chars, err := m.API.Characters(ctx, disneyapi.ListOptions{Limit: p.Limit, PageSize: p.ChunkSize})
	if err != nil {
		return fmt.Errorf("disney raw: extract: %w", err)
	}

	path := m.TempFilePath()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("disney raw: mkdir %s: %w", dir, err)
		}
	}
	if err := writeFileAtomic(path, disneyapi.EncodeArray(chars)); err != nil {
		return fmt.Errorf("disney raw: write %s: %w", path, err)
	}

	metrics.RecordObjects(m.Name, "extracted", int64(len(chars)))
	m.Logger.Info().Int("characters", len(chars)).Str("path", path).Msg("raw characters written")
	return nil
}

// Load uploads the scratch file to RawKey.
func (m *Raw) Load(ctx context.Context, _ config.DAGParams) error {
	path := m.TempFilePath()
	if err := objectstore.CheckLocalFile(path); err != nil {
		return fmt.Errorf("disney raw: load: %w", err)
	}
	if err := m.Store.Put(ctx, RawKey, path); err != nil {
		return fmt.Errorf("disney raw: upload %s to %s/%s: %w", path, m.Store.Bucket(), RawKey, err)
	}
	metrics.RecordObjects(m.Name, "uploaded", 1)
	m.Logger.Info().Str("bucket", m.Store.Bucket()).Str("key", RawKey).Msg("raw characters uploaded")
	return nil
}

// writeFileAtomic stages b in a sibling temp file and renames it over path,
// so readers never see a half-written scratch file.
func writeFileAtomic(path string, b []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
