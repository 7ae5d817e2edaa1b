package disney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"disneyetl/internal/columnar"
	"disneyetl/internal/config"
	"disneyetl/internal/datasource"
	"disneyetl/internal/datasource/file"
	"disneyetl/internal/metrics"
	"disneyetl/internal/module"
	"disneyetl/internal/normalize"
	"disneyetl/internal/objectstore"
	pjson "disneyetl/internal/parser/json"
	"disneyetl/internal/recipe"
	"disneyetl/internal/storage"
	"disneyetl/pkg/records"
)

// IDField identifies a character in the raw payload.
const IDField = "_id"

// Curated turns the raw listing into one Parquet object per character.
type Curated struct {
	module.Base

	// Raw is read in Extract, Store receives the Parquet objects.
	Raw   objectstore.Store
	Store objectstore.Store

	Engine *recipe.Engine
	Recipe recipe.Recipe

	// Ledger records every uploaded object. Nil means storage.Nop.
	Ledger storage.Repository

	// Workers bounds how many characters are transformed and uploaded at
	// once; <= 0 means config.DefaultWorkers.
	Workers int
}

var _ module.Module = (*Curated)(nil)

// NewCurated wires a curated module with the embedded character recipe.
func NewCurated(tmpDir string, raw, curated objectstore.Store, ledger storage.Repository, workers int, logger zerolog.Logger) (*Curated, error) {
	eng := recipe.NewEngine(logger)
	r, err := CuratedRecipe(eng.Funcs)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("dag", CuratedDAG).Logger()
	eng.Logger = l
	return &Curated{
		Base: module.Base{
			Name:   CuratedDAG,
			TmpDir: tmpDir,
			Ext:    ".json",
			Logger: l,
		},
		Raw:     raw,
		Store:   curated,
		Engine:  eng,
		Recipe:  r,
		Ledger:  ledger,
		Workers: workers,
	}, nil
}

// Extract downloads the raw listing into the scratch file.
func (m *Curated) Extract(ctx context.Context, _ config.DAGParams) error {
	path := m.TempFilePath()
	if err := m.Raw.Get(ctx, RawKey, path); err != nil {
		return fmt.Errorf("disney curated: extract: %w", err)
	}
	m.Logger.Info().Str("bucket", m.Raw.Bucket()).Str("key", RawKey).Str("path", path).Msg("raw characters downloaded")
	return nil
}

// WorkDir is where per-character Parquet files are staged:
// {TmpDir}{Name}/.
func (m *Curated) WorkDir() string { return m.TmpDir + m.Name + "/" }

// Load transforms every character of the scratch file and uploads it as
// CuratedPrefix{id}.parquet. Uploaded objects go to the ledger in batches
// of p.ChunkSize.
func (m *Curated) Load(ctx context.Context, p config.DAGParams) error {
	chars, err := m.readCharacters(ctx)
	if err != nil {
		return err
	}

	ledger := m.Ledger
	if ledger == nil {
		ledger = storage.Nop{}
	}
	batch := p.ChunkSize
	if batch <= 0 {
		batch = config.DefaultChunkSize
	}
	workers := m.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}

	wctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	entries := make(chan storage.Entry, workers)
	ledgerDone := make(chan error, 1)
	go func() {
		_, err := storage.LoadBatches(ctx, m.Logger, entries, batch, ledger.Record)
		if err != nil {
			cancel(err)
		}
		ledgerDone <- err
	}()

	canonical := m.Recipe.Canonical()
	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(workers)
	for _, c := range chars {
		id, err := CharacterID(c)
		if err != nil {
			cancel(err)
			break
		}
		g.Go(func() error {
			return m.loadOne(gctx, c, id, canonical, entries)
		})
	}
	werr := g.Wait()
	close(entries)
	lerr := <-ledgerDone

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("disney curated: load: %w", err)
	}
	if lerr != nil {
		return fmt.Errorf("disney curated: ledger: %w", lerr)
	}
	if werr == nil || errors.Is(werr, context.Canceled) {
		if cause := context.Cause(wctx); cause != nil {
			werr = cause
		}
	}
	if werr != nil {
		return fmt.Errorf("disney curated: load: %w", werr)
	}
	if err := os.RemoveAll(m.WorkDir()); err != nil {
		m.Logger.Warn().Err(err).Str("dir", m.WorkDir()).Msg("could not remove work dir")
	}
	m.Logger.Info().Int("characters", len(chars)).Str("bucket", m.Store.Bucket()).Msg("curated characters uploaded")
	return nil
}

func (m *Curated) readCharacters(ctx context.Context) ([]*records.Ordered, error) {
	path := m.TempFilePath()
	chars, err := datasource.Decode(ctx, file.NewLocal(path), func(r io.Reader) ([]*records.Ordered, error) {
		return pjson.DecodeAll(r, pjson.Options{AllowArrays: true})
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &module.TempFileMissingError{Path: path}
		}
		return nil, fmt.Errorf("disney curated: read %s: %w", path, err)
	}
	return chars, nil
}

func (m *Curated) loadOne(ctx context.Context, c *records.Ordered, id string, canonical []string, out chan<- storage.Entry) error {
	log := m.Logger.With().Str("record_id", id).Logger()

	t, err := m.Engine.Transform(normalize.Explode(c), m.Recipe, canonical)
	if err != nil {
		return fmt.Errorf("character %s: %w", id, err)
	}
	if t.Len() == 0 {
		// A character with an empty list explodes to no rows.
		log.Info().Msg("character has no rows; skipped")
		metrics.RecordObjects(m.Name, "skipped", 1)
		return nil
	}

	path := m.WorkDir() + id + ".parquet"
	if err := columnar.WriteFile(path, t); err != nil {
		return fmt.Errorf("character %s: %w", id, err)
	}
	defer os.Remove(path)

	key := CuratedPrefix + id + ".parquet"
	if err := m.Store.Put(ctx, key, path); err != nil {
		return fmt.Errorf("character %s: upload %s: %w", id, key, err)
	}
	metrics.RecordObjects(m.Name, "uploaded", 1)
	log.Debug().Str("key", key).Int("rows", t.Len()).Msg("character uploaded")

	e := storage.Entry{
		DAG:       m.Name,
		ObjectKey: key,
		RecordID:  id,
		Rows:      int64(t.Len()),
		LoadedAt:  time.Now().UTC(),
	}
	select {
	case out <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CharacterID returns the _id of c as a string usable in an object key.
func CharacterID(c *records.Ordered) (string, error) {
	v, ok := c.Get(IDField)
	if !ok || v == nil {
		return "", fmt.Errorf("disney curated: character without %s", IDField)
	}
	var id string
	switch x := v.(type) {
	case json.Number:
		id = x.String()
	case string:
		id = x
	default:
		return "", fmt.Errorf("disney curated: %s has type %T", IDField, v)
	}
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("disney curated: %s %q is not a valid object name", IDField, id)
	}
	return id, nil
}
