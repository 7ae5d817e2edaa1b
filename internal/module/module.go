// Package module defines the unit of work a DAG drives: a Module extracts
// data into a scratch file, loads it somewhere, and removes the scratch file.
//
// Every module owns exactly one scratch file named
//
//	{tmpDir}{dagName}{ext}
//
// so two DAGs never share a scratch path as long as their names differ.
package module

import (
	"context"
	"errors"
	"fmt"
	"os"

	"disneyetl/internal/config"

	"github.com/rs/zerolog"
)

// Module is one DAG's extract/load unit. Extract and Load receive the DAG's
// effective parameters (limit, chunk size, ...).
type Module interface {
	// DAGName is the name of the DAG built from this module.
	DAGName() string
	Extract(ctx context.Context, p config.DAGParams) error
	Load(ctx context.Context, p config.DAGParams) error
	// DeleteTempFile removes the scratch file. It fails with
	// *TempFileMissingError when the file is already gone.
	DeleteTempFile() error
}

// DAGName builds the conventional DAG name for a source and bucket, e.g.
// DAGName("disney_api", "raw") == "disney_api_raw_dag".
func DAGName(source, bucket string) string {
	return source + "_" + bucket + "_dag"
}

// Base carries what every module shares. Embed it and set the fields.
type Base struct {
	Name   string // DAG name
	TmpDir string // scratch prefix, with trailing separator
	Ext    string // scratch extension, e.g. ".json"
	Logger zerolog.Logger
}

// DAGName implements part of Module.
func (b *Base) DAGName() string { return b.Name }

// TempFilePath returns {TmpDir}{Name}{Ext}.
func (b *Base) TempFilePath() string { return b.TmpDir + b.Name + b.Ext }

// TempFileMissingError is returned by DeleteTempFile when the scratch file
// does not exist.
type TempFileMissingError struct {
	Path string
}

func (e *TempFileMissingError) Error() string {
	return fmt.Sprintf("couldn't find temporary file in %s", e.Path)
}

// Unwrap makes errors.Is(err, os.ErrNotExist) hold.
func (e *TempFileMissingError) Unwrap() error { return os.ErrNotExist }

// DeleteTempFile implements part of Module.
func (b *Base) DeleteTempFile() error {
	p := b.TempFilePath()
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &TempFileMissingError{Path: p}
		}
		return fmt.Errorf("module: remove %s: %w", p, err)
	}
	b.Logger.Info().Str("path", p).Msg("temporary file removed")
	return nil
}
