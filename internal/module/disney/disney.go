// Package disney holds the two Disney API modules.
//
//	disney_api_raw_dag      API -> raw bucket, one JSON array
//	disney_api_curated_dag  raw bucket -> curated bucket, one Parquet file per character
//
// Both go through a scratch file so the DAG's delete_temp_file task has a
// single thing to clean up.
package disney

import (
	_ "embed"
	"fmt"

	"disneyetl/internal/config"
	"disneyetl/internal/module"
	"disneyetl/internal/recipe"
)

// Source prefixes both DAG names.
const Source = "disney_api"

// Object keys.
const (
	RawKey        = "disney-api/characters/characters.json"
	CuratedPrefix = "disney-api/characters/"
)

// Buckets used to name the DAGs.
const (
	BucketRaw     = "raw"
	BucketCurated = "curated"
)

// DefaultTags are prepended to the tags configured for each DAG.
var DefaultTags = []string{"disney"}

// DefaultScheduler is the schedule both Disney DAGs run on.
const DefaultScheduler = "*/5 * * * *"

var (
	RawDAG     = module.DAGName(Source, BucketRaw)
	CuratedDAG = module.DAGName(Source, BucketCurated)
)

// DefaultParams are the parameters both DAGs start from before the
// configured overrides are applied.
func DefaultParams() config.DAGParams {
	p := config.DefaultDAGParams()
	p.Scheduler = DefaultScheduler
	p.Tags = append([]string(nil), DefaultTags...)
	return p
}

//go:embed curated_recipe.json
var curatedRecipeJSON []byte

// CuratedRecipe decodes the character recipe, binding fn names from funcs
// (nil means recipe.DefaultFuncs()).
func CuratedRecipe(funcs recipe.Funcs) (recipe.Recipe, error) {
	if funcs == nil {
		funcs = recipe.DefaultFuncs()
	}
	r, err := recipe.Decode(curatedRecipeJSON, funcs)
	if err != nil {
		return nil, fmt.Errorf("disney: curated recipe: %w", err)
	}
	return r, nil
}
