// Package objectstore defines the bucket abstraction the pipeline stages
// read from and write to. Backends live in subpackages: s3store for
// Amazon S3 and S3-compatible services, localstore for a directory tree.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

// Store is one bucket.
type Store interface {
	// Put uploads the file at localPath under key. A missing localPath is
	// an error.
	Put(ctx context.Context, key, localPath string) error
	// Get downloads key into localPath. A missing key is a *NotFoundError.
	Get(ctx context.Context, key, localPath string) error
	// Delete removes keys in one batch. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error
	// List returns every object, optionally filtered by file extension
	// (case-insensitive, e.g. ".parquet"). An empty ext returns all.
	List(ctx context.Context, ext string) ([]Object, error)
	// Bucket names the bucket.
	Bucket() string
}

// Object describes one stored object.
type Object struct {
	Name         string // base name, e.g. "112.parquet"
	Key          string // full key, e.g. "disney-api/characters/112.parquet"
	LastModified time.Time
	Size         int64
}

// NewObject builds an Object from its key.
func NewObject(key string, modified time.Time, size int64) Object {
	return Object{Name: path.Base(key), Key: key, LastModified: modified, Size: size}
}

// MatchExt reports whether key has extension ext (case-insensitive). An
// empty ext matches everything.
func MatchExt(key, ext string) bool {
	if ext == "" {
		return true
	}
	return strings.EqualFold(path.Ext(key), ext)
}

// NotFoundError reports a missing object.
type NotFoundError struct {
	Bucket string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("objectstore: object %s/%s does not exist", e.Bucket, e.Key)
}

// Is lets errors.Is(err, os.ErrNotExist) match.
func (e *NotFoundError) Is(target error) bool { return target == os.ErrNotExist }

// CheckLocalFile returns an error unless p is an existing regular file.
func CheckLocalFile(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("objectstore: file %s does not exist: %w", p, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("objectstore: %s is not a regular file", p)
	}
	return nil
}
