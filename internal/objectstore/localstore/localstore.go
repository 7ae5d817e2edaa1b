// Package localstore implements objectstore.Store on a local directory:
// bucket b lives at {root}/{b} and key k at {root}/{b}/{k}.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"disneyetl/internal/objectstore"
)

// Store is one directory-backed bucket. It is safe for concurrent use on
// distinct keys.
type Store struct {
	dir    string
	bucket string
}

var _ objectstore.Store = (*Store)(nil)

// New returns a Store rooted at {root}/{bucket}, creating the directory.
func New(root, bucket string) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("localstore: bucket is required")
	}
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", dir, err)
	}
	return &Store{dir: dir, bucket: bucket}, nil
}

func (s *Store) Bucket() string { return s.bucket }

// Dir returns the bucket directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("localstore: invalid key %q", key)
	}
	return filepath.Join(s.dir, rel), nil
}

func (s *Store) Put(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objectstore.CheckLocalFile(localPath); err != nil {
		return err
	}
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	return copyFile(localPath, dst)
}

func (s *Store) Get(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := s.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return &objectstore.NotFoundError{Bucket: s.bucket, Key: key}
	}
	return copyFile(src, localPath)
}

func (s *Store) Delete(ctx context.Context, keys []string) error {
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := s.path(k)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("localstore: delete %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, ext string) ([]objectstore.Object, error) {
	var out []objectstore.Object
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !objectstore.MatchExt(key, ext) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, objectstore.NewObject(key, fi.ModTime(), fi.Size()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localstore: list %s: %w", s.bucket, err)
	}
	return out, nil
}

// copyFile writes src to dst through a temp file renamed into place.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("localstore: open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("localstore: mkdir for %s: %w", dst, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("localstore: create temp for %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("localstore: copy to %s: %w", dst, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("localstore: close %s: %w", dst, err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("localstore: rename into %s: %w", dst, err)
	}
	return nil
}
