package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizererrors"
)

const (
	fileScheme    = "file://"
	partialSuffix = ".part"
)

// LocalStore serves plain filesystem paths (optionally written as file:// URIs). Used for local runs and tests.
type LocalStore struct{}

func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	dir := localPath(prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "directory", Value: dir})
		}
		return nil, errors.WithStack(&sizererrors.ErrListing{Prefix: prefix, Err: err})
	}
	names := []string{}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(localPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&sizererrors.ErrNotFound{Type: "file", Value: path})
		}
		return nil, errors.WithStack(err)
	}
	return f, nil
}

// Create writes to a sibling .part file and renames it into place on Close, so readers never observe a
// half-written file under its final name.
func (s *LocalStore) Create(_ context.Context, path string) (io.WriteCloser, error) {
	target := localPath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	f, err := os.Create(target + partialSuffix)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &atomicFile{File: f, target: target}, nil
}

type atomicFile struct {
	*os.File
	target string
}

func (f *atomicFile) Close() error {
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(f.File.Name(), f.target))
}

// Abort removes the partial file.
func (f *atomicFile) Abort(error) error {
	_ = f.File.Close()
	return errors.WithStack(os.Remove(f.File.Name()))
}

func localPath(location string) string {
	return filepath.FromSlash(strings.TrimPrefix(location, fileScheme))
}
