// Package storage lists, reads and writes the objects a delivery is made of. Locations are either s3:// URIs or
// local filesystem paths; Mux routes each call to the right backing store.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/naming"
)

// Lister lists the names of the objects directly under a prefix (not recursively), sorted.
// A prefix whose container does not exist is reported as a *sizererrors.ErrNotFound; any other failure
// as a *sizererrors.ErrListing.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Opener opens an object for reading.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Creator creates (or overwrites) an object. The object becomes visible under path only once the returned
// writer is closed without error.
type Creator interface {
	Create(ctx context.Context, path string) (io.WriteCloser, error)
}

type Store interface {
	Lister
	Opener
	Creator
}

// Aborter is implemented by writers returned from Create that can discard what has been written so far.
type Aborter interface {
	Abort(cause error) error
}

// Abort discards w if it supports it and closes it otherwise.
func Abort(w io.WriteCloser, cause error) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort(cause)
	}
	return w.Close()
}

// ListAllowMissing lists prefix, treating a prefix that does not exist yet as empty.
// Most first-time deliveries have no output location, so this is not an error.
func ListAllowMissing(ctx *sizercontext.Context, lister Lister, prefix string) ([]string, error) {
	names, err := lister.List(ctx, prefix)
	if err != nil {
		if sizererrors.IsNotFound(err) {
			ctx.Log.WithError(err).Warnf("Could not list %s. Assuming directory is missing.", prefix)
			return []string{}, nil
		}
		return nil, err
	}
	return names, nil
}

// Mux dispatches to S3 for s3:// locations and to Local for everything else.
type Mux struct {
	S3    Store
	Local Store
}

func (m *Mux) List(ctx context.Context, prefix string) ([]string, error) {
	store, err := m.route(prefix)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, prefix)
}

func (m *Mux) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	store, err := m.route(path)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, path)
}

func (m *Mux) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	store, err := m.route(path)
	if err != nil {
		return nil, err
	}
	return store.Create(ctx, path)
}

func (m *Mux) route(location string) (Store, error) {
	if IsS3(location) {
		if m.S3 == nil {
			return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
				Name:    "location",
				Value:   location,
				Message: "no S3 client configured",
			})
		}
		return m.S3, nil
	}
	if m.Local == nil {
		return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
			Name:    "location",
			Value:   location,
			Message: "local paths are not supported",
		})
	}
	return m.Local, nil
}

// IsS3 reports whether location is an s3:// URI.
func IsS3(location string) bool {
	return strings.HasPrefix(location, naming.S3Scheme)
}

// ParseS3URI splits s3://bucket/some/key into its bucket and key.
func ParseS3URI(uri string) (bucket string, key string, err error) {
	if !IsS3(uri) {
		return "", "", errors.WithStack(&sizererrors.ErrInvalidArgument{Name: "uri", Value: uri, Message: "not an s3:// uri"})
	}
	rest := strings.TrimPrefix(uri, naming.S3Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.WithStack(&sizererrors.ErrInvalidArgument{Name: "uri", Value: uri, Message: "missing bucket"})
	}
	return bucket, key, nil
}
