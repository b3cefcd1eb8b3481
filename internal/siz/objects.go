package siz

import (
	"io"

	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/compress"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/util"
	"github.com/G-Research/readsizer/internal/storage"
)

// EncodeObjects opens the forward and reverse objects, decompressing them if they are gzipped, and encodes them
// into sink under prefix.
func (e *Encoder) EncodeObjects(
	ctx *sizercontext.Context,
	src storage.Opener,
	sink ChunkSink,
	forwardPath string,
	reversePath string,
	prefix string,
) (*Summary, error) {
	fwd, err := openFastq(ctx, src, forwardPath)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(ctx, forwardPath, fwd)
	rev, err := openFastq(ctx, src, reversePath)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(ctx, reversePath, rev)
	return e.Encode(ctx, fwd, rev, prefix, sink)
}

func openFastq(ctx *sizercontext.Context, src storage.Opener, path string) (io.ReadCloser, error) {
	object, err := src.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r, err := compress.OpenReader(object)
	if err != nil {
		_ = object.Close()
		return nil, errors.WithMessagef(err, "error opening %s", path)
	}
	return r, nil
}
