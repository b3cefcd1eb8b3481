package compress

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// NewZstdReader returns a streaming reader over the zstd stream in r.
func NewZstdReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decoder.IOReadCloser(), nil
}
