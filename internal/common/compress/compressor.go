package compress

import (
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const DefaultZstdLevel = 5

// Level is a zstd compression level, 1 (fastest) to 22 (smallest output).
type Level int

const (
	MinLevel Level = 1
	MaxLevel Level = 22
)

var namedLevels = map[string]Level{
	"fastest": 1,
	"default": 3,
	"better":  7,
	"best":    11,
}

// ParseLevel accepts a level number or one of fastest, default, better and best.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if level, ok := namedLevels[s]; ok {
		return level, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("unknown zstd level %q", s)
	}
	level := Level(n)
	if level < MinLevel || level > MaxLevel {
		return 0, errors.Errorf("zstd level %d is outside [%d, %d]", n, MinLevel, MaxLevel)
	}
	return level, nil
}

// WriterFactory wraps a destination writer in a compressing writer.
// Closing the returned writer flushes the compressed stream but does not close dst.
type WriterFactory interface {
	NewWriter(dst io.Writer) (io.WriteCloser, error)
}

// ZstdWriterFactory creates streaming zstd writers.
// Concurrency bounds the goroutines one writer may use to compress blocks of a single stream;
// zero means the library default (GOMAXPROCS).
type ZstdWriterFactory struct {
	Level       int
	Concurrency int
}

func (f ZstdWriterFactory) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	level := f.Level
	if level == 0 {
		level = DefaultZstdLevel
	}
	opts := []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))}
	if f.Concurrency > 0 {
		opts = append(opts, zstd.WithEncoderConcurrency(f.Concurrency))
	}
	w, err := zstd.NewWriter(dst, opts...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return w, nil
}
