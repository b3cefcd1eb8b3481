package siz

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/common/compress"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/naming"
	"github.com/G-Research/readsizer/internal/storage"
)

// Check for cancellation once per this many pairs.
const cancellationCheckInterval = 4096

// UnequalStreamLengthError is returned when the forward and reverse streams hold different numbers of records.
type UnequalStreamLengthError struct {
	Forward int64
	Reverse int64
}

func (err *UnequalStreamLengthError) Error() string {
	return fmt.Sprintf("forward stream has %d records but reverse stream has %d", err.Forward, err.Reverse)
}

// ChunkSink creates chunk objects. Anything written becomes visible under name only once the writer is closed.
type ChunkSink interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// ChunkInfo describes one written chunk and the pairs it holds.
type ChunkInfo struct {
	Span
	Name string
}

// Summary describes what an Encode call wrote.
type Summary struct {
	Pairs  int64
	Chunks []ChunkInfo
}

// Encoder splits a pair of FASTQ streams into interleaved, compressed chunks.
type Encoder struct {
	// ChunkSize is the number of pairs per chunk.
	ChunkSize int
	// Writers wraps each chunk object in a compressing writer.
	Writers compress.WriterFactory
}

func NewEncoder(chunkSize int, writers compress.WriterFactory) *Encoder {
	return &Encoder{ChunkSize: chunkSize, Writers: writers}
}

// Encode reads pairs from fwd and rev and writes them to chunks named <prefix>_chunk<NNNNNN>.fastq.zst.
//
// Chunks are written one at a time and indices are assigned in order, so chunk k always holds pairs
// [k*ChunkSize, (k+1)*ChunkSize). A chunk is only created once its first pair has been read; empty input
// writes nothing. On error the chunk being written is aborted and chunks already closed are left in place.
func (e *Encoder) Encode(ctx *sizercontext.Context, fwd, rev io.Reader, prefix string, sink ChunkSink) (*Summary, error) {
	if e.ChunkSize <= 0 {
		return nil, errors.Errorf("chunk size must be positive, got %d", e.ChunkSize)
	}
	forward := NewRecordReader(fwd, "forward")
	reverse := NewRecordReader(rev, "reverse")
	summary := &Summary{Chunks: []ChunkInfo{}}

	var current *chunkWriter
	fail := func(err error) (*Summary, error) {
		if current != nil {
			current.abort(err)
		}
		return nil, err
	}
	for {
		if summary.Pairs%cancellationCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fail(errors.WithStack(err))
			}
		}
		f, ferr := forward.Read()
		if ferr != nil && ferr != io.EOF {
			return fail(ferr)
		}
		r, rerr := reverse.Read()
		if rerr != nil && rerr != io.EOF {
			return fail(rerr)
		}
		if ferr == io.EOF && rerr == io.EOF {
			break
		}
		if ferr == io.EOF || rerr == io.EOF {
			return fail(unequalLengths(forward, reverse))
		}

		if current == nil {
			span := Span{Index: len(summary.Chunks), Start: summary.Pairs, End: summary.Pairs}
			cw, err := e.openChunk(ctx, sink, naming.ChunkFileName(prefix, span.Index), span)
			if err != nil {
				return fail(err)
			}
			current = cw
		}
		if err := current.writePair(f, r); err != nil {
			return fail(err)
		}
		summary.Pairs++
		if current.span.Pairs() == int64(e.ChunkSize) {
			if err := current.close(); err != nil {
				return fail(err)
			}
			summary.Chunks = append(summary.Chunks, current.info())
			logChunk(ctx, current)
			current = nil
		}
	}
	if current != nil {
		if err := current.close(); err != nil {
			return fail(err)
		}
		summary.Chunks = append(summary.Chunks, current.info())
		logChunk(ctx, current)
	}
	return summary, nil
}

// unequalLengths drains whichever stream is longer so that the error reports both record counts.
func unequalLengths(forward, reverse *RecordReader) error {
	for _, r := range []*RecordReader{forward, reverse} {
		for {
			if _, err := r.Read(); err != nil {
				if err != io.EOF {
					return err
				}
				break
			}
		}
	}
	return errors.WithStack(&UnequalStreamLengthError{Forward: forward.Count(), Reverse: reverse.Count()})
}

func (e *Encoder) openChunk(ctx *sizercontext.Context, sink ChunkSink, name string, span Span) (*chunkWriter, error) {
	object, err := sink.Create(ctx, name)
	if err != nil {
		return nil, errors.WithMessagef(err, "error creating chunk %s", name)
	}
	zw, err := e.Writers.NewWriter(object)
	if err != nil {
		_ = storage.Abort(object, err)
		return nil, err
	}
	return &chunkWriter{name: name, span: span, object: object, zw: zw}, nil
}

type chunkWriter struct {
	name   string
	span   Span
	object io.WriteCloser
	zw     io.WriteCloser
}

func (c *chunkWriter) writePair(f, r *Record) error {
	if _, err := f.WriteTo(c.zw); err != nil {
		return errors.Wrapf(err, "error writing %s", c.name)
	}
	if _, err := r.WriteTo(c.zw); err != nil {
		return errors.Wrapf(err, "error writing %s", c.name)
	}
	c.span.End++
	return nil
}

func (c *chunkWriter) close() error {
	if err := c.zw.Close(); err != nil {
		err = errors.Wrapf(err, "error compressing %s", c.name)
		_ = storage.Abort(c.object, err)
		return err
	}
	if err := c.object.Close(); err != nil {
		return errors.WithMessagef(err, "error closing %s", c.name)
	}
	return nil
}

func (c *chunkWriter) abort(cause error) {
	_ = c.zw.Close()
	_ = storage.Abort(c.object, cause)
}

func (c *chunkWriter) info() ChunkInfo {
	return ChunkInfo{Span: c.span, Name: c.name}
}

func logChunk(ctx *sizercontext.Context, c *chunkWriter) {
	ctx.Log.WithFields(logrus.Fields{"chunk": c.name, "index": c.span.Index, "start": c.span.Start}).
		Infof("Wrote chunk with %s pairs", humanize.Comma(c.span.Pairs()))
}
