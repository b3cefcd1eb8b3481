package siz

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const readBufferSize = 1 << 20

// MalformedRecordError is returned when a stream does not consist of whole four-line FASTQ records.
// Record is the one-based index of the offending record within Stream.
type MalformedRecordError struct {
	Stream string
	Record int64
	Reason string
}

func (err *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %d in %s: %s", err.Record, err.Stream, err.Reason)
}

// Record is one FASTQ record. Lines are held without their line terminator.
type Record struct {
	Header    []byte
	Sequence  []byte
	Separator []byte
	Quality   []byte
}

// WriteTo writes the record as four newline terminated lines.
func (rec *Record) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, line := range [][]byte{rec.Header, rec.Sequence, rec.Separator, rec.Quality} {
		n, err := w.Write(line)
		total += int64(n)
		if err != nil {
			return total, err
		}
		n, err = w.Write(newline)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

var newline = []byte{'\n'}

// RecordReader reads FASTQ records from an uncompressed stream. The returned record is reused by the next call
// to Read.
type RecordReader struct {
	r      *bufio.Reader
	stream string
	read   int64
	rec    Record
}

// NewRecordReader reads records from r. stream names r in errors.
func NewRecordReader(r io.Reader, stream string) *RecordReader {
	return &RecordReader{r: bufio.NewReaderSize(r, readBufferSize), stream: stream}
}

// Count returns the number of records read so far.
func (r *RecordReader) Count() int64 {
	return r.read
}

// Read returns the next record, or io.EOF once the stream ends on a record boundary.
func (r *RecordReader) Read() (*Record, error) {
	var err error
	r.rec.Header, err = r.readLine(r.rec.Header[:0])
	if err == io.EOF && len(r.rec.Header) == 0 {
		return nil, io.EOF
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	if err := r.check(r.rec.Header, '@', "header"); err != nil {
		return nil, err
	}
	if r.rec.Sequence, err = r.readRequired(r.rec.Sequence[:0], "sequence"); err != nil {
		return nil, err
	}
	if r.rec.Separator, err = r.readRequired(r.rec.Separator[:0], "separator"); err != nil {
		return nil, err
	}
	if err := r.check(r.rec.Separator, '+', "separator"); err != nil {
		return nil, err
	}
	r.rec.Quality, err = r.readLine(r.rec.Quality[:0])
	if err != nil && !(err == io.EOF && len(r.rec.Quality) > 0) {
		if err == io.EOF {
			return nil, r.malformed("truncated record: missing quality line")
		}
		return nil, err
	}
	if len(r.rec.Quality) != len(r.rec.Sequence) {
		return nil, r.malformed(fmt.Sprintf("sequence has %d bases but quality has %d", len(r.rec.Sequence), len(r.rec.Quality)))
	}
	r.read++
	return &r.rec, nil
}

func (r *RecordReader) readRequired(dst []byte, what string) ([]byte, error) {
	line, err := r.readLine(dst)
	if err == io.EOF {
		if len(line) == 0 {
			return nil, r.malformed("truncated record: missing " + what + " line")
		}
		return line, nil
	}
	return line, err
}

func (r *RecordReader) check(line []byte, prefix byte, what string) error {
	if len(line) == 0 || line[0] != prefix {
		return r.malformed(fmt.Sprintf("%s line must start with %q", what, prefix))
	}
	return nil
}

func (r *RecordReader) malformed(reason string) error {
	return errors.WithStack(&MalformedRecordError{Stream: r.stream, Record: r.read + 1, Reason: reason})
}

// readLine appends the next line, without its terminator, to dst. A final line without a terminator is returned
// together with io.EOF.
func (r *RecordReader) readLine(dst []byte) ([]byte, error) {
	for {
		frag, err := r.r.ReadSlice('\n')
		dst = append(dst, frag...)
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err != io.EOF {
				return dst, errors.Wrapf(err, "error reading %s", r.stream)
			}
			return bytes.TrimSuffix(dst, []byte{'\r'}), io.EOF
		}
		dst = dst[:len(dst)-1]
		return bytes.TrimSuffix(dst, []byte{'\r'}), nil
	}
}
