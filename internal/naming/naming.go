// Package naming holds the path conventions shared by every stage: where raw pairs live, where SIZ chunks go,
// and how chunk files are named. Read and write paths both go through this package so the naming contract
// cannot drift between the encoder and the completion check.
package naming

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	S3Scheme = "s3://"

	RawDir = "raw"
	SizDir = "siz"

	ChunkMarker     = "_chunk"
	ChunkSuffix     = ".fastq.zst"
	ChunkIndexWidth = 6
)

// SampleID identifies a sample within one delivery. It is the raw filename with its read marker stripped.
type SampleID string

// ChunkName is a parsed SIZ chunk file name.
type ChunkName struct {
	SampleID SampleID
	Index    int
}

// ErrInvalidPath is the sentinel matched (via errors.Is) by every InvalidPathError.
var ErrInvalidPath = errors.New("invalid path")

// InvalidPathError is returned for malformed bucket, delivery, directory or sample id tokens.
type InvalidPathError struct {
	Field  string
	Value  string
	Reason string
}

func (err *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", err.Field, err.Value, err.Reason)
}

func (err *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

var chunkNamePattern = regexp.MustCompile(`^(.+)` + regexp.QuoteMeta(ChunkMarker) + `(\d{6,})` + regexp.QuoteMeta(ChunkSuffix) + `$`)

// RawPrefix returns the location raw pairs of a delivery are listed from, e.g. s3://bucket/delivery/raw/.
func RawPrefix(bucket, delivery string) (string, error) {
	if err := validateLocation(bucket, delivery); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s/%s/", S3Scheme, bucket, delivery, RawDir), nil
}

// OutputPrefix returns the location chunks are written to and scanned from.
// An explicit outdir wins; otherwise it defaults to s3://bucket/delivery/siz/.
func OutputPrefix(bucket, delivery, outdir string) (string, error) {
	if outdir != "" {
		return NormalizeDir(outdir), nil
	}
	if err := validateLocation(bucket, delivery); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s/%s/%s/", S3Scheme, bucket, delivery, SizDir), nil
}

// NormalizeDir makes sure dir ends with a single "/" so that names can be appended to it.
func NormalizeDir(dir string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// InferOutputDir maps a raw file path to the directory its chunks belong in, by swapping the /raw/ component
// for /siz/ and dropping the file name.
func InferOutputDir(rawPath string) string {
	out := strings.Replace(rawPath, "/"+RawDir+"/", "/"+SizDir+"/", 1)
	if i := strings.LastIndex(out, "/"); i >= 0 {
		return out[:i+1]
	}
	return ""
}

// ChunkFileName returns the chunk name for a prefix, e.g. ChunkFileName("s3://b/d/siz/a", 2) is
// s3://b/d/siz/a_chunk000002.fastq.zst.
func ChunkFileName(prefix string, index int) string {
	return fmt.Sprintf("%s%s%0*d%s", prefix, ChunkMarker, ChunkIndexWidth, index, ChunkSuffix)
}

// ChunkPath returns where chunk index of sample id is written under outdir.
func ChunkPath(outdir string, id SampleID, index int) (string, error) {
	if err := ValidateSampleID(id); err != nil {
		return "", err
	}
	if outdir == "" {
		return "", errors.WithStack(&InvalidPathError{Field: "outdir", Value: outdir, Reason: "must not be empty"})
	}
	if index < 0 {
		return "", errors.WithStack(&InvalidPathError{Field: "chunk index", Value: strconv.Itoa(index), Reason: "must not be negative"})
	}
	return ChunkFileName(NormalizeDir(outdir)+string(id), index), nil
}

// ParseChunkName recovers the sample id and index from a chunk file name (or path).
// Names that do not follow <id>_chunk<NNNNNN>.fastq.zst are rejected.
func ParseChunkName(name string) (ChunkName, bool) {
	m := chunkNamePattern.FindStringSubmatch(path.Base(name))
	if m == nil {
		return ChunkName{}, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return ChunkName{}, false
	}
	return ChunkName{SampleID: SampleID(m[1]), Index: index}, true
}

// ValidateSampleID rejects ids that cannot be used as a file name prefix.
func ValidateSampleID(id SampleID) error {
	if id == "" {
		return errors.WithStack(&InvalidPathError{Field: "sample id", Value: string(id), Reason: "must not be empty"})
	}
	if strings.Contains(string(id), "/") {
		return errors.WithStack(&InvalidPathError{Field: "sample id", Value: string(id), Reason: "must not contain a path separator"})
	}
	return nil
}

func validateLocation(bucket, delivery string) error {
	if bucket == "" {
		return errors.WithStack(&InvalidPathError{Field: "bucket", Value: bucket, Reason: "must not be empty"})
	}
	if strings.Contains(bucket, "/") {
		return errors.WithStack(&InvalidPathError{Field: "bucket", Value: bucket, Reason: "must not contain a path separator"})
	}
	if delivery == "" {
		return errors.WithStack(&InvalidPathError{Field: "delivery", Value: delivery, Reason: "must not be empty"})
	}
	if strings.HasPrefix(delivery, "/") || strings.HasSuffix(delivery, "/") || strings.Contains(delivery, "//") {
		return errors.WithStack(&InvalidPathError{Field: "delivery", Value: delivery, Reason: "must not start or end with, or repeat, a path separator"})
	}
	return nil
}
