package dispatch

import (
	"regexp"
	"strconv"

	"github.com/alessio/shellescape"
	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/delivery"
	"github.com/G-Research/readsizer/internal/naming"
)

const (
	JobNamePrefix = "sizer-"
	// Batch job names are limited to 128 characters.
	maxJobNameLength = 128

	DefaultExecutable = "sizer"

	RunIDTag    = "sizer/run-id"
	SampleIDTag = "sizer/sample-id"
)

var jobNameInvalidChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// JobSpec is everything a backend needs to run the encoding of one pair.
type JobSpec struct {
	Name       string
	Queue      string
	Definition string
	Command    []string
	Tags       map[string]string
	Pair       delivery.ReadPair
}

// CommandLine renders Command as a single shell-safe string, for logging.
func (j *JobSpec) CommandLine() string {
	return shellescape.QuoteCommand(j.Command)
}

// JobBuilder turns read pairs into job specs. Every job runs `sizer encode` on one pair.
type JobBuilder struct {
	Queue      string
	Definition string
	ChunkSize  int
	ZstdLevel  int
	RunID      string
	// Executable is the sizer binary inside the job's container.
	Executable string
}

func (b *JobBuilder) Build(pair delivery.ReadPair) (*JobSpec, error) {
	if err := naming.ValidateSampleID(pair.ID); err != nil {
		return nil, err
	}
	if pair.Forward == "" || pair.Reverse == "" || pair.OutDir == "" {
		return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
			Name:    "pair",
			Value:   pair.ID,
			Message: "forward, reverse and outdir are all required",
		})
	}
	executable := b.Executable
	if executable == "" {
		executable = DefaultExecutable
	}
	tags := map[string]string{SampleIDTag: string(pair.ID)}
	if b.RunID != "" {
		tags[RunIDTag] = b.RunID
	}
	return &JobSpec{
		Name:       JobName(pair.ID),
		Queue:      b.Queue,
		Definition: b.Definition,
		Command: []string{
			executable, "encode",
			"--chunk-size", strconv.Itoa(b.ChunkSize),
			"--zstd-level", strconv.Itoa(b.ZstdLevel),
			"--forward", pair.Forward,
			"--reverse", pair.Reverse,
			"--output", pair.OutputBase(),
		},
		Tags: tags,
		Pair: pair,
	}, nil
}

// JobName returns sizer-<id> with any character a batch job name may not contain replaced by '_'.
func JobName(id naming.SampleID) string {
	name := JobNamePrefix + jobNameInvalidChars.ReplaceAllString(string(id), "_")
	if len(name) > maxJobNameLength {
		name = name[:maxJobNameLength]
	}
	return name
}
