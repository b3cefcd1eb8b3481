package configuration

import (
	_ "embed"
	"time"

	"github.com/G-Research/readsizer/internal/common/compress"
	"github.com/G-Research/readsizer/internal/common/config"
	"github.com/G-Research/readsizer/internal/naming"
)

// Defaults holds the built-in configuration every other source is layered over.
//
//go:embed config.yaml
var Defaults []byte

type SizerConfig struct {
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	// Region overrides the region from the AWS environment.
	Region string
	// NoSignRequest reads S3 anonymously, for public buckets.
	NoSignRequest bool
	// MetricsFile, when set, receives the run's metrics in Prometheus text format.
	MetricsFile string

	Delivery DeliveryConfig
	Encoding EncodingConfig
	Batch    BatchConfig
}

type DeliveryConfig struct {
	Bucket   string
	Delivery string
	// SampleSheet replaces bucket discovery with an existing CSV.
	SampleSheet string
	// OutDir overrides <bucket>/<delivery>/siz/ as the chunk location.
	OutDir         string
	IgnoreExisting bool
	Markers        []naming.Markers `validate:"min=1,dive"`
	// Output is where the samplesheet command writes.
	Output string `validate:"required"`
}

type EncodingConfig struct {
	ChunkSize config.Count   `validate:"gt=0"`
	ZstdLevel compress.Level `validate:"min=1,max=22"`
	// Concurrency bounds the goroutines compressing a single chunk; zero uses GOMAXPROCS.
	Concurrency int `validate:"gte=0"`
}

type BatchConfig struct {
	JobQueue      string
	JobDefinition string
	// Executable is the program the job definition's image runs.
	Executable    string `validate:"required"`
	MaxRetries    int    `validate:"gte=0"`
	Parallelism   int    `validate:"gt=0"`
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	DryRun        bool
	Wait          bool
	PollInterval  time.Duration `validate:"gt=0"`
}
