// Package sizer implements the sizer commands: building sample sheets, submitting one encoding job per read
// pair, and the encoding job itself.
package sizer

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/awsbatch"
	"github.com/G-Research/readsizer/internal/common/build"
	"github.com/G-Research/readsizer/internal/common/logging"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/common/util"
	"github.com/G-Research/readsizer/internal/dispatch"
	"github.com/G-Research/readsizer/internal/metrics"
	"github.com/G-Research/readsizer/internal/sizer/configuration"
	"github.com/G-Research/readsizer/internal/storage"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Store reads deliveries and writes chunks. Built from the AWS environment on first use if nil.
	Store storage.Store
	// Backend and StatusReader run and follow jobs. Built from the AWS environment on first use if nil.
	Backend      dispatch.Backend
	StatusReader dispatch.StatusReader
	Metrics      *metrics.Metrics
	// Clock timestamps the run banner.
	Clock util.Clock
}

// Params struct holds all user-customizable parameters.
type Params struct {
	Config configuration.SizerConfig
	// Encode holds the arguments of a single encoding job.
	Encode EncodeParams
}

type EncodeParams struct {
	Forward string
	Reverse string
	// Output is the chunk prefix, e.g. s3://bucket/delivery/siz/sample.
	Output string
}

// New instantiates an App with default parameters, including standard output.
func New() *App {
	return &App{
		Params:  &Params{},
		Out:     os.Stdout,
		Metrics: metrics.NewMetrics(),
		Clock:   &util.DefaultClock{},
	}
}

// CountLogMessages counts the log lines of logger, by level, in the App's metrics. Call it at most once per App.
func (a *App) CountLogMessages(logger *log.Logger) {
	logger.AddHook(logging.NewPrometheusHook(a.metrics().Registry(), metrics.SizerMetricsPrefix))
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

func (a *App) store(ctx *sizercontext.Context) (storage.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s3, err := storage.NewS3StoreFromEnvironment(ctx, a.Params.Config.Region, a.Params.Config.NoSignRequest)
	if err != nil {
		return nil, err
	}
	a.Store = &storage.Mux{S3: s3, Local: &storage.LocalStore{}}
	return a.Store, nil
}

func (a *App) batch(ctx *sizercontext.Context) (dispatch.Backend, dispatch.StatusReader, error) {
	if a.Backend != nil && a.StatusReader != nil {
		return a.Backend, a.StatusReader, nil
	}
	client, err := awsbatch.NewFromEnvironment(ctx, a.Params.Config.Region)
	if err != nil {
		return nil, nil, err
	}
	if a.Backend == nil {
		a.Backend = client
	}
	if a.StatusReader == nil {
		a.StatusReader = client
	}
	return a.Backend, a.StatusReader, nil
}

func (a *App) metrics() *metrics.Metrics {
	if a.Metrics == nil {
		a.Metrics = metrics.NewMetrics()
	}
	return a.Metrics
}

func (a *App) writeMetrics(ctx *sizercontext.Context) error {
	path := a.Params.Config.MetricsFile
	if path == "" {
		return nil
	}
	if err := a.metrics().WriteToTextfile(path); err != nil {
		return errors.WithMessagef(err, "error writing metrics to %s", path)
	}
	ctx.Log.Debugf("Wrote metrics to %s", path)
	return nil
}

func invalid(name string, value interface{}, message string) error {
	return errors.WithStack(&sizererrors.ErrInvalidArgument{Name: name, Value: value, Message: message})
}

func (a *App) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock.Now()
}
