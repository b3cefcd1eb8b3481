// Package dispatch submits one encoding job per read pair to a batch backend, retrying transient submission
// failures, and optionally follows the submitted jobs until they finish.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/delivery"
	"github.com/G-Research/readsizer/internal/metrics"
)

const (
	DefaultMaxRetries  = 3
	DefaultParallelism = 8
	DryRunJobIDPrefix  = "dry-run-"
)

// Backend submits jobs. Errors for which sizererrors.IsTransient is true are retried; any other error is final.
type Backend interface {
	Submit(ctx context.Context, job *JobSpec) (string, error)
}

type Status int

const (
	StatusPending Status = iota
	StatusSubmitted
	StatusDryRun
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSubmitted:
		return "submitted"
	case StatusDryRun:
		return "dry run"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what happened to one pair of the worklist.
type Outcome struct {
	Pair  delivery.ReadPair
	Job   *JobSpec
	JobID string
	// Attempts counts calls to Backend.Submit, including resubmissions by the monitor.
	Attempts int
	// Resubmissions counts jobs resubmitted by the monitor after the backend reported them failed.
	Resubmissions int
	Status        Status
	Err           error
}

// Report holds one outcome per worklist entry, in worklist order.
type Report struct {
	RunID    string
	DryRun   bool
	Outcomes []Outcome
}

// Err returns every failed outcome's error aggregated into a *multierror.Error, or nil if nothing failed.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			result = multierror.Append(result, o.Err)
		}
	}
	return result.ErrorOrNil()
}

func (r *Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

type Config struct {
	// MaxRetries is the number of times a submission is retried after a transient error, and the number of
	// times the monitor resubmits a job the backend reports as failed.
	MaxRetries  int
	Parallelism int
	DryRun      bool
	// RetryDelay is the base of the exponential backoff between submission attempts.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Dispatcher submits one job per pair. Pairs are independent: a failure for one pair never stops the others.
type Dispatcher struct {
	backend Backend
	builder *JobBuilder
	config  Config
	metrics *metrics.Metrics
}

func NewDispatcher(backend Backend, builder *JobBuilder, config Config, m *metrics.Metrics) *Dispatcher {
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultParallelism
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = time.Minute
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Dispatcher{backend: backend, builder: builder, config: config, metrics: m}
}

// Dispatch builds and submits a job for every pair of the worklist, at most Parallelism at a time.
//
// In dry run mode jobs are built and logged but the backend is never called; each outcome carries the handle
// dry-run-<id>. Cancelling ctx stops pending submissions and retry waits; jobs already submitted are left alone.
func (d *Dispatcher) Dispatch(ctx *sizercontext.Context, worklist delivery.Worklist) *Report {
	report := &Report{
		RunID:    d.builder.RunID,
		DryRun:   d.config.DryRun,
		Outcomes: make([]Outcome, len(worklist)),
	}
	g, gctx := sizercontext.ErrGroup(ctx)
	g.SetLimit(d.config.Parallelism)
	for i, pair := range worklist {
		i, pair := i, pair
		g.Go(func() error {
			// Each goroutine owns exactly one slot.
			report.Outcomes[i] = d.dispatchOne(sizercontext.WithLogField(gctx, "sample", pair.ID), pair)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (d *Dispatcher) dispatchOne(ctx *sizercontext.Context, pair delivery.ReadPair) Outcome {
	outcome := Outcome{Pair: pair}
	if err := ctx.Err(); err != nil {
		outcome.Status = StatusFailed
		outcome.Err = errors.WithStack(err)
		return outcome
	}
	job, err := d.builder.Build(pair)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = errors.WithStack(&sizererrors.ErrPermanentFailure{SampleID: string(pair.ID), Err: err})
		d.metrics.RecordSubmission(metrics.SubmissionResultFailed)
		ctx.Log.WithError(err).Error("Could not build job")
		return outcome
	}
	outcome.Job = job

	if d.config.DryRun {
		ctx.Log.Infof("[DRY RUN] Would submit job: %s", job.Name)
		ctx.Log.Infof("  Command: %s", job.CommandLine())
		outcome.JobID = DryRunJobIDPrefix + string(pair.ID)
		outcome.Status = StatusDryRun
		d.metrics.RecordSubmission(metrics.SubmissionResultDryRun)
		return outcome
	}

	jobID, attempts, err := d.submit(ctx, job)
	outcome.Attempts = attempts
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		d.metrics.RecordSubmission(metrics.SubmissionResultFailed)
		ctx.Log.WithError(err).Errorf("Failed to submit %s", job.Name)
		return outcome
	}
	outcome.JobID = jobID
	outcome.Status = StatusSubmitted
	d.metrics.RecordSubmission(metrics.SubmissionResultSubmitted)
	ctx.Log.WithField("jobId", jobID).Infof("Submitted %s -> %s", pair.ID, jobID)
	return outcome
}

// submit calls the backend, retrying transient errors up to MaxRetries times with exponential backoff.
// The returned error, if any, is an *sizererrors.ErrPermanentFailure (or the context's error).
func (d *Dispatcher) submit(ctx *sizercontext.Context, job *JobSpec) (string, int, error) {
	var jobID string
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			id, err := d.backend.Submit(ctx, job)
			if err != nil {
				return err
			}
			jobID = id
			return nil
		},
		retry.Attempts(uint(d.config.MaxRetries+1)),
		retry.Delay(d.config.RetryDelay),
		retry.MaxDelay(d.config.MaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(sizererrors.IsTransient),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			// Also called after the final attempt, which is not followed by a retry.
			if int(n) >= d.config.MaxRetries {
				return
			}
			d.metrics.RecordSubmissionRetry()
			ctx.Log.WithError(err).WithFields(logrus.Fields{
				"attempt": n + 1,
				"job":     job.Name,
			}).Warn("Transient error submitting job, retrying")
		}),
	)
	if err == nil {
		return jobID, attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return "", attempts, errors.WithStack(err)
	}
	reason := "permanent error"
	if sizererrors.IsTransient(err) {
		reason = fmt.Sprintf("still failing after %d attempts", attempts)
	}
	return "", attempts, errors.WithStack(&sizererrors.ErrPermanentFailure{
		SampleID: string(job.Pair.ID),
		Attempts: attempts,
		Reason:   reason,
		Err:      err,
	})
}
