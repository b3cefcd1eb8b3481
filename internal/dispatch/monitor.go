package dispatch

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/common/util"
	"github.com/G-Research/readsizer/internal/metrics"
)

const (
	JobStateSucceeded = "SUCCEEDED"
	JobStateFailed    = "FAILED"

	// DescribeBatchSize is the most job ids a single status request may carry.
	DescribeBatchSize   = 100
	DefaultPollInterval = 5 * time.Second

	unknownReason = "Unknown"
)

// JobStatus is the backend's view of a submitted job.
type JobStatus struct {
	JobID  string
	State  string
	Reason string
}

// StatusReader looks up the status of up to DescribeBatchSize jobs. Jobs the backend does not know about are
// omitted from the result.
type StatusReader interface {
	Describe(ctx context.Context, jobIDs []string) ([]JobStatus, error)
}

// Monitor follows submitted jobs until each has succeeded or failed for good. A job the backend reports as
// failed is resubmitted, up to the dispatcher's MaxRetries times per pair.
type Monitor struct {
	dispatcher   *Dispatcher
	reader       StatusReader
	pollInterval time.Duration
}

func NewMonitor(dispatcher *Dispatcher, reader StatusReader, pollInterval time.Duration) *Monitor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Monitor{dispatcher: dispatcher, reader: reader, pollInterval: pollInterval}
}

// Wait polls until every submitted outcome of report is final, updating the outcomes in place.
// It only returns an error if ctx is cancelled or a status lookup fails permanently; job failures are recorded
// in the report.
func (m *Monitor) Wait(ctx *sizercontext.Context, report *Report) error {
	tracked := map[string]int{}
	for i, o := range report.Outcomes {
		if o.Status == StatusSubmitted {
			tracked[o.JobID] = i
		}
	}
	ctx.Log.Infof("Monitoring %d job(s)...", len(tracked))

	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	for len(tracked) > 0 {
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-timer.C:
		}

		ids := maps.Keys(tracked)
		slices.Sort(ids)
		for _, batch := range util.Batch(ids, DescribeBatchSize) {
			statuses, err := m.reader.Describe(ctx, batch)
			if err != nil {
				if sizererrors.IsTransient(err) {
					ctx.Log.WithError(err).Warn("Could not describe jobs, will try again")
					continue
				}
				return err
			}
			for _, status := range statuses {
				i, ok := tracked[status.JobID]
				if !ok {
					continue
				}
				switch status.State {
				case JobStateSucceeded:
					delete(tracked, status.JobID)
					m.succeeded(ctx, &report.Outcomes[i])
				case JobStateFailed:
					delete(tracked, status.JobID)
					if jobID, ok := m.failed(ctx, &report.Outcomes[i], status.Reason); ok {
						tracked[jobID] = i
					}
				}
			}
		}
		timer.Reset(m.pollInterval)
	}
	return nil
}

func (m *Monitor) succeeded(ctx *sizercontext.Context, o *Outcome) {
	o.Status = StatusSucceeded
	m.dispatcher.metrics.RecordJobFinished(metrics.JobResultSucceeded)
	ctx.Log.WithField("jobId", o.JobID).Infof("%s succeeded", o.Pair.ID)
}

// failed resubmits o if it has retries left and returns the new job id.
func (m *Monitor) failed(ctx *sizercontext.Context, o *Outcome, reason string) (string, bool) {
	if reason == "" {
		reason = unknownReason
	}
	maxRetries := m.dispatcher.config.MaxRetries
	log := ctx.Log.WithField("jobId", o.JobID).WithField("sample", o.Pair.ID)
	if o.Resubmissions >= maxRetries {
		o.Status = StatusFailed
		o.Err = errors.WithStack(&sizererrors.ErrPermanentFailure{
			SampleID: string(o.Pair.ID),
			Attempts: o.Resubmissions + 1,
			Reason:   reason,
		})
		m.dispatcher.metrics.RecordJobFinished(metrics.JobResultFailed)
		log.Errorf("%s failed permanently after %d attempts - Reason: %s", o.Pair.ID, o.Resubmissions+1, reason)
		return "", false
	}

	log.Warnf("Retrying %s (attempt %d/%d) - Reason: %s", o.Pair.ID, o.Resubmissions+2, maxRetries+1, reason)
	o.Resubmissions++
	m.dispatcher.metrics.RecordResubmission()
	jobID, attempts, err := m.dispatcher.submit(sizercontext.WithLogField(ctx, "sample", o.Pair.ID), o.Job)
	o.Attempts += attempts
	if err != nil {
		o.Status = StatusFailed
		o.Err = err
		m.dispatcher.metrics.RecordJobFinished(metrics.JobResultFailed)
		log.WithError(err).Errorf("Failed to resubmit %s", o.Job.Name)
		return "", false
	}
	o.JobID = jobID
	return jobID, true
}
