package sizer

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/delivery"
	"github.com/G-Research/readsizer/internal/dispatch"
)

const bannerTimeFormat = "2006-01-02 15:04:05"

func (a *App) validateSubmitParams() error {
	config := a.Params.Config
	switch {
	case config.Delivery.SampleSheet != "" && config.Delivery.Bucket != "":
		return invalid("sampleSheet", config.Delivery.SampleSheet, "use either a sample sheet or a bucket, not both")
	case config.Delivery.SampleSheet == "" && config.Delivery.Bucket == "":
		return invalid("bucket", config.Delivery.Bucket, "either a sample sheet or a bucket is required")
	case config.Delivery.Bucket != "" && config.Delivery.Delivery == "":
		return invalid("delivery", config.Delivery.Delivery, "a delivery is required with a bucket")
	case config.Batch.JobQueue == "":
		return invalid("jobQueue", config.Batch.JobQueue, "not provided")
	case config.Batch.JobDefinition == "":
		return invalid("jobDefinition", config.Batch.JobDefinition, "not provided")
	}
	return nil
}

// Submit works out which pairs still need encoding, from a sample sheet or by scanning a delivery, and submits
// one job per pair. With Wait set it then follows the jobs, resubmitting failed ones, until all are done.
//
// An empty worklist is not an error. Failures of individual pairs do not stop the others; they are summarised
// at the end and returned together.
func (a *App) Submit(ctx *sizercontext.Context) error {
	if err := a.validateSubmitParams(); err != nil {
		return err
	}
	config := a.Params.Config
	runID := uuid.NewString()
	ctx = sizercontext.WithLogField(ctx, "runId", runID)
	fmt.Fprintf(a.Out, "READ-SIZER PIPELINE - %s\n", a.now().Format(bannerTimeFormat))

	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	var result *delivery.Result
	if config.Delivery.SampleSheet != "" {
		result, err = a.loadSampleSheet(ctx, store)
	} else {
		result, err = a.planDelivery(ctx, store)
	}
	if err != nil {
		return err
	}
	if len(result.Worklist) == 0 {
		fmt.Fprintln(a.Out, a.emptyPlanMessage(result))
		return a.writeMetrics(ctx)
	}
	fmt.Fprintf(a.Out, "Found %d sample(s) to process\n", len(result.Worklist))

	var backend dispatch.Backend
	var reader dispatch.StatusReader
	if !config.Batch.DryRun {
		if backend, reader, err = a.batch(ctx); err != nil {
			return err
		}
	}
	dispatcher := dispatch.NewDispatcher(backend, &dispatch.JobBuilder{
		Queue:      config.Batch.JobQueue,
		Definition: config.Batch.JobDefinition,
		ChunkSize:  int(config.Encoding.ChunkSize),
		ZstdLevel:  int(config.Encoding.ZstdLevel),
		RunID:      runID,
		Executable: config.Batch.Executable,
	}, dispatch.Config{
		MaxRetries:    config.Batch.MaxRetries,
		Parallelism:   config.Batch.Parallelism,
		DryRun:        config.Batch.DryRun,
		RetryDelay:    config.Batch.RetryDelay,
		MaxRetryDelay: config.Batch.MaxRetryDelay,
	}, a.metrics())

	fmt.Fprintln(a.Out, "Submitting jobs...")
	report := dispatcher.Dispatch(ctx, result.Worklist)
	switch {
	case config.Batch.DryRun:
		fmt.Fprintln(a.Out, "Dry run complete - no jobs were actually submitted")
	case config.Batch.Wait:
		if err := dispatch.NewMonitor(dispatcher, reader, config.Batch.PollInterval).Wait(ctx, report); err != nil {
			return errors.WithMessage(err, "error monitoring jobs")
		}
		fmt.Fprintln(a.Out, "All jobs completed!")
	}

	a.printReport(report)
	if err := a.writeMetrics(ctx); err != nil {
		return err
	}
	return report.Err()
}

func (a *App) printReport(report *dispatch.Report) {
	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "SAMPLE\tSTATUS\tJOB ID\tATTEMPTS")
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", o.Pair.ID, o.Status, o.JobID, o.Attempts)
	}
	_ = w.Flush()

	failed := report.Count(dispatch.StatusFailed)
	fmt.Fprintf(a.Out, "%s of %s sample(s) failed\n", humanize.Comma(int64(failed)), humanize.Comma(int64(len(report.Outcomes))))
	for _, o := range report.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(a.Out, "  %s: %v\n", o.Pair.ID, o.Err)
		}
	}
}
