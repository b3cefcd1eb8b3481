package sizer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/util"
	"github.com/G-Research/readsizer/internal/delivery"
	"github.com/G-Research/readsizer/internal/metrics"
	"github.com/G-Research/readsizer/internal/storage"
)

// GenerateSampleSheet scans the configured delivery and writes the pairs still needing encoding to the
// configured output, as a CSV with columns id,fastq_1,fastq_2,outdir.
func (a *App) GenerateSampleSheet(ctx *sizercontext.Context) error {
	config := a.Params.Config.Delivery
	if config.Bucket == "" || config.Delivery == "" {
		return invalid("bucket", config.Bucket, "bucket and delivery are both required")
	}
	store, err := a.store(ctx)
	if err != nil {
		return err
	}
	result, err := a.planDelivery(ctx, store)
	if err != nil {
		return err
	}
	if len(result.Worklist) == 0 {
		fmt.Fprintln(a.Out, a.emptyPlanMessage(result))
	}
	if err := a.writeSampleSheet(ctx, store, config.Output, result.Worklist); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Wrote %d sample(s) to %s\n", len(result.Worklist), config.Output)
	return a.writeMetrics(ctx)
}

// planDelivery resolves the worklist of the configured bucket and delivery.
func (a *App) planDelivery(ctx *sizercontext.Context, lister storage.Lister) (*delivery.Result, error) {
	config := a.Params.Config.Delivery
	fmt.Fprintf(a.Out, "Generating samplesheet from s3://%s/%s...\n", config.Bucket, config.Delivery)
	result, err := delivery.NewPlanner(lister, config.Markers).Plan(ctx, delivery.Request{
		Bucket:         config.Bucket,
		Delivery:       config.Delivery,
		OutDir:         config.OutDir,
		IgnoreExisting: config.IgnoreExisting,
	})
	if err != nil {
		return nil, err
	}
	a.recordPlan(result)
	return result, nil
}

// emptyPlanMessage says why result has nothing to submit. A delivery with no read pairs and one whose pairs
// all have output already are reported differently.
func (a *App) emptyPlanMessage(result *delivery.Result) string {
	if a.Params.Config.Delivery.SampleSheet != "" {
		return "No samples to process"
	}
	switch result.State() {
	case delivery.NothingToDo:
		return fmt.Sprintf("All %d sample(s) already processed, nothing to do (use --ignore-existing to reprocess)",
			len(result.Skipped))
	case delivery.NothingFound:
		return fmt.Sprintf("No read pairs found under %s", result.RawPrefix)
	default:
		return "No samples to process"
	}
}

// loadSampleSheet reads a sample sheet written by GenerateSampleSheet (or by hand). Its pairs are taken as is:
// existing output is not checked.
func (a *App) loadSampleSheet(ctx *sizercontext.Context, opener storage.Opener) (*delivery.Result, error) {
	path := a.Params.Config.Delivery.SampleSheet
	fmt.Fprintf(a.Out, "Loading samples from %s...\n", path)
	r, err := opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(ctx, path, r)
	pairs, err := delivery.ReadSampleSheet(r)
	if err != nil {
		return nil, errors.WithMessagef(err, "error reading sample sheet %s", path)
	}
	result := delivery.FromSampleSheet(pairs)
	a.recordPlan(result)
	return result, nil
}

func (a *App) writeSampleSheet(ctx *sizercontext.Context, creator storage.Creator, path string, pairs []delivery.ReadPair) error {
	w, err := creator.Create(ctx, path)
	if err != nil {
		return err
	}
	if err := delivery.WriteSampleSheet(w, pairs); err != nil {
		_ = storage.Abort(w, err)
		return errors.WithMessagef(err, "error writing sample sheet %s", path)
	}
	return errors.WithStack(w.Close())
}

func (a *App) recordPlan(result *delivery.Result) {
	m := a.metrics()
	m.RecordDelivery(metrics.DeliveryStateCandidates, len(result.Candidates))
	m.RecordDelivery(metrics.DeliveryStateSkipped, len(result.Skipped))
	m.RecordDelivery(metrics.DeliveryStateIncomplete, len(result.Incomplete))
	m.RecordDelivery(metrics.DeliveryStatePending, len(result.Worklist))
}
