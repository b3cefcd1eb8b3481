package delivery

import (
	"github.com/sirupsen/logrus"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/naming"
	"github.com/G-Research/readsizer/internal/storage"
)

// Request identifies the delivery to plan.
type Request struct {
	Bucket   string
	Delivery string
	// OutDir overrides s3://<bucket>/<delivery>/siz/ both as the chunk destination and as the location scanned
	// for existing chunks.
	OutDir         string
	IgnoreExisting bool
}

type Result struct {
	Plan
	RawPrefix    string
	OutputPrefix string
	Incomplete   []IncompletePair
}

// Planner runs discovery, indexes existing output and resolves the two into a worklist.
type Planner struct {
	Lister  storage.Lister
	Markers []naming.Markers
}

func NewPlanner(lister storage.Lister, markers []naming.Markers) *Planner {
	return &Planner{Lister: lister, Markers: markers}
}

// Plan computes the worklist for a delivery. The raw and output listings are fetched concurrently; any error
// from discovery or from listing existing output aborts the plan.
func (p *Planner) Plan(ctx *sizercontext.Context, req Request) (*Result, error) {
	rawPrefix, err := naming.RawPrefix(req.Bucket, req.Delivery)
	if err != nil {
		return nil, err
	}
	outputPrefix, err := naming.OutputPrefix(req.Bucket, req.Delivery, req.OutDir)
	if err != nil {
		return nil, err
	}
	ctx = sizercontext.WithLogFields(ctx, logrus.Fields{"raw": rawPrefix, "output": outputPrefix})

	var discovery *Discovery
	var processed ProcessedSet
	g, gctx := sizercontext.ErrGroup(ctx)
	g.Go(func() error {
		var err error
		discovery, err = DiscoverPairs(gctx, p.Lister, rawPrefix, outputPrefix, p.Markers)
		return err
	})
	g.Go(func() error {
		var err error
		processed, err = IndexExisting(gctx, p.Lister, outputPrefix, req.IgnoreExisting)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Plan:         Resolve(discovery.Pairs, processed),
		RawPrefix:    rawPrefix,
		OutputPrefix: outputPrefix,
		Incomplete:   discovery.Incomplete,
	}
	ctx.Log.WithFields(logrus.Fields{
		"candidates": len(result.Candidates),
		"skipped":    len(result.Skipped),
		"incomplete": len(result.Incomplete),
		"pending":    len(result.Worklist),
	}).Info("Resolved delivery")
	return result, nil
}

// FromSampleSheet plans an explicit list of pairs, e.g. rows read from a sample sheet. The sheet is taken as
// the worklist: no existing output is consulted.
func FromSampleSheet(pairs []ReadPair) *Result {
	return &Result{Plan: Resolve(pairs, ProcessedSet{})}
}
