package delivery

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/naming"
	"github.com/G-Research/readsizer/internal/storage"
)

// AmbiguousPairError is returned when the raw files of a sample cannot be assigned to a single forward and a
// single reverse read: either one name matches several markers, or several names claim the same read.
type AmbiguousPairError struct {
	SampleID naming.SampleID
	Names    []string
	Reason   string
}

func (err *AmbiguousPairError) Error() string {
	return fmt.Sprintf("ambiguous read pair for sample %s (%s): %s", err.SampleID, strings.Join(err.Names, ", "), err.Reason)
}

// IncompletePair is a sample for which only one of the two reads was found.
type IncompletePair struct {
	ID      naming.SampleID
	Forward string
	Reverse string
}

// Missing returns the direction of the read that was not found.
func (p IncompletePair) Missing() naming.Direction {
	if p.Forward == "" {
		return naming.Forward
	}
	return naming.Reverse
}

// Discovery is the result of pairing a raw listing.
type Discovery struct {
	Pairs      []ReadPair
	Incomplete []IncompletePair
}

// DiscoverPairs lists rawPrefix and pairs the files found there. Listing errors are returned as they are and
// never retried. outdir is where the chunks of every pair go; when empty it is inferred from the forward path.
func DiscoverPairs(
	ctx *sizercontext.Context,
	lister storage.Lister,
	rawPrefix string,
	outdir string,
	markers []naming.Markers,
) (*Discovery, error) {
	names, err := lister.List(ctx, rawPrefix)
	if err != nil {
		return nil, err
	}
	return PairNames(ctx, rawPrefix, outdir, names, markers)
}

// PairNames pairs raw file names found directly under rawPrefix.
//
// Names that match no marker are ignored. Samples with only one read are logged and returned in
// Discovery.Incomplete. Ambiguous samples are collected into a single *multierror.Error of *AmbiguousPairError;
// when there are any, no Discovery is returned since the delivery needs fixing before it can be processed.
func PairNames(ctx *sizercontext.Context, rawPrefix, outdir string, names []string, markers []naming.Markers) (*Discovery, error) {
	if len(markers) == 0 {
		markers = []naming.Markers{naming.DefaultMarkers}
	}
	rawPrefix = naming.NormalizeDir(rawPrefix)

	type reads struct {
		forward []string
		reverse []string
	}
	byID := map[naming.SampleID]*reads{}
	var result *multierror.Error
	for _, name := range names {
		matches := naming.MatchRaw(name, markers)
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			result = multierror.Append(result, errors.WithStack(&AmbiguousPairError{
				SampleID: matches[0].SampleID,
				Names:    []string{name},
				Reason:   "name matches more than one read marker",
			}))
			continue
		}
		m := matches[0]
		r, ok := byID[m.SampleID]
		if !ok {
			r = &reads{}
			byID[m.SampleID] = r
		}
		if m.Direction == naming.Forward {
			r.forward = append(r.forward, name)
		} else {
			r.reverse = append(r.reverse, name)
		}
	}

	ids := maps.Keys(byID)
	slices.Sort(ids)
	discovery := &Discovery{Pairs: []ReadPair{}}
	for _, id := range ids {
		r := byID[id]
		if len(r.forward) > 1 || len(r.reverse) > 1 {
			result = multierror.Append(result, errors.WithStack(&AmbiguousPairError{
				SampleID: id,
				Names:    append(append([]string{}, r.forward...), r.reverse...),
				Reason:   "more than one file for the same read",
			}))
			continue
		}
		if err := naming.ValidateSampleID(id); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if len(r.forward) == 0 || len(r.reverse) == 0 {
			incomplete := IncompletePair{ID: id}
			if len(r.forward) == 1 {
				incomplete.Forward = rawPrefix + r.forward[0]
			}
			if len(r.reverse) == 1 {
				incomplete.Reverse = rawPrefix + r.reverse[0]
			}
			ctx.Log.WithField("sample", id).Warnf("Incomplete pair for id %s: no %s read", id, incomplete.Missing())
			discovery.Incomplete = append(discovery.Incomplete, incomplete)
			continue
		}
		pair := ReadPair{
			ID:      id,
			Forward: rawPrefix + r.forward[0],
			Reverse: rawPrefix + r.reverse[0],
			OutDir:  naming.NormalizeDir(outdir),
		}
		if pair.OutDir == "" {
			pair.OutDir = naming.InferOutputDir(pair.Forward)
		}
		discovery.Pairs = append(discovery.Pairs, pair)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return discovery, nil
}
