package delivery

import (
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/naming"
	"github.com/G-Research/readsizer/internal/storage"
)

// IndexExisting returns the ids of samples with at least one chunk under outputPrefix.
//
// With ignoreExisting set the lister is not called at all and the set is empty, so every candidate is
// reprocessed. A missing output location is the empty set rather than an error.
func IndexExisting(ctx *sizercontext.Context, lister storage.Lister, outputPrefix string, ignoreExisting bool) (ProcessedSet, error) {
	if ignoreExisting {
		ctx.Log.Info("Ignoring existing output")
		return ProcessedSet{}, nil
	}
	names, err := storage.ListAllowMissing(ctx, lister, outputPrefix)
	if err != nil {
		return nil, err
	}
	return ProcessedIDs(names), nil
}

// ProcessedIDs reduces a listing of output names to the set of sample ids that have chunks.
// Names that are not chunk names are skipped.
func ProcessedIDs(names []string) ProcessedSet {
	processed := ProcessedSet{}
	for _, name := range names {
		if chunk, ok := naming.ParseChunkName(name); ok {
			processed[chunk.SampleID] = struct{}{}
		}
	}
	return processed
}
