// Package delivery decides which read pairs of a delivery still need encoding. It reconciles a listing of raw
// FASTQ files with a listing of previously written SIZ chunks and produces the worklist handed to the dispatcher.
// Nothing is cached between runs: every decision is a pure function of listings fetched for that run.
package delivery

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/G-Research/readsizer/internal/naming"
)

// ReadPair is the unit of work: the forward and reverse files of one sample and where its chunks go.
type ReadPair struct {
	ID      naming.SampleID
	Forward string
	Reverse string
	OutDir  string
}

// OutputBase is the prefix chunk names are built from, e.g. s3://b/d/siz/sample1.
func (p ReadPair) OutputBase() string {
	return naming.NormalizeDir(p.OutDir) + string(p.ID)
}

// ProcessedSet holds the ids of samples for which at least one chunk was observed.
type ProcessedSet map[naming.SampleID]struct{}

func (s ProcessedSet) Contains(id naming.SampleID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the ids in the set, sorted.
func (s ProcessedSet) IDs() []naming.SampleID {
	ids := maps.Keys(s)
	slices.Sort(ids)
	return ids
}

// Worklist is the ordered set of pairs selected for submission.
type Worklist []ReadPair

func (w Worklist) IDs() []naming.SampleID {
	ids := make([]naming.SampleID, len(w))
	for i, p := range w {
		ids[i] = p.ID
	}
	return ids
}

func sortPairs(pairs []ReadPair) {
	slices.SortFunc(pairs, func(a, b ReadPair) bool {
		return a.ID < b.ID
	})
}
