package naming

import "strings"

type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Markers is a pair of file name suffixes that identify the forward and reverse reads of a sample.
type Markers struct {
	Forward string
	Reverse string
}

// DefaultMarkers matches sample_1.fastq.gz / sample_2.fastq.gz.
var DefaultMarkers = Markers{Forward: "_1.fastq.gz", Reverse: "_2.fastq.gz"}

// RawMatch is one interpretation of a raw file name.
type RawMatch struct {
	SampleID  SampleID
	Direction Direction
}

// MatchRaw returns every interpretation of name under the given markers. Callers treat more than one match
// as ambiguous; a name no marker recognises yields nil. A marker that would leave an empty id does not match.
func MatchRaw(name string, markers []Markers) []RawMatch {
	var matches []RawMatch
	for _, m := range markers {
		if id, ok := stripSuffix(name, m.Forward); ok {
			matches = append(matches, RawMatch{SampleID: id, Direction: Forward})
		}
		if id, ok := stripSuffix(name, m.Reverse); ok {
			matches = append(matches, RawMatch{SampleID: id, Direction: Reverse})
		}
	}
	return matches
}

func stripSuffix(name, suffix string) (SampleID, bool) {
	if suffix == "" || !strings.HasSuffix(name, suffix) || len(name) == len(suffix) {
		return "", false
	}
	return SampleID(strings.TrimSuffix(name, suffix)), true
}
