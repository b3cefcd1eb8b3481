package delivery

type State int

const (
	// NothingFound means discovery produced no candidate pairs.
	NothingFound State = iota
	// NothingToDo means every candidate already has output.
	NothingToDo
	// Pending means the worklist is not empty.
	Pending
)

func (s State) String() string {
	switch s {
	case NothingFound:
		return "nothing found"
	case NothingToDo:
		return "nothing to do"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Plan is the outcome of resolving candidates against the processed set.
type Plan struct {
	Candidates []ReadPair
	Skipped    []ReadPair
	Worklist   Worklist
}

// Resolve returns the candidates whose id is not in processed, in id order.
// Resolving against an empty set returns every candidate, which is how forced regeneration is expressed.
func Resolve(candidates []ReadPair, processed ProcessedSet) Plan {
	plan := Plan{
		Candidates: append([]ReadPair{}, candidates...),
		Skipped:    []ReadPair{},
		Worklist:   Worklist{},
	}
	sortPairs(plan.Candidates)
	for _, pair := range plan.Candidates {
		if processed.Contains(pair.ID) {
			plan.Skipped = append(plan.Skipped, pair)
		} else {
			plan.Worklist = append(plan.Worklist, pair)
		}
	}
	return plan
}

func (p Plan) State() State {
	switch {
	case len(p.Candidates) == 0:
		return NothingFound
	case len(p.Worklist) == 0:
		return NothingToDo
	default:
		return Pending
	}
}
