package plan

import "sort"

// Parse extracts, decodes and validates raw plan text.
func Parse(raw string) (Plan, error) {
	text, err := Extract(raw)
	if err != nil {
		return Plan{}, err
	}
	p, err := Decode(text)
	if err != nil {
		return Plan{}, err
	}
	if err := CheckOverlaps(p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// CheckOverlaps enforces that cut and speed-change intervals are pairwise
// disjoint under the closed-interval test. The result does not depend on the
// order of operations in the plan.
func CheckOverlaps(p Plan) error {
	retimes := p.Retimes()
	sort.SliceStable(retimes, func(i, j int) bool {
		a, b := retimes[i].Window(), retimes[j].Window()
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return retimes[i].Index() < retimes[j].Index()
	})

	// After sorting by start, any overlap involves the operation with the
	// furthest end seen so far.
	reach := -1
	for i, op := range retimes {
		if reach >= 0 && retimes[reach].Window().overlaps(op.Window()) {
			return newOverlapError(retimes[reach], op)
		}
		if reach < 0 || op.Window().End > retimes[reach].Window().End {
			reach = i
		}
	}
	return nil
}

func newOverlapError(a, b Operation) *OverlapError {
	if b.Index() < a.Index() {
		a, b = b, a
	}
	return &OverlapError{
		First:  Conflict{Index: a.Index(), Action: a.Action(), Interval: a.Window()},
		Second: Conflict{Index: b.Index(), Action: b.Action(), Interval: b.Window()},
	}
}
