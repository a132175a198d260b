// Package timeline resequences the source time axis under cuts and speed
// changes and maps original-timeline seconds onto the edited output.
package timeline

import (
	"fmt"
	"sort"

	"github.com/forPelevin/promptcut/internal/domain/plan"
)

const eps = 1e-9

// Segment is a kept source range played at Rate, starting at OutStart on the
// resequenced timeline.
type Segment struct {
	Start    float64
	End      float64
	Rate     float64
	OutStart float64
}

// OutLen is the segment length on the resequenced timeline.
func (s Segment) OutLen() float64 { return (s.End - s.Start) / s.Rate }

// RangeError reports a cut or speed change that is empty once clamped to the
// media duration.
type RangeError struct {
	Index    int
	Action   plan.Action
	Start    float64
	End      float64
	Duration float64
	Reason   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("timeline: #%d %s [%.3f, %.3f) on %.3fs source: %s",
		e.Index, e.Action, e.Start, e.End, e.Duration, e.Reason)
}

type piece struct {
	start    float64
	end      float64
	rate     float64
	outStart float64
	removed  bool
}

// Map is the piecewise original-to-resequenced time function. It covers
// [0, SourceDuration()) without gaps and is read-only once built.
type Map struct {
	source float64
	out    float64
	pieces []piece
}

// Resequence builds the Map for the cut and speed-change operations of p.
// p is expected to have passed plan.CheckOverlaps.
func Resequence(duration float64, p plan.Plan) (*Map, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("timeline: source duration must be > 0, got %g", duration)
	}

	ops := p.Retimes()
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Window().Start < ops[j].Window().Start
	})

	m := &Map{source: duration}
	origin, out := 0.0, 0.0
	add := func(start, end, rate float64, removed bool) {
		m.pieces = append(m.pieces, piece{start: start, end: end, rate: rate, outStart: out, removed: removed})
		if !removed {
			out += (end - start) / rate
		}
		origin = end
	}

	for _, op := range ops {
		w := op.Window()
		start, end := w.Start, w.End
		if end > duration {
			end = duration
		}
		if start >= end {
			return nil, &RangeError{Index: op.Index(), Action: op.Action(), Start: w.Start, End: w.End, Duration: duration,
				Reason: "interval is empty after clamping to the media duration"}
		}
		if start < origin-eps {
			return nil, &RangeError{Index: op.Index(), Action: op.Action(), Start: w.Start, End: w.End, Duration: duration,
				Reason: "interval overlaps a preceding cut or speed change"}
		}
		if start > origin+eps {
			add(origin, start, 1, false)
		}
		switch o := op.(type) {
		case plan.Cut:
			add(start, end, 1, true)
		case plan.SpeedChange:
			add(start, end, o.Rate, false)
		}
	}
	if origin < duration-eps {
		add(origin, duration, 1, false)
	}
	m.out = out
	return m, nil
}

// Identity returns the map of an unedited source.
func Identity(duration float64) *Map {
	return &Map{
		source: duration,
		out:    duration,
		pieces: []piece{{start: 0, end: duration, rate: 1}},
	}
}

func (m *Map) SourceDuration() float64 { return m.source }

// Duration is the total resequenced length.
func (m *Map) Duration() float64 { return m.out }

// IsIdentity reports whether the map leaves the timeline untouched.
func (m *Map) IsIdentity() bool {
	for _, p := range m.pieces {
		if p.removed || p.rate != 1 {
			return false
		}
	}
	return true
}

// Segments returns the kept source ranges in timeline order.
func (m *Map) Segments() []Segment {
	out := make([]Segment, 0, len(m.pieces))
	for _, p := range m.pieces {
		if p.removed {
			continue
		}
		out = append(out, Segment{Start: p.start, End: p.end, Rate: p.rate, OutStart: p.outStart})
	}
	return out
}

// Removed returns the cut ranges in timeline order.
func (m *Map) Removed() []plan.Interval {
	var out []plan.Interval
	for _, p := range m.pieces {
		if p.removed {
			out = append(out, plan.Interval{Start: p.start, End: p.end})
		}
	}
	return out
}

// At maps an original second to the resequenced timeline. The second result
// is false when t falls inside a cut. Times past the source end map to the
// output end.
func (m *Map) At(t float64) (float64, bool) {
	p, ok := m.find(t)
	if !ok {
		if t <= 0 {
			return 0, true
		}
		return m.out, true
	}
	if p.removed {
		return 0, false
	}
	return p.outStart + (t-p.start)/p.rate, true
}

// Window maps an original [start, end) range. An endpoint inside a cut is
// clamped to the nearest kept boundary (start forward, end backward). The
// result is false when nothing of the range survives.
func (m *Map) Window(start, end float64) (float64, float64, bool) {
	if start < 0 {
		start = 0
	}
	if end > m.source {
		end = m.source
	}
	if start >= end {
		return 0, 0, false
	}
	a, b := m.clamped(start), m.clamped(end)
	if b-a <= eps {
		return 0, 0, false
	}
	return a, b, true
}

// clamped maps t, sending removed seconds to the output position of the cut,
// which is where both neighbouring kept boundaries land.
func (m *Map) clamped(t float64) float64 {
	p, ok := m.find(t)
	if !ok {
		if t <= 0 {
			return 0
		}
		return m.out
	}
	if p.removed {
		return p.outStart
	}
	return p.outStart + (t-p.start)/p.rate
}

func (m *Map) find(t float64) (piece, bool) {
	if t < 0 || t >= m.source {
		return piece{}, false
	}
	i := sort.Search(len(m.pieces), func(i int) bool { return m.pieces[i].end > t })
	if i == len(m.pieces) {
		return piece{}, false
	}
	return m.pieces[i], true
}
