package plan

import "fmt"

// ParseError means no JSON array or object could be extracted from the text.
type ParseError struct {
	Reason  string
	Excerpt string
}

func (e *ParseError) Error() string {
	if e.Excerpt == "" {
		return "plan parse: " + e.Reason
	}
	return fmt.Sprintf("plan parse: %s (got %q)", e.Reason, e.Excerpt)
}

// SchemaError names the element and field that failed type checking.
type SchemaError struct {
	Index  int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("plan schema: element %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("plan schema: element %d: field %q: %s", e.Index, e.Field, e.Reason)
}

// Conflict identifies one side of an overlap.
type Conflict struct {
	Index    int
	Action   Action
	Interval Interval
}

func (c Conflict) String() string {
	return fmt.Sprintf("#%d %s %s", c.Index, c.Action, c.Interval)
}

// OverlapError reports two cut/speed operations whose intervals intersect.
// First is always the operation with the lower plan index.
type OverlapError struct {
	First  Conflict
	Second Conflict
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("plan overlap: %s conflicts with %s", e.First, e.Second)
}
