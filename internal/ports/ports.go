package ports

import (
	"context"
	"io"

	"github.com/forPelevin/promptcut/internal/types"
)

type MediaEngine interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	// Run blocks until the invocation finishes. A nil error means the
	// engine exited zero and Output exists and is non-empty.
	Run(ctx context.Context, inv types.Invocation) error
}

// PlanSource turns an instruction into raw plan text. The text is untrusted.
type PlanSource interface {
	Plan(ctx context.Context, instruction string, duration float64) (string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) error
}

// Catalog maps song identifiers to direct audio URLs.
type Catalog interface {
	Lookup(id string) (string, bool)
	Search(query string) (string, bool)
}
