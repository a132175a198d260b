// Package assets resolves sticker and music references to local files.
//
// Stickers and music follow different failure policies. A sticker that
// cannot be resolved yields ErrUnavailable and the caller renders it as
// text. A music reference that cannot be resolved yields CatalogMissError
// or FetchError and the whole edit fails.
package assets

import (
	"errors"
	"fmt"
	"net/url"
)

// Scope tells who owns an asset file.
type Scope int

const (
	// RequestScoped files live in the request workspace and go away with it.
	RequestScoped Scope = iota
	// CacheScoped files are shared, immutable, and never deleted by a request.
	CacheScoped
)

func (s Scope) String() string {
	if s == CacheScoped {
		return "cache"
	}
	return "request"
}

type Asset struct {
	Path string
	// Key is the stable identity: emoji codepoints, catalog id, or the
	// content hash of a download.
	Key   string
	Scope Scope
}

// Scratch hands out request-scoped file paths.
type Scratch interface {
	TempPath(prefix, ext string) string
}

var ErrUnavailable = errors.New("asset unavailable")

type CatalogMissError struct {
	ID string
}

func (e *CatalogMissError) Error() string {
	return fmt.Sprintf("music catalog: unknown id %q", e.ID)
}

// FetchError is a failed music download or a missing music file.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("music fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// displayURL drops credentials, query and fragment so errors and logs never
// carry tokens embedded in asset URLs.
func displayURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<url>"
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath()
}
