package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/ports"
)

// DefaultEmojiURL serves 72x72 twemoji PNGs; %s is the code point stem.
const DefaultEmojiURL = "https://github.com/twitter/twemoji/raw/master/assets/72x72/%s.png"

type Config struct {
	StickerDirs []string
	// EmojiURL is a fmt template taking the code point stem. Empty disables
	// remote emoji images.
	EmojiURL string
}

type Resolver struct {
	cfg     Config
	store   Store
	fetch   ports.Fetcher
	catalog ports.Catalog
	log     *slog.Logger
}

// NewResolver wires the lookup chain. fetch and catalog may be nil, which
// disables downloads and catalog lookups.
func NewResolver(cfg Config, store Store, fetch ports.Fetcher, catalog ports.Catalog, log *slog.Logger) *Resolver {
	log = logging.OrDiscard(log)
	return &Resolver{cfg: cfg, store: store, fetch: fetch, catalog: catalog, log: log}
}

// Sticker resolves sticker content to an image. Any failure other than
// context cancellation is reported as ErrUnavailable.
func (r *Resolver) Sticker(ctx context.Context, scratch Scratch, c plan.StickerContent) (Asset, error) {
	switch c.Kind {
	case plan.ContentEmoji:
		return r.emoji(ctx, c.Value)
	case plan.ContentImage:
		return r.image(ctx, scratch, c.Value)
	default:
		return Asset{}, ErrUnavailable
	}
}

func (r *Resolver) emoji(ctx context.Context, glyph string) (Asset, error) {
	code := Codepoints(glyph)
	if code == "" {
		return Asset{}, ErrUnavailable
	}
	if p, ok := matchEmoji(listImages(r.cfg.StickerDirs), glyph); ok {
		return Asset{Path: p, Key: "emoji:" + code, Scope: CacheScoped}, nil
	}
	if r.store == nil || r.fetch == nil || r.cfg.EmojiURL == "" {
		return Asset{}, ErrUnavailable
	}

	src := fmt.Sprintf(r.cfg.EmojiURL, code)
	p, err := r.store.PutIfAbsent(ctx, "emoji/"+code+".png", func(ctx context.Context, w io.Writer) error {
		return r.fetch.Fetch(ctx, src, w)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Asset{}, ctx.Err()
		}
		r.log.Warn("emoji image fetch failed", "codepoints", code, "err", err)
		return Asset{}, fmt.Errorf("emoji %s: %w", code, ErrUnavailable)
	}
	return Asset{Path: p, Key: "emoji:" + code, Scope: CacheScoped}, nil
}

func (r *Resolver) image(ctx context.Context, scratch Scratch, ref string) (Asset, error) {
	if st, err := os.Stat(ref); err == nil && st.Mode().IsRegular() {
		abs, err := filepath.Abs(ref)
		if err != nil {
			abs = ref
		}
		return Asset{Path: abs, Key: "file:" + abs, Scope: CacheScoped}, nil
	}
	if isHTTP(ref) {
		if r.fetch == nil || scratch == nil {
			return Asset{}, ErrUnavailable
		}
		a, err := r.download(ctx, scratch, "sticker", ref, ".png")
		if err != nil {
			if ctx.Err() != nil {
				return Asset{}, ctx.Err()
			}
			r.log.Warn("sticker image download failed", "url", displayURL(ref), "err", err)
			return Asset{}, fmt.Errorf("image %s: %w", displayURL(ref), ErrUnavailable)
		}
		return a, nil
	}
	if p, ok := matchName(listImages(r.cfg.StickerDirs), ref); ok {
		return Asset{Path: p, Key: "file:" + p, Scope: CacheScoped}, nil
	}
	return Asset{}, ErrUnavailable
}

// Music resolves a music source. Catalog misses and failed downloads are
// hard errors; a query nothing matches yields ErrUnavailable.
func (r *Resolver) Music(ctx context.Context, scratch Scratch, src plan.MusicSource) (Asset, error) {
	switch src.Kind {
	case plan.SourceCatalog:
		u, ok := r.lookup(src.Value)
		if !ok {
			return Asset{}, &CatalogMissError{ID: src.Value}
		}
		a, err := r.musicDownload(ctx, scratch, u)
		if err != nil {
			return Asset{}, err
		}
		a.Key = "catalog:" + src.Value
		return a, nil
	case plan.SourceURL:
		if !isHTTP(src.Value) {
			return Asset{}, &FetchError{Ref: "url", Err: errors.New("only http(s) URLs are supported")}
		}
		return r.musicDownload(ctx, scratch, src.Value)
	case plan.SourceFile:
		st, err := os.Stat(src.Value)
		if err != nil {
			return Asset{}, &FetchError{Ref: "file " + filepath.Base(src.Value), Err: errors.New("file not found")}
		}
		if !st.Mode().IsRegular() || st.Size() == 0 {
			return Asset{}, &FetchError{Ref: "file " + filepath.Base(src.Value), Err: errors.New("not a non-empty regular file")}
		}
		abs, err := filepath.Abs(src.Value)
		if err != nil {
			abs = src.Value
		}
		return Asset{Path: abs, Key: "file:" + abs, Scope: CacheScoped}, nil
	case plan.SourceQuery:
		if r.catalog == nil {
			return Asset{}, ErrUnavailable
		}
		u, ok := r.catalog.Search(src.Value)
		if !ok {
			return Asset{}, ErrUnavailable
		}
		return r.musicDownload(ctx, scratch, u)
	default:
		return Asset{}, fmt.Errorf("music: unsupported source kind %v", src.Kind)
	}
}

func (r *Resolver) lookup(id string) (string, bool) {
	if r.catalog == nil {
		return "", false
	}
	return r.catalog.Lookup(id)
}

func (r *Resolver) musicDownload(ctx context.Context, scratch Scratch, u string) (Asset, error) {
	if r.fetch == nil || scratch == nil {
		return Asset{}, &FetchError{Ref: displayURL(u), Err: errors.New("downloads are disabled")}
	}
	a, err := r.download(ctx, scratch, "music", u, ".mp3")
	if err != nil {
		if ctx.Err() != nil {
			return Asset{}, ctx.Err()
		}
		return Asset{}, &FetchError{Ref: displayURL(u), Err: err}
	}
	return a, nil
}

// download copies u into a request-scoped file and keys it by content hash.
func (r *Resolver) download(ctx context.Context, scratch Scratch, prefix, u, defExt string) (Asset, error) {
	dst := scratch.TempPath(prefix, extFromURL(u, defExt))
	f, err := os.Create(dst)
	if err != nil {
		return Asset{}, err
	}
	h := sha256.New()
	ferr := r.fetch.Fetch(ctx, u, io.MultiWriter(f, h))
	cerr := f.Close()
	if ferr == nil {
		ferr = cerr
	}
	if ferr == nil {
		if st, err := os.Stat(dst); err != nil || st.Size() == 0 {
			ferr = errors.New("empty download")
		}
	}
	if ferr != nil {
		_ = os.Remove(dst)
		return Asset{}, ferr
	}
	return Asset{Path: dst, Key: "sha256:" + hex.EncodeToString(h.Sum(nil)), Scope: RequestScoped}, nil
}

func isHTTP(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func extFromURL(u, def string) string {
	pu, err := url.Parse(u)
	if err != nil {
		return def
	}
	ext := strings.ToLower(path.Ext(pu.Path))
	if ext == "" || len(ext) > 6 || strings.ContainsAny(ext, `/\`) {
		return def
	}
	return ext
}
