package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/runenames"
)

const (
	zwj             = 0x200D
	variationSelect = 0xFE0F
)

var imageExts = map[string]bool{".png": true, ".webp": true, ".jpg": true, ".jpeg": true}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Codepoints returns the twemoji file stem for glyph: lowercase hex code
// points joined by "-", with U+FE0F dropped unless the sequence uses ZWJ.
func Codepoints(glyph string) string {
	keepVS := strings.ContainsRune(glyph, zwj)
	var parts []string
	for _, r := range glyph {
		if r == variationSelect && !keepVS {
			continue
		}
		parts = append(parts, fmt.Sprintf("%x", r))
	}
	return strings.Join(parts, "-")
}

// nameTokens returns the lowercase Unicode name tokens of the first
// non-modifier rune in glyph, e.g. "🔥" → [fire].
func nameTokens(glyph string) []string {
	for _, r := range glyph {
		if r == zwj || r == variationSelect || (r >= 0x1F3FB && r <= 0x1F3FF) {
			continue
		}
		name := strings.ToLower(runenames.Name(r))
		if name == "" || strings.HasPrefix(name, "<") {
			return nil
		}
		return tokens(name)
	}
	return nil
}

func tokens(s string) []string {
	return strings.Fields(nonAlnum.ReplaceAllString(strings.ToLower(s), " "))
}

type candidate struct {
	path string
	// base is the lowercased file name without extension.
	base string
}

// listImages returns image files from dirs in directory order, then name order.
func listImages(dirs []string) []candidate {
	var out []candidate
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			lower := strings.ToLower(e.Name())
			ext := filepath.Ext(lower)
			if !imageExts[ext] {
				continue
			}
			out = append(out, candidate{path: filepath.Join(d, e.Name()), base: strings.TrimSuffix(lower, ext)})
		}
	}
	return out
}

// matchEmoji finds a local image for glyph by code points or by character
// name. Exact code point names beat partial ones, which beat name matches.
func matchEmoji(cands []candidate, glyph string) (string, bool) {
	dashed := Codepoints(glyph)
	compact := strings.ReplaceAll(dashed, "-", "")
	if dashed == "" {
		return "", false
	}
	for _, c := range cands {
		if c.base == dashed || c.base == compact || c.base == glyph {
			return c.path, true
		}
	}
	for _, c := range cands {
		if strings.Contains(c.base, dashed) || strings.Contains(c.base, compact) || strings.Contains(c.base, glyph) {
			return c.path, true
		}
	}
	toks := nameTokens(glyph)
	if len(toks) == 0 {
		return "", false
	}
	for _, c := range cands {
		if containsAll(tokens(c.base), toks) {
			return c.path, true
		}
	}
	return "", false
}

// matchName finds a local image whose name carries every token of ref, or
// whose compacted name contains the joined tokens.
func matchName(cands []candidate, ref string) (string, bool) {
	base := strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
	toks := tokens(base)
	if len(toks) == 0 {
		return "", false
	}
	joined := strings.Join(toks, "")
	for _, c := range cands {
		if containsAll(tokens(c.base), toks) {
			return c.path, true
		}
	}
	for _, c := range cands {
		if strings.Contains(nonAlnum.ReplaceAllString(c.base, ""), joined) {
			return c.path, true
		}
	}
	return "", false
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
