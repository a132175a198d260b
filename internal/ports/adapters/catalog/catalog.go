// Package catalog serves the music catalog from a YAML file.
//
//	tracks:
//	  - id: calm-piano
//	    title: Calm Piano
//	    url: https://cdn.example.com/music/calm-piano.mp3
//	    tags: [calm, piano, instrumental]
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

type Track struct {
	ID    string   `yaml:"id"`
	Title string   `yaml:"title"`
	URL   string   `yaml:"url"`
	Tags  []string `yaml:"tags"`
}

type file struct {
	Tracks []Track `yaml:"tracks"`
}

// Catalog is immutable after Load and safe for concurrent use.
type Catalog struct {
	tracks []Track
	byID   map[string]int
}

// Load reads a catalog file. An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	c, err := New(f.Tracks)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func New(tracks []Track) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(tracks))}
	for i, t := range tracks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("track %d: id is required", i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("track %d: duplicate id %q", i, t.ID)
		}
		u, err := url.Parse(strings.TrimSpace(t.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("track %q: %w", t.ID, errors.New("url must be absolute http(s)"))
		}
		t.URL = u.String()
		c.byID[t.ID] = len(c.tracks)
		c.tracks = append(c.tracks, t)
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.tracks) }

func (c *Catalog) Lookup(id string) (string, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return "", false
	}
	return c.tracks[i].URL, true
}

// Search returns the URL of the track whose id, title and tags share the
// most words with query. Ties go to the earlier track; no shared word is a
// miss.
func (c *Catalog) Search(query string) (string, bool) {
	want := words(query)
	if len(want) == 0 {
		return "", false
	}
	best, bestScore := -1, 0
	for i, t := range c.tracks {
		have := map[string]struct{}{}
		for _, w := range words(t.ID + " " + t.Title + " " + strings.Join(t.Tags, " ")) {
			have[w] = struct{}{}
		}
		score := 0
		for _, w := range want {
			if _, ok := have[w]; ok {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", false
	}
	return c.tracks[best].URL, true
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
