// Package audiomix builds the background-music stage of the filter graph.
package audiomix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/forPelevin/promptcut/internal/assets"
	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/types"
)

const (
	SampleRate = 48000
	layout     = "stereo"
	// loopSize is the aloop buffer limit in samples.
	loopSize = math.MaxInt32
)

type Resolver interface {
	Music(ctx context.Context, scratch assets.Scratch, src plan.MusicSource) (assets.Asset, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
}

type Config struct {
	// Duck scales the original track while any music window is active.
	// 1 (or 0, meaning unset) leaves it untouched.
	Duck float64
}

type Mixer struct {
	res   Resolver
	probe Prober
	cfg   Config
	log   *slog.Logger
}

func New(res Resolver, probe Prober, cfg Config, log *slog.Logger) *Mixer {
	if cfg.Duck <= 0 || cfg.Duck > 1 {
		cfg.Duck = 1
	}
	log = logging.OrDiscard(log)
	return &Mixer{res: res, probe: probe, cfg: cfg, log: log}
}

type Input struct {
	Graph *filtergraph.Graph
	// Audio is the label of the original audio, empty when the source has
	// no audio stream.
	Audio      string
	FirstInput int
	Map        *timeline.Map
	Music      []plan.Music
	Scratch    assets.Scratch
}

type Result struct {
	// Audio is the terminal audio label, empty when the output has no audio.
	Audio string
	// Tracks must be added as engine inputs in this order starting at
	// Input.FirstInput.
	Tracks []assets.Asset
	Music  []types.MusicReport
}

type track struct {
	m          plan.Music
	start, end float64
}

// Build adds the music nodes to in.Graph. Catalog misses and failed
// downloads are returned as errors, also for tracks whose window was cut
// away; a query without a match is skipped.
func (x *Mixer) Build(ctx context.Context, in Input) (Result, error) {
	res := Result{Audio: in.Audio}
	if len(in.Music) == 0 {
		return res, nil
	}

	var tracks []track
	var resolved []assets.Asset
	for _, m := range in.Music {
		rep := types.MusicReport{Index: m.Idx, Source: m.Source.Kind.String()}
		// Sources are resolved before the window check so a bad catalog id
		// or download fails the plan even when cuts remove the window.
		a, err := x.res.Music(ctx, in.Scratch, m.Source)
		if errors.Is(err, assets.ErrUnavailable) {
			x.log.Warn("music skipped: nothing matches", "index", m.Idx, "source", m.Source.Kind.String())
			rep.Skipped = true
			res.Music = append(res.Music, rep)
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("music #%d: %w", m.Idx, err)
		}
		start, end, ok := in.Map.Window(m.Start, m.End)
		if !ok {
			x.log.Info("music dropped: window removed by cuts", "index", m.Idx)
			rep.Skipped = true
			res.Music = append(res.Music, rep)
			continue
		}

		if !m.Loop {
			end = x.truncate(ctx, a, start, end)
		}
		rep.Start, rep.End = start, end
		res.Music = append(res.Music, rep)
		tracks = append(tracks, track{m: m, start: start, end: end})
		resolved = append(resolved, a)
	}
	if len(tracks) == 0 {
		return res, nil
	}
	res.Tracks = resolved

	g := in.Graph
	var music []string
	for i, t := range tracks {
		src := fmt.Sprintf("%d:a", in.FirstInput+i)
		g.AddSource(src)
		out := g.Label("m")
		if err := g.Add(filtergraph.Node{
			Name:    fmt.Sprintf("music#%d", t.m.Idx),
			Kind:    filtergraph.KindTrim,
			Inputs:  []string{src},
			Filters: trackFilters(t),
			Outputs: []string{out},
		}); err != nil {
			return Result{}, err
		}
		music = append(music, out)
	}

	bed := music[0]
	if len(music) > 1 {
		bed = g.Label("m")
		if err := g.Add(filtergraph.Node{
			Name:   "music bed",
			Kind:   filtergraph.KindMix,
			Inputs: music,
			Filters: []filtergraph.Filter{filtergraph.F("amix",
				filtergraph.Int("inputs", len(music)),
				filtergraph.Str("duration", "longest"),
				filtergraph.Int("normalize", 0),
			)},
			Outputs: []string{bed},
		}); err != nil {
			return Result{}, err
		}
	}

	base, err := x.base(g, in, tracks)
	if err != nil {
		return Result{}, err
	}
	out := g.Label("a")
	if err := g.Add(filtergraph.Node{
		Name:   "audio mix",
		Kind:   filtergraph.KindMix,
		Inputs: []string{base, bed},
		Filters: []filtergraph.Filter{filtergraph.F("amix",
			filtergraph.Int("inputs", 2),
			filtergraph.Str("duration", "first"),
			filtergraph.Int("normalize", 0),
		)},
		Outputs: []string{out},
	}); err != nil {
		return Result{}, err
	}
	res.Audio = out
	return res, nil
}

// truncate shortens a non-looping window to the asset length.
func (x *Mixer) truncate(ctx context.Context, a assets.Asset, start, end float64) float64 {
	if x.probe == nil {
		return end
	}
	info, err := x.probe.Probe(ctx, a.Path)
	if err != nil || info.Duration <= 0 {
		x.log.Warn("music length unknown, keeping window", "key", a.Key, "err", err)
		return end
	}
	return math.Min(end, start+info.Duration)
}

func trackFilters(t track) []filtergraph.Filter {
	length := t.end - t.start
	fs := []filtergraph.Filter{format()}
	if t.m.Loop {
		fs = append(fs, filtergraph.F("aloop", filtergraph.Int("loop", -1), filtergraph.Int("size", loopSize)))
	}
	fs = append(fs,
		filtergraph.F("atrim", filtergraph.Num("start", 0), filtergraph.Num("end", length)),
		filtergraph.F("asetpts", filtergraph.Pos("PTS-STARTPTS")),
	)
	if fade := math.Min(t.m.Fade, length/2); fade > 0 {
		fs = append(fs,
			filtergraph.F("afade", filtergraph.Str("t", "in"), filtergraph.Num("st", 0), filtergraph.Num("d", fade)),
			filtergraph.F("afade", filtergraph.Str("t", "out"), filtergraph.Num("st", length-fade), filtergraph.Num("d", fade)),
		)
	}
	fs = append(fs, filtergraph.F("volume", filtergraph.Num("volume", t.m.Volume)))
	if t.start > 0 {
		ms := fmt.Sprintf("%d", int64(math.Round(t.start*1000)))
		fs = append(fs, filtergraph.F("adelay", filtergraph.Str("delays", ms+"|"+ms)))
	}
	return fs
}

// base returns the label of the track the music is laid over: the
// original audio, ducked if configured, or silence when there is none.
func (x *Mixer) base(g *filtergraph.Graph, in Input, tracks []track) (string, error) {
	out := g.Label("a")
	if in.Audio == "" {
		err := g.Add(filtergraph.Node{
			Name: "silence",
			Kind: filtergraph.KindSource,
			Filters: []filtergraph.Filter{
				filtergraph.F("anullsrc", filtergraph.Str("channel_layout", layout), filtergraph.Int("sample_rate", SampleRate)),
				filtergraph.F("atrim", filtergraph.Num("duration", in.Map.Duration())),
			},
			Outputs: []string{out},
		})
		return out, err
	}

	fs := []filtergraph.Filter{format()}
	kind := filtergraph.KindFormat
	if x.cfg.Duck < 1 {
		windows := make([]string, len(tracks))
		for i, t := range tracks {
			windows[i] = fmt.Sprintf("between(t,%.3f,%.3f)", t.start, t.end)
		}
		fs = append(fs, filtergraph.F("volume",
			filtergraph.Num("volume", x.cfg.Duck),
			filtergraph.Str("enable", strings.Join(windows, "+")),
		))
		kind = filtergraph.KindVolume
	}
	err := g.Add(filtergraph.Node{
		Name:    "original audio",
		Kind:    kind,
		Inputs:  []string{in.Audio},
		Filters: fs,
		Outputs: []string{out},
	})
	return out, err
}

func format() filtergraph.Filter {
	return filtergraph.F("aformat",
		filtergraph.Int("sample_rates", SampleRate),
		filtergraph.Str("channel_layouts", layout),
	)
}
