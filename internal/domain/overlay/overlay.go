// Package overlay builds the sticker compositing stage of the filter graph.
//
// Sticker windows are given on the original timeline and remapped through
// the timeline map first. Stickers whose image resolves become overlay
// nodes chained in plan order; the rest are drawn as text after the overlay
// chain. A sticker never fails the edit: it is degraded to text or dropped.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/promptcut/internal/assets"
	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/types"
)

const (
	margin             = 10
	defaultConcurrency = 4
)

type Resolver interface {
	Sticker(ctx context.Context, scratch assets.Scratch, c plan.StickerContent) (assets.Asset, error)
}

type Config struct {
	// FontFile is passed to drawtext when set.
	FontFile string
	// Concurrency bounds parallel sticker resolution.
	Concurrency int
}

type Builder struct {
	res Resolver
	cfg Config
	log *slog.Logger
}

func New(res Resolver, cfg Config, log *slog.Logger) *Builder {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	log = logging.OrDiscard(log)
	return &Builder{res: res, cfg: cfg, log: log}
}

type Input struct {
	Graph *filtergraph.Graph
	// Video is the label of the stream to composite onto.
	Video string
	// FirstInput is the engine input index the first image will get.
	FirstInput int
	Map        *timeline.Map
	Stickers   []plan.Sticker
	Scratch    assets.Scratch
}

type Result struct {
	// Video is the terminal video label; equal to Input.Video when no
	// sticker survives.
	Video string
	// Images must be added as engine inputs in this order starting at
	// Input.FirstInput.
	Images   []assets.Asset
	Stickers []types.StickerReport
}

type placed struct {
	s          plan.Sticker
	start, end float64
	asset      assets.Asset
	resolved   bool
}

// Build adds the sticker nodes to in.Graph. It only fails on context
// cancellation or on an internal graph wiring error.
func (b *Builder) Build(ctx context.Context, in Input) (Result, error) {
	res := Result{Video: in.Video}
	if len(in.Stickers) == 0 {
		return res, nil
	}

	var live []*placed
	for _, s := range in.Stickers {
		start, end, ok := in.Map.Window(s.Start, s.End)
		if !ok {
			b.log.Info("sticker dropped: window removed by cuts", "index", s.Idx)
			res.Stickers = append(res.Stickers, types.StickerReport{Index: s.Idx, Outcome: types.StickerDropped})
			continue
		}
		live = append(live, &placed{s: s, start: start, end: end})
	}

	if err := b.resolve(ctx, in.Scratch, live); err != nil {
		return Result{}, err
	}

	g := in.Graph
	cur := in.Video
	next := in.FirstInput
	for _, p := range live {
		if !p.resolved {
			continue
		}
		src := fmt.Sprintf("%d:v", next)
		next++
		g.AddSource(src)
		res.Images = append(res.Images, p.asset)

		scaled := g.Label("sk")
		if err := g.Add(filtergraph.Node{
			Name:    fmt.Sprintf("sticker#%d scale", p.s.Idx),
			Kind:    filtergraph.KindScale,
			Inputs:  []string{src},
			Filters: []filtergraph.Filter{filtergraph.F("scale", filtergraph.Int("w", -1), filtergraph.Int("h", p.s.FontSize))},
			Outputs: []string{scaled},
		}); err != nil {
			return Result{}, err
		}

		x, y := overlayXY(p.s)
		out := g.Label("v")
		if err := g.Add(filtergraph.Node{
			Name:   fmt.Sprintf("sticker#%d", p.s.Idx),
			Kind:   filtergraph.KindOverlay,
			Inputs: []string{cur, scaled},
			Filters: []filtergraph.Filter{filtergraph.F("overlay",
				filtergraph.Str("x", x),
				filtergraph.Str("y", y),
				filtergraph.Str("enable", between(p.start, p.end)),
			)},
			Outputs: []string{out},
		}); err != nil {
			return Result{}, err
		}
		cur = out
	}

	var draws []filtergraph.Filter
	for _, p := range live {
		if p.resolved {
			continue
		}
		draws = append(draws, b.drawtext(p))
	}
	if len(draws) > 0 {
		out := g.Label("v")
		if err := g.Add(filtergraph.Node{
			Name:    "sticker text",
			Kind:    filtergraph.KindDrawText,
			Inputs:  []string{cur},
			Filters: draws,
			Outputs: []string{out},
		}); err != nil {
			return Result{}, err
		}
		cur = out
	}
	res.Video = cur

	for _, p := range live {
		outcome := types.StickerText
		if p.resolved {
			outcome = types.StickerOverlay
		}
		res.Stickers = append(res.Stickers, types.StickerReport{Index: p.s.Idx, Outcome: outcome, Start: p.start, End: p.end})
	}
	return res, nil
}

// resolve looks up every sticker image concurrently. Results are stored per
// sticker so plan order is kept regardless of completion order.
func (b *Builder) resolve(ctx context.Context, scratch assets.Scratch, live []*placed) error {
	if b.res == nil {
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.cfg.Concurrency)
	for _, p := range live {
		if p.s.Content.Kind == plan.ContentText {
			continue
		}
		eg.Go(func() error {
			a, err := b.res.Sticker(ctx, scratch, p.s.Content)
			switch {
			case err == nil:
				p.asset, p.resolved = a, true
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				b.log.Info("sticker rendered as text", "index", p.s.Idx, "kind", p.s.Content.Kind.String(), "reason", err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (b *Builder) drawtext(p *placed) filtergraph.Filter {
	x, y := textXY(p.s)
	args := []filtergraph.Arg{
		filtergraph.Str("text", label(p.s.Content)),
		filtergraph.Str("expansion", "none"),
		filtergraph.Int("fontsize", p.s.FontSize),
		filtergraph.Str("x", x),
		filtergraph.Str("y", y),
		filtergraph.Str("enable", between(p.start, p.end)),
		filtergraph.Int("box", 1),
		filtergraph.Int("boxborderw", margin),
		filtergraph.Str("boxcolor", "black@0.3"),
	}
	if b.cfg.FontFile != "" {
		args = append([]filtergraph.Arg{filtergraph.Str("fontfile", b.cfg.FontFile)}, args...)
	}
	return filtergraph.F("drawtext", args...)
}

// label is the literal drawn for a sticker without an image. Image
// references show their bare name.
func label(c plan.StickerContent) string {
	if c.Kind != plan.ContentImage {
		return c.Value
	}
	v := c.Value
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	base := path.Base(strings.ReplaceAll(v, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func between(start, end float64) string {
	return fmt.Sprintf("between(t,%.3f,%.3f)", start, end)
}

func overlayXY(s plan.Sticker) (string, string) {
	if s.HasExplicitXY() {
		return coord(*s.X), coord(*s.Y)
	}
	return anchor(s.Position, "main_w-overlay_w", "main_h-overlay_h")
}

func textXY(s plan.Sticker) (string, string) {
	if s.HasExplicitXY() {
		return coord(*s.X), coord(*s.Y)
	}
	return anchor(s.Position, "w-tw", "h-th")
}

// anchor maps a named position to x/y expressions given the free space
// expressions along each axis.
func anchor(p plan.Position, freeX, freeY string) (string, string) {
	m := strconv.Itoa(margin)
	switch p {
	case plan.TopLeft:
		return m, m
	case plan.TopRight:
		return freeX + "-" + m, m
	case plan.BottomLeft:
		return m, freeY + "-" + m
	case plan.Center:
		return "(" + freeX + ")/2", "(" + freeY + ")/2"
	default:
		return freeX + "-" + m, freeY + "-" + m
	}
}

func coord(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
