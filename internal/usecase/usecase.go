package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/promptcut/internal/domain/audiomix"
	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/overlay"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/ports"
	"github.com/forPelevin/promptcut/internal/render"
	"github.com/forPelevin/promptcut/internal/types"
	"github.com/forPelevin/promptcut/internal/workspace"
)

type Deps struct {
	Engine ports.MediaEngine
	// Planner is only needed when Input.Instruction is used.
	Planner  ports.PlanSource
	Stickers overlay.Resolver
	Music    audiomix.Resolver
	Layout   workspace.Layout
	Log      *slog.Logger
}

type Options struct {
	FontFile    string
	Concurrency int
	Duck        float64
}

type Usecase struct {
	d       Deps
	overlay *overlay.Builder
	mixer   *audiomix.Mixer
	log     *slog.Logger
}

func New(d Deps, opt Options) Usecase {
	log := logging.OrDiscard(d.Log)
	return Usecase{
		d:       d,
		overlay: overlay.New(d.Stickers, overlay.Config{FontFile: opt.FontFile, Concurrency: opt.Concurrency}, logging.WithComponent(log, "overlay")),
		mixer:   audiomix.New(d.Music, d.Engine, audiomix.Config{Duck: opt.Duck}, logging.WithComponent(log, "audiomix")),
		log:     logging.WithComponent(log, "usecase"),
	}
}

type Input struct {
	Input  string
	Output string
	// PlanText is a raw plan. When empty, Instruction is sent to the
	// planner instead.
	PlanText    string
	Instruction string
	DryRun      bool
}

type Result struct {
	Report types.Report
}

// InvalidPlan reports whether err was caused by the plan itself rather
// than by assets or the media engine.
func InvalidPlan(err error) bool {
	var (
		pe *plan.ParseError
		se *plan.SchemaError
		oe *plan.OverlapError
		re *timeline.RangeError
	)
	return errors.As(err, &pe) || errors.As(err, &se) || errors.As(err, &oe) || errors.As(err, &re)
}

// Run compiles the plan against the input and executes it. Plan errors are
// returned before anything is written to disk. The request workspace is
// removed on every path; the output never lives inside it.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	src, out, err := paths(in)
	if err != nil {
		return Result{}, err
	}

	info, err := u.d.Engine.Probe(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("probe input: %w", err)
	}

	text, err := u.planText(ctx, in, info.Duration)
	if err != nil {
		return Result{}, err
	}
	p, err := plan.Parse(text)
	if err != nil {
		return Result{}, err
	}
	m, err := timeline.Resequence(info.Duration, p)
	if err != nil {
		return Result{}, err
	}

	dir, err := u.d.Layout.New()
	if err != nil {
		return Result{}, err
	}
	log := logging.WithRequestID(u.log, dir.ID())
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			log.Warn("workspace cleanup failed", "err", cerr)
		}
	}()
	if dir.Contains(out) {
		return Result{}, fmt.Errorf("output %s must not be inside the workspace", out)
	}

	started := time.Now()
	log.Info("edit started",
		"input", logging.SanitizePath(src),
		"ops", len(p.Ops),
		"source_sec", info.Duration,
		"output_sec", m.Duration(),
	)

	comp, stickers, music, err := u.compose(ctx, dir, info, m, p)
	if err != nil {
		return Result{}, err
	}

	invs, err := render.Linearize(render.Job{
		Input:   src,
		Output:  out,
		Workdir: dir.Path(),
		Info:    info,
		Map:     m,
		Compose: comp,
	})
	if err != nil {
		return Result{}, err
	}

	rep := types.Report{
		RequestID:      dir.ID(),
		Input:          src,
		Output:         out,
		SourceDuration: info.Duration,
		OutputDuration: m.Duration(),
		Operations:     counts(p),
		Stickers:       stickers,
		Music:          music,
		DryRun:         in.DryRun,
	}
	for _, inv := range invs {
		rep.Stages = append(rep.Stages, inv.Stage)
	}
	if in.DryRun {
		rep.Invocations = invs
		log.Info("dry run", "stages", rep.Stages)
		return Result{Report: rep}, nil
	}

	for _, inv := range invs {
		stageStarted := time.Now()
		if err := u.d.Engine.Run(ctx, inv); err != nil {
			return Result{}, err
		}
		log.Info("stage done", "stage", inv.Stage, "elapsed", time.Since(stageStarted).Round(time.Millisecond))
	}
	log.Info("edit finished", "stages", rep.Stages, "elapsed", time.Since(started).Round(time.Millisecond))
	return Result{Report: rep}, nil
}

func paths(in Input) (string, string, error) {
	if strings.TrimSpace(in.Input) == "" || strings.TrimSpace(in.Output) == "" {
		return "", "", errors.New("input and output paths are required")
	}
	src, err := filepath.Abs(in.Input)
	if err != nil {
		return "", "", fmt.Errorf("resolve input: %w", err)
	}
	out, err := filepath.Abs(in.Output)
	if err != nil {
		return "", "", fmt.Errorf("resolve output: %w", err)
	}
	if src == out {
		return "", "", errors.New("output must differ from input")
	}
	return src, out, nil
}

func (u Usecase) planText(ctx context.Context, in Input, duration float64) (string, error) {
	if strings.TrimSpace(in.PlanText) != "" {
		return in.PlanText, nil
	}
	if strings.TrimSpace(in.Instruction) == "" {
		return "", errors.New("either a plan or an instruction is required")
	}
	if u.d.Planner == nil {
		return "", errors.New("no planner configured for instructions")
	}
	text, err := u.d.Planner.Plan(ctx, in.Instruction, duration)
	if err != nil {
		return "", fmt.Errorf("plan instruction: %w", err)
	}
	return text, nil
}

// compose builds the overlay and music graph on top of the (resequenced)
// base, which is always engine input 0.
func (u Usecase) compose(
	ctx context.Context,
	dir *workspace.Dir,
	info types.MediaInfo,
	m *timeline.Map,
	p plan.Plan,
) (render.Composition, []types.StickerReport, []types.MusicReport, error) {
	g := filtergraph.New("0:v")
	audio := ""
	if info.HasAudio {
		audio = "0:a"
		g.AddSource(audio)
	}

	ov, err := u.overlay.Build(ctx, overlay.Input{
		Graph:      g,
		Video:      "0:v",
		FirstInput: 1,
		Map:        m,
		Stickers:   p.Stickers(),
		Scratch:    dir,
	})
	if err != nil {
		return render.Composition{}, nil, nil, err
	}

	mix, err := u.mixer.Build(ctx, audiomix.Input{
		Graph:      g,
		Audio:      audio,
		FirstInput: 1 + len(ov.Images),
		Map:        m,
		Music:      p.Music(),
		Scratch:    dir,
	})
	if err != nil {
		return render.Composition{}, nil, nil, err
	}

	comp := render.Composition{Graph: g, Video: ov.Video, Audio: mix.Audio}
	for _, a := range ov.Images {
		comp.Images = append(comp.Images, absPath(a.Path))
	}
	for _, a := range mix.Tracks {
		comp.Tracks = append(comp.Tracks, absPath(a.Path))
	}
	return comp, ov.Stickers, mix.Music, nil
}

// absPath keeps asset paths valid when the engine runs inside the workspace.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func counts(p plan.Plan) map[string]int {
	out := map[string]int{}
	for a, n := range p.Counts() {
		out[string(a)] = n
	}
	return out
}
