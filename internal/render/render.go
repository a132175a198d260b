// Package render linearizes a resequenced timeline and a composition graph
// into ordered media-engine invocations. It never touches the filesystem.
package render

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/types"
)

const (
	StageResequence = "resequence"
	StageCompose    = "compose"
	StageEncode     = "encode"
)

// intermediateName is the resequenced file written inside the workdir when
// a compose stage follows.
const intermediateName = "resequenced.mp4"

// Composition is the overlay and audio graph to apply on top of the
// (possibly resequenced) base media, which is always engine input 0.
type Composition struct {
	Graph *filtergraph.Graph
	// Video and Audio are the terminal labels. Audio is empty when the
	// output carries no audio.
	Video  string
	Audio  string
	Images []string
	Tracks []string
}

// Identity reports whether the composition leaves the base untouched.
func (c Composition) Identity() bool {
	return (c.Graph == nil || c.Graph.Empty()) && len(c.Images) == 0 && len(c.Tracks) == 0
}

type Job struct {
	Input   string
	Output  string
	Workdir string
	Info    types.MediaInfo
	Map     *timeline.Map
	Compose Composition
}

// Linearize returns the invocations for j in execution order: resequence
// first (when the map is not the identity), then compose (when there is
// anything to composite), or a single encode when there is nothing to do.
func Linearize(j Job) ([]types.Invocation, error) {
	if j.Input == "" || j.Output == "" {
		return nil, errors.New("render: input and output are required")
	}
	if j.Map == nil {
		return nil, errors.New("render: timeline map is required")
	}
	retime := !j.Map.IsIdentity()
	compose := !j.Compose.Identity()

	switch {
	case !retime && !compose:
		return []types.Invocation{Encode(j.Input, j.Output, j.Workdir, j.Info.HasAudio)}, nil
	case retime && !compose:
		inv, err := Resequence(j.Map, j.Info.HasAudio, j.Input, j.Output, j.Workdir)
		if err != nil {
			return nil, err
		}
		return []types.Invocation{inv}, nil
	case !retime && compose:
		inv, err := Compose(j.Compose, j.Input, j.Output, j.Workdir)
		if err != nil {
			return nil, err
		}
		return []types.Invocation{inv}, nil
	}

	mid := filepath.Join(j.Workdir, intermediateName)
	first, err := Resequence(j.Map, j.Info.HasAudio, j.Input, mid, j.Workdir)
	if err != nil {
		return nil, err
	}
	second, err := Compose(j.Compose, mid, j.Output, j.Workdir)
	if err != nil {
		return nil, err
	}
	return []types.Invocation{first, second}, nil
}

// Encode re-encodes input with the fixed output parameters.
func Encode(input, output, dir string, hasAudio bool) types.Invocation {
	args := preamble()
	args = append(args, "-i", input, "-map", "0:v:0")
	if hasAudio {
		args = append(args, "-map", "0:a:0")
	}
	args = append(args, encodeArgs(hasAudio)...)
	args = append(args, output)
	return types.Invocation{Stage: StageEncode, Args: args, Output: output, Dir: dir}
}

// Resequence cuts and retimes input according to m.
func Resequence(m *timeline.Map, hasAudio bool, input, output, dir string) (types.Invocation, error) {
	g, video, audio, err := ResequenceGraph(m, hasAudio)
	if err != nil {
		return types.Invocation{}, err
	}
	args := preamble()
	args = append(args, "-i", input, "-filter_complex", g.String())
	args = append(args, "-map", mapLabel(video))
	if audio != "" {
		args = append(args, "-map", mapLabel(audio))
	}
	args = append(args, encodeArgs(audio != "")...)
	args = append(args, output)
	return types.Invocation{Stage: StageResequence, Args: args, Output: output, Dir: dir}, nil
}

// Compose applies c on top of base, which becomes engine input 0.
func Compose(c Composition, base, output, dir string) (types.Invocation, error) {
	if c.Graph == nil || c.Video == "" {
		return types.Invocation{}, errors.New("render: composition needs a graph and a video label")
	}
	if err := c.Graph.Validate(c.Video, c.Audio); err != nil {
		return types.Invocation{}, fmt.Errorf("render: %w", err)
	}
	args := preamble()
	args = append(args, "-i", base)
	for _, img := range c.Images {
		args = append(args, "-i", img)
	}
	for _, tr := range c.Tracks {
		args = append(args, "-i", tr)
	}
	if !c.Graph.Empty() {
		args = append(args, "-filter_complex", c.Graph.String())
	}
	args = append(args, "-map", mapLabel(c.Video))
	if c.Audio != "" {
		args = append(args, "-map", mapLabel(c.Audio))
	}
	args = append(args, encodeArgs(c.Audio != "")...)
	args = append(args, output)
	return types.Invocation{Stage: StageCompose, Args: args, Output: output, Dir: dir}, nil
}

// ResequenceGraph builds the trim/retime/concat graph for m and returns it
// with its terminal video and audio labels.
func ResequenceGraph(m *timeline.Map, hasAudio bool) (*filtergraph.Graph, string, string, error) {
	segs := m.Segments()
	if len(segs) == 0 {
		return nil, "", "", errors.New("render: every second of the source is cut")
	}
	g := filtergraph.New("0:v", "0:a")
	n := len(segs)

	vin, err := fanOut(g, "0:v", "split", "sv", n)
	if err != nil {
		return nil, "", "", err
	}
	var ain []string
	if hasAudio {
		if ain, err = fanOut(g, "0:a", "asplit", "sa", n); err != nil {
			return nil, "", "", err
		}
	}

	var concatIn []string
	var lastV, lastA string
	for i, s := range segs {
		lastV = g.Label("rv")
		if err := g.Add(filtergraph.Node{
			Name:   fmt.Sprintf("segment %d video", i),
			Kind:   filtergraph.KindTrim,
			Inputs: []string{vin[i]},
			Filters: []filtergraph.Filter{
				filtergraph.F("trim", filtergraph.Num("start", s.Start), filtergraph.Num("end", s.End)),
				filtergraph.F("setpts", filtergraph.Pos(setpts(s.Rate))),
			},
			Outputs: []string{lastV},
		}); err != nil {
			return nil, "", "", err
		}
		concatIn = append(concatIn, lastV)
		if !hasAudio {
			continue
		}

		lastA = g.Label("ra")
		fs := []filtergraph.Filter{
			filtergraph.F("atrim", filtergraph.Num("start", s.Start), filtergraph.Num("end", s.End)),
			filtergraph.F("asetpts", filtergraph.Pos("PTS-STARTPTS")),
		}
		for _, f := range Atempo(s.Rate) {
			fs = append(fs, filtergraph.F("atempo", filtergraph.Pos(strconv.FormatFloat(f, 'f', -1, 64))))
		}
		if err := g.Add(filtergraph.Node{
			Name:    fmt.Sprintf("segment %d audio", i),
			Kind:    filtergraph.KindTrim,
			Inputs:  []string{ain[i]},
			Filters: fs,
			Outputs: []string{lastA},
		}); err != nil {
			return nil, "", "", err
		}
		concatIn = append(concatIn, lastA)
	}

	if n == 1 {
		return g, lastV, lastA, g.Validate(lastV, lastA)
	}

	video := g.Label("vout")
	outs := []string{video}
	a := 0
	audio := ""
	if hasAudio {
		audio = g.Label("aout")
		outs = append(outs, audio)
		a = 1
	}
	if err := g.Add(filtergraph.Node{
		Name:    "concat",
		Kind:    filtergraph.KindConcat,
		Inputs:  concatIn,
		Filters: []filtergraph.Filter{filtergraph.F("concat", filtergraph.Int("n", n), filtergraph.Int("v", 1), filtergraph.Int("a", a))},
		Outputs: outs,
	}); err != nil {
		return nil, "", "", err
	}
	return g, video, audio, g.Validate(video, audio)
}

// fanOut splits src into n link labels, or returns src itself when n is 1.
func fanOut(g *filtergraph.Graph, src, filter, prefix string, n int) ([]string, error) {
	if n == 1 {
		return []string{src}, nil
	}
	outs := make([]string, n)
	for i := range outs {
		outs[i] = g.Label(prefix)
	}
	err := g.Add(filtergraph.Node{
		Name:    filter + " " + src,
		Kind:    filtergraph.KindSplit,
		Inputs:  []string{src},
		Filters: []filtergraph.Filter{filtergraph.F(filter, filtergraph.Pos(strconv.Itoa(n)))},
		Outputs: outs,
	})
	return outs, err
}

func setpts(rate float64) string {
	if rate == 1 {
		return "PTS-STARTPTS"
	}
	// Full precision: the timeline map and atempo use the exact rate.
	return "(PTS-STARTPTS)/" + strconv.FormatFloat(rate, 'f', -1, 64)
}

// Atempo factors rate into atempo steps, each within [0.5, 2.0].
func Atempo(rate float64) []float64 {
	if rate <= 0 || rate == 1 {
		return nil
	}
	var out []float64
	for rate > 2 {
		out = append(out, 2)
		rate /= 2
	}
	for rate < 0.5 {
		out = append(out, 0.5)
		rate /= 0.5
	}
	if rate != 1 {
		out = append(out, rate)
	}
	return out
}

func mapLabel(l string) string {
	if isStreamSpec(l) {
		return l
	}
	return "[" + l + "]"
}

// isStreamSpec reports whether l addresses an input stream ("0:v") rather
// than a link label.
func isStreamSpec(l string) bool {
	return l != "" && l[0] >= '0' && l[0] <= '9' && strings.Contains(l, ":")
}

func preamble() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

// encodeArgs are the fixed, reproducible output parameters.
func encodeArgs(hasAudio bool) []string {
	args := []string{
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p",
		"-flags:v", "+bitexact",
	}
	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-ar", "48000", "-flags:a", "+bitexact")
	} else {
		args = append(args, "-an")
	}
	return append(args, "-map_metadata", "-1", "-fflags", "+bitexact", "-movflags", "+faststart")
}
