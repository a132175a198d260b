package render

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/types"
)

func resequence(t *testing.T, ops ...plan.Operation) *timeline.Map {
	t.Helper()
	m, err := timeline.Resequence(30, plan.Plan{Ops: ops})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func argAfter(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestResequenceGraph_Cut(t *testing.T) {
	g, v, a, err := ResequenceGraph(resequence(t, plan.Cut{Idx: 0, Start: 5, End: 10}), true)
	if err != nil {
		t.Fatal(err)
	}
	want := "[0:v]split=2[sv1][sv2];[0:a]asplit=2[sa1][sa2];" +
		"[sv1]trim=start=0:end=5.000,setpts=PTS-STARTPTS[rv1];" +
		"[sa1]atrim=start=0:end=5.000,asetpts=PTS-STARTPTS[ra1];" +
		"[sv2]trim=start=10.000:end=30.000,setpts=PTS-STARTPTS[rv2];" +
		"[sa2]atrim=start=10.000:end=30.000,asetpts=PTS-STARTPTS[ra2];" +
		"[rv1][ra1][rv2][ra2]concat=n=2:v=1:a=1[vout1][aout1]"
	if got := g.String(); got != want {
		t.Fatalf("graph mismatch\n got: %s\nwant: %s", got, want)
	}
	if v != "vout1" || a != "aout1" {
		t.Fatalf("unexpected terminals %s %s", v, a)
	}
}

func TestResequenceGraph_SpeedWithoutAudio(t *testing.T) {
	g, v, a, err := ResequenceGraph(resequence(t, plan.SpeedChange{Idx: 0, Start: 0, End: 10, Rate: 2}), false)
	if err != nil {
		t.Fatal(err)
	}
	want := "[0:v]split=2[sv1][sv2];" +
		"[sv1]trim=start=0:end=10.000,setpts=(PTS-STARTPTS)/2[rv1];" +
		"[sv2]trim=start=10.000:end=30.000,setpts=PTS-STARTPTS[rv2];" +
		"[rv1][rv2]concat=n=2:v=1:a=0[vout1]"
	if got := g.String(); got != want {
		t.Fatalf("graph mismatch\n got: %s\nwant: %s", got, want)
	}
	if v != "vout1" || a != "" {
		t.Fatalf("unexpected terminals %q %q", v, a)
	}
}

func TestResequenceGraph_SingleSegmentSkipsConcat(t *testing.T) {
	g, v, a, err := ResequenceGraph(resequence(t, plan.SpeedChange{Idx: 0, Start: 0, End: 30, Rate: 5}), true)
	if err != nil {
		t.Fatal(err)
	}
	want := "[0:v]trim=start=0:end=30.000,setpts=(PTS-STARTPTS)/5[rv1];" +
		"[0:a]atrim=start=0:end=30.000,asetpts=PTS-STARTPTS,atempo=2,atempo=2,atempo=1.25[ra1]"
	if got := g.String(); got != want {
		t.Fatalf("graph mismatch\n got: %s\nwant: %s", got, want)
	}
	if v != "rv1" || a != "ra1" {
		t.Fatalf("unexpected terminals %s %s", v, a)
	}
}

func TestResequenceGraph_RateKeepsPrecision(t *testing.T) {
	tests := []struct {
		rate   float64
		setpts string
		atempo string
	}{
		{0.0004, "setpts=(PTS-STARTPTS)/0.0004", "atempo=0.5"},
		{1.0004, "setpts=(PTS-STARTPTS)/1.0004", "atempo=1.0004"},
		{1.5, "setpts=(PTS-STARTPTS)/1.5", "atempo=1.5"},
	}
	for _, tt := range tests {
		g, _, _, err := ResequenceGraph(resequence(t, plan.SpeedChange{Idx: 0, Start: 0, End: 10, Rate: tt.rate}), true)
		if err != nil {
			t.Fatal(err)
		}
		got := g.String()
		if !strings.Contains(got, tt.setpts+"[") || !strings.Contains(got, tt.atempo) {
			t.Fatalf("rate %v: want %s and %s in %s", tt.rate, tt.setpts, tt.atempo, got)
		}
	}
}

func TestResequenceGraph_EverythingCut(t *testing.T) {
	if _, _, _, err := ResequenceGraph(resequence(t, plan.Cut{Idx: 0, Start: 0, End: 30}), true); err == nil {
		t.Fatalf("expected error when nothing is kept")
	}
}

func TestAtempo(t *testing.T) {
	tests := []struct {
		rate float64
		want []float64
	}{
		{1, nil},
		{1.5, []float64{1.5}},
		{4, []float64{2, 2}},
		{0.25, []float64{0.5, 0.5}},
		{0.2, []float64{0.5, 0.5, 0.8}},
	}
	for _, tt := range tests {
		got := Atempo(tt.rate)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("Atempo(%v) = %v, want %v", tt.rate, got, tt.want)
		}
		prod := 1.0
		for _, f := range got {
			if f < 0.5 || f > 2 {
				t.Fatalf("Atempo(%v) step %v out of range", tt.rate, f)
			}
			prod *= f
		}
		if d := prod - tt.rate; d > 1e-9 || d < -1e-9 {
			t.Fatalf("Atempo(%v) product %v", tt.rate, prod)
		}
	}
}

func TestLinearize_Stages(t *testing.T) {
	dir := t.TempDir()
	info := types.MediaInfo{Duration: 30, HasAudio: true}

	overlayOnly := func() Composition {
		g := filtergraph.New("0:v", "0:a")
		_ = g.Add(filtergraph.Node{
			Name: "s", Inputs: []string{"0:v"}, Outputs: []string{"v1"},
			Filters: []filtergraph.Filter{filtergraph.F("drawtext", filtergraph.Str("text", "hi"))},
		})
		return Composition{Graph: g, Video: "v1", Audio: "0:a"}
	}
	identity := Composition{Graph: filtergraph.New("0:v", "0:a"), Video: "0:v", Audio: "0:a"}

	tests := []struct {
		name   string
		m      *timeline.Map
		c      Composition
		stages []string
	}{
		{"nothing to do", timeline.Identity(30), identity, []string{StageEncode}},
		{"retime only", resequence(t, plan.Cut{Idx: 0, Start: 5, End: 10}), identity, []string{StageResequence}},
		{"compose only", timeline.Identity(30), overlayOnly(), []string{StageCompose}},
		{"both", resequence(t, plan.Cut{Idx: 0, Start: 5, End: 10}), overlayOnly(), []string{StageResequence, StageCompose}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invs, err := Linearize(Job{Input: "in.mp4", Output: "out.mp4", Workdir: dir, Info: info, Map: tt.m, Compose: tt.c})
			if err != nil {
				t.Fatal(err)
			}
			var stages []string
			for _, inv := range invs {
				stages = append(stages, inv.Stage)
				if inv.Dir != dir {
					t.Fatalf("invocation must run in the workspace, got %q", inv.Dir)
				}
				if inv.Args[len(inv.Args)-1] != inv.Output {
					t.Fatalf("output must be the last argument: %v", inv.Args)
				}
			}
			if !reflect.DeepEqual(stages, tt.stages) {
				t.Fatalf("stages %v, want %v", stages, tt.stages)
			}
			if last := invs[len(invs)-1]; last.Output != "out.mp4" {
				t.Fatalf("last stage must write the final output, got %s", last.Output)
			}
			if len(invs) == 2 {
				mid := filepath.Join(dir, intermediateName)
				if invs[0].Output != mid || argAfter(invs[1].Args, "-i") != mid {
					t.Fatalf("compose must read the resequenced intermediate: %v", invs[1].Args)
				}
			}
		})
	}
}

func TestCompose_InputsAndMaps(t *testing.T) {
	g := filtergraph.New("0:v", "0:a", "1:v", "2:a")
	_ = g.Add(filtergraph.Node{Name: "o", Inputs: []string{"0:v", "1:v"}, Filters: []filtergraph.Filter{filtergraph.F("overlay")}, Outputs: []string{"v1"}})
	_ = g.Add(filtergraph.Node{Name: "m", Inputs: []string{"0:a", "2:a"}, Filters: []filtergraph.Filter{filtergraph.F("amix", filtergraph.Int("inputs", 2))}, Outputs: []string{"a1"}})

	inv, err := Compose(Composition{Graph: g, Video: "v1", Audio: "a1", Images: []string{"fire.png"}, Tracks: []string{"song.mp3"}}, "base.mp4", "out.mp4", "/w")
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(inv.Args, " ")
	for _, frag := range []string{
		"-hide_banner -nostdin -y -loglevel error",
		"-i base.mp4 -i fire.png -i song.mp3 -filter_complex",
		"-map [v1] -map [a1]",
		"-c:v libx264 -preset veryfast -crf 18 -pix_fmt yuv420p",
		"-c:a aac -b:a 192k -ar 48000",
		"-map_metadata -1",
		"-movflags +faststart out.mp4",
	} {
		if !strings.Contains(joined, frag) {
			t.Fatalf("args missing %q: %s", frag, joined)
		}
	}

	bad := filtergraph.New("0:v")
	_ = bad.Add(filtergraph.Node{Name: "x", Inputs: []string{"0:v"}, Filters: []filtergraph.Filter{filtergraph.F("split", filtergraph.Pos("2"))}, Outputs: []string{"p", "q"}})
	if _, err := Compose(Composition{Graph: bad, Video: "p"}, "b", "o", "/w"); err == nil {
		t.Fatalf("expected validation error for dangling output")
	}
}

func TestEncode_NoAudio(t *testing.T) {
	inv := Encode("in.mp4", "out.mp4", "/w", false)
	joined := strings.Join(inv.Args, " ")
	if strings.Contains(joined, "0:a") || !strings.Contains(joined, "-an") {
		t.Fatalf("silent source must not map audio: %s", joined)
	}
	if inv.Stage != StageEncode {
		t.Fatalf("unexpected stage %s", inv.Stage)
	}
}
