package overlay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/forPelevin/promptcut/internal/assets"
	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/types"
)

type fakeResolver struct {
	mu     sync.Mutex
	images map[string]string
	calls  []string
	err    error
}

func (f *fakeResolver) Sticker(ctx context.Context, _ assets.Scratch, c plan.StickerContent) (assets.Asset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c.Value)
	f.mu.Unlock()
	if f.err != nil {
		return assets.Asset{}, f.err
	}
	if p, ok := f.images[c.Value]; ok {
		return assets.Asset{Path: p, Key: c.Value, Scope: assets.CacheScoped}, nil
	}
	return assets.Asset{}, assets.ErrUnavailable
}

func cutMap(t *testing.T) *timeline.Map {
	t.Helper()
	m, err := timeline.Resequence(30, plan.Plan{Ops: []plan.Operation{plan.Cut{Idx: 0, Start: 5, End: 10}}})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBuild_NoStickersIsIdentity(t *testing.T) {
	g := filtergraph.New("0:v")
	res, err := New(&fakeResolver{}, Config{}, nil).Build(context.Background(), Input{Graph: g, Video: "0:v", FirstInput: 1, Map: timeline.Identity(10)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Video != "0:v" || !g.Empty() || len(res.Images) != 0 {
		t.Fatalf("expected identity, got %+v graph=%q", res, g.String())
	}
}

func TestBuild_EmojiRemappedThroughCut(t *testing.T) {
	g := filtergraph.New("0:v")
	r := &fakeResolver{images: map[string]string{"🔥": "/cache/emoji/1f525.png"}}
	res, err := New(r, Config{}, nil).Build(context.Background(), Input{
		Graph:      g,
		Video:      "0:v",
		FirstInput: 1,
		Map:        cutMap(t),
		Stickers: []plan.Sticker{{
			Idx: 1, Start: 20, End: 22,
			Content:  plan.StickerContent{Kind: plan.ContentEmoji, Value: "🔥"},
			Position: plan.BottomRight, FontSize: 72,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "[1:v]scale=w=-1:h=72[sk1];" +
		"[0:v][sk1]overlay=x=main_w-overlay_w-10:y=main_h-overlay_h-10:enable='between(t,15.000,17.000)'[v1]"
	if got := g.String(); got != want {
		t.Fatalf("graph mismatch\n got: %s\nwant: %s", got, want)
	}
	if res.Video != "v1" || len(res.Images) != 1 || res.Images[0].Path != "/cache/emoji/1f525.png" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Stickers) != 1 || res.Stickers[0].Outcome != types.StickerOverlay || res.Stickers[0].Start != 15 {
		t.Fatalf("unexpected report: %+v", res.Stickers)
	}
	if err := g.Validate(res.Video); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuild_MixedOverlayTextAndDropped(t *testing.T) {
	g := filtergraph.New("0:v")
	x, y := 40.0, 60.0
	r := &fakeResolver{images: map[string]string{"cat": "/stickers/cat.png", "dog": "/stickers/dog.png"}}
	b := New(r, Config{FontFile: "/fonts/Noto.ttf"}, nil)

	res, err := b.Build(context.Background(), Input{
		Graph:      g,
		Video:      "0:v",
		FirstInput: 2,
		Map:        cutMap(t),
		Stickers: []plan.Sticker{
			{Idx: 0, Start: 1, End: 2, Content: plan.StickerContent{Kind: plan.ContentEmoji, Value: "🦄"}, Position: plan.TopLeft, FontSize: 48},
			{Idx: 1, Start: 0, End: 3, Content: plan.StickerContent{Kind: plan.ContentImage, Value: "cat"}, Position: plan.Center, FontSize: 72},
			{Idx: 2, Start: 6, End: 9, Content: plan.StickerContent{Kind: plan.ContentImage, Value: "dog"}, Position: plan.TopRight, FontSize: 72},
			{Idx: 3, Start: 12, End: 14, Content: plan.StickerContent{Kind: plan.ContentImage, Value: "dog"}, X: &x, Y: &y, FontSize: 72},
			{Idx: 4, Start: 2, End: 4, Content: plan.StickerContent{Kind: plan.ContentText, Value: "it's: on"}, Position: plan.BottomLeft, FontSize: 30},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := g.String()
	for _, frag := range []string{
		"[2:v]scale=w=-1:h=72[sk1]",
		"[0:v][sk1]overlay=x=(main_w-overlay_w)/2:y=(main_h-overlay_h)/2:enable='between(t,0.000,3.000)'[v1]",
		"[3:v]scale=w=-1:h=72[sk2]",
		"[v1][sk2]overlay=x=40:y=60:enable='between(t,7.000,9.000)'[v2]",
		"[v2]drawtext=fontfile=/fonts/Noto.ttf:text=🦄:expansion=none:fontsize=48:x=10:y=10:enable='between(t,1.000,2.000)':box=1:boxborderw=10:boxcolor=black@0.3," +
			`drawtext=fontfile=/fonts/Noto.ttf:text=it\\\'s\\: on:expansion=none:fontsize=30:x=10:y=h-th-10:enable='between(t,2.000,4.000)':box=1:boxborderw=10:boxcolor=black@0.3[v3]`,
	} {
		if !strings.Contains(got, frag) {
			t.Fatalf("graph missing %q\n got: %s", frag, got)
		}
	}
	if res.Video != "v3" || len(res.Images) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}

	outcomes := map[int]types.StickerOutcome{}
	for _, s := range res.Stickers {
		outcomes[s.Index] = s.Outcome
	}
	want := map[int]types.StickerOutcome{0: types.StickerText, 1: types.StickerOverlay, 2: types.StickerDropped, 3: types.StickerOverlay, 4: types.StickerText}
	for i, o := range want {
		if outcomes[i] != o {
			t.Fatalf("sticker %d outcome %q, want %q", i, outcomes[i], o)
		}
	}
	for _, c := range r.calls {
		if c == "it's: on" {
			t.Fatalf("text stickers must not be resolved")
		}
	}
	if err := g.Validate(res.Video); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestBuild_ResolverFailureDegradesToText(t *testing.T) {
	g := filtergraph.New("0:v")
	r := &fakeResolver{err: errors.New("network down")}
	res, err := New(r, Config{}, nil).Build(context.Background(), Input{
		Graph: g, Video: "0:v", FirstInput: 1, Map: timeline.Identity(10),
		Stickers: []plan.Sticker{{Idx: 0, Start: 1, End: 2, Content: plan.StickerContent{Kind: plan.ContentImage, Value: "https://x.test/a/party.png?t=1"}, Position: plan.BottomRight, FontSize: 72}},
	})
	if err != nil {
		t.Fatalf("sticker failures must not fail the build: %v", err)
	}
	if len(res.Images) != 0 || !strings.Contains(g.String(), "text=party:") {
		t.Fatalf("expected text fallback with bare name, got %s", g.String())
	}
}

func TestBuild_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &fakeResolver{err: context.Canceled}
	_, err := New(r, Config{}, nil).Build(ctx, Input{
		Graph: filtergraph.New("0:v"), Video: "0:v", FirstInput: 1, Map: timeline.Identity(10),
		Stickers: []plan.Sticker{{Idx: 0, Start: 1, End: 2, Content: plan.StickerContent{Kind: plan.ContentEmoji, Value: "🔥"}, FontSize: 72}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
