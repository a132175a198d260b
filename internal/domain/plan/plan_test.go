package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"raw array", `[{"action":"cut","start":1,"end":2}]`, `[{"action":"cut","start":1,"end":2}]`, false},
		{"fenced", "```json\n[{\"action\":\"cut\",\"start\":1,\"end\":2}]\n```", `[{"action":"cut","start":1,"end":2}]`, false},
		{"commentary", "Sure! Here is the plan: [] hope it helps", `[]`, false},
		{"bracket in prose first", "Edits [see below]: [{\"action\":\"cut\",\"start\":1,\"end\":2}]", `[{"action":"cut","start":1,"end":2}]`, false},
		{"bracket inside string", `[{"action":"sticker","start":0,"end":1,"content":{"text":"a]b"}}]`, `[{"action":"sticker","start":0,"end":1,"content":{"text":"a]b"}}]`, false},
		{"single object", `ok {"action":"cut","start":1,"end":2} done`, `[{"action":"cut","start":1,"end":2}]`, false},
		{"empty", "   ", "", true},
		{"no json", "I cannot help with that.", "", true},
		{"unbalanced", `[{"action":"cut"`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.in)
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected ParseError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Extract = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_AllActions(t *testing.T) {
	raw := `Here you go:
[
  {"action":"cut","start":5,"end":10},
  {"action":"speed","start":"0:20","end":"0:30","rate":2},
  {"action":"sticker","start":20,"duration":2,"content":{"emoji":"🔥"},"position":"Top_Left"},
  {"action":"music","start":0,"end":60,"catalog_id":"chill-01","loop":false}
]`
	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Ops) != 4 {
		t.Fatalf("expected 4 ops, got %d", len(p.Ops))
	}

	cut, ok := p.Ops[0].(Cut)
	if !ok || cut.Start != 5 || cut.End != 10 {
		t.Fatalf("unexpected cut: %#v", p.Ops[0])
	}
	speed, ok := p.Ops[1].(SpeedChange)
	if !ok || speed.Start != 20 || speed.End != 30 || speed.Rate != 2 {
		t.Fatalf("unexpected speed: %#v", p.Ops[1])
	}
	st, ok := p.Ops[2].(Sticker)
	if !ok {
		t.Fatalf("expected sticker, got %T", p.Ops[2])
	}
	if st.End != 22 || st.Position != TopLeft || st.FontSize != DefaultFontSize {
		t.Fatalf("unexpected sticker: %+v", st)
	}
	if st.Content.Kind != ContentEmoji || st.Content.Value != "🔥" {
		t.Fatalf("unexpected sticker content: %+v", st.Content)
	}
	mu, ok := p.Ops[3].(Music)
	if !ok {
		t.Fatalf("expected music, got %T", p.Ops[3])
	}
	if mu.Source.Kind != SourceCatalog || mu.Source.Value != "chill-01" {
		t.Fatalf("unexpected music source: %+v", mu.Source)
	}
	if mu.Loop || mu.Volume != DefaultVolume || mu.Fade != DefaultFade {
		t.Fatalf("unexpected music defaults: %+v", mu)
	}
	if mu.Index() != 3 {
		t.Fatalf("expected index 3, got %d", mu.Index())
	}
}

func TestParse_EmptyArrayIsNoOp(t *testing.T) {
	p, err := Parse("[]")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.Empty() {
		t.Fatalf("expected empty plan, got %d ops", len(p.Ops))
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantIndex int
		wantField string
	}{
		{"missing action", `[{"start":1,"end":2}]`, 0, "action"},
		{"unknown action", `[{"action":"blur","start":1,"end":2}]`, 0, "action"},
		{"missing end", `[{"action":"cut","start":1}]`, 0, "end"},
		{"end before start", `[{"action":"cut","start":3,"end":2}]`, 0, "end"},
		{"negative start", `[{"action":"cut","start":-1,"end":2}]`, 0, "start"},
		{"zero rate", `[{"action":"cut","start":0,"end":1},{"action":"speed","start":2,"end":4,"rate":0}]`, 1, "rate"},
		{"missing rate", `[{"action":"speed","start":2,"end":4}]`, 0, "rate"},
		{"sticker without content", `[{"action":"sticker","start":1,"end":2}]`, 0, "content"},
		{"bad position", `[{"action":"sticker","start":1,"end":2,"content":{"emoji":"🔥"},"position":"left"}]`, 0, "position"},
		{"music without source", `[{"action":"music","start":1,"end":2}]`, 0, "source"},
		{"volume out of range", `[{"action":"music","start":1,"end":2,"url":"https://x.test/a.mp3","volume":1.5}]`, 0, "volume"},
		{"string start", `[{"action":"cut","start":"soon","end":2}]`, 0, "start"},
		{"not an object", `[{"action":"cut","start":0,"end":1}, 42]`, 1, ""},
		{"nan start", `[{"action":"speed","start":"nan","end":5,"rate":2}]`, 0, "start"},
		{"inf end", `[{"action":"cut","start":1,"end":"inf"}]`, 0, "end"},
		{"negative inf clock", `[{"action":"cut","start":"1:-inf","end":5}]`, 0, "start"},
		{"inf rate", `[{"action":"speed","start":0,"end":5,"rate":"inf"}]`, 0, "rate"},
		{"nan x", `[{"action":"sticker","start":1,"end":2,"content":{"text":"hi"},"x":"NaN"}]`, 0, "x"},
		{"huge fontsize", `[{"action":"sticker","start":1,"end":2,"content":{"text":"hi"},"fontsize":1e300}]`, 0, "fontsize"},
		{"overflowing duration", `[{"action":"cut","start":1e308,"duration":1e308}]`, 0, "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if se.Index != tt.wantIndex || se.Field != tt.wantField {
				t.Fatalf("got index=%d field=%q, want index=%d field=%q (%v)", se.Index, se.Field, tt.wantIndex, tt.wantField, se)
			}
		})
	}
}

func TestParse_OverlapRejectedRegardlessOfOrder(t *testing.T) {
	orders := []string{
		`[{"action":"cut","start":5,"end":10},{"action":"speed","start":8,"end":12,"rate":2}]`,
		`[{"action":"speed","start":8,"end":12,"rate":2},{"action":"cut","start":5,"end":10}]`,
	}
	for _, in := range orders {
		_, err := Parse(in)
		var oe *OverlapError
		if !errors.As(err, &oe) {
			t.Fatalf("expected OverlapError for %s, got %v", in, err)
		}
		if oe.First.Index != 0 || oe.Second.Index != 1 {
			t.Fatalf("expected conflict between #0 and #1, got %v", oe)
		}
		if !strings.Contains(oe.Error(), "cut") || !strings.Contains(oe.Error(), "speed") {
			t.Fatalf("error should name both actions: %v", oe)
		}
	}
}

func TestCheckOverlaps(t *testing.T) {
	tests := []struct {
		name    string
		ops     []Operation
		wantErr bool
	}{
		{"disjoint", []Operation{Cut{Idx: 0, Start: 0, End: 1}, Cut{Idx: 1, Start: 2, End: 3}}, false},
		{"touching endpoints overlap", []Operation{Cut{Idx: 0, Start: 0, End: 2}, SpeedChange{Idx: 1, Start: 2, End: 3, Rate: 2}}, true},
		{"nested", []Operation{Cut{Idx: 0, Start: 0, End: 10}, Cut{Idx: 1, Start: 12, End: 13}, Cut{Idx: 2, Start: 3, End: 4}}, true},
		{"long first interval reaches later one", []Operation{Cut{Idx: 0, Start: 0, End: 10}, Cut{Idx: 1, Start: 1, End: 2}, Cut{Idx: 2, Start: 9, End: 11}}, true},
		{"stickers ignored", []Operation{Cut{Idx: 0, Start: 0, End: 10}, Sticker{Idx: 1, Start: 1, End: 2}, Music{Idx: 2, Start: 0, End: 30}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOverlaps(Plan{Ops: tt.ops})
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckOverlaps err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_StickerContentForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ContentKind
		val  string
	}{
		{"image object", `{"image":"./stickers/cat.png"}`, ContentImage, "./stickers/cat.png"},
		{"image wins over emoji", `{"image":"cat","emoji":"🐱"}`, ContentImage, "cat"},
		{"text object", `{"text":"wow"}`, ContentText, "wow"},
		{"bare emoji string", `"🔥"`, ContentEmoji, "🔥"},
		{"bare url string", `"https://example.test/a.webp"`, ContentImage, "https://example.test/a.webp"},
		{"bare text string", `"LOL"`, ContentText, "LOL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(`[{"action":"sticker","start":0,"end":1,"content":` + tt.in + `}]`)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			st := p.Ops[0].(Sticker)
			if st.Content.Kind != tt.kind || st.Content.Value != tt.val {
				t.Fatalf("got %+v, want kind=%v value=%q", st.Content, tt.kind, tt.val)
			}
		})
	}
}

func TestParse_StickerExplicitXY(t *testing.T) {
	p, err := Parse(`[{"action":"sticker","start":0,"end":1,"content":{"emoji":"🔥"},"x":12,"y":"40","fontsize":48.6}]`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	st := p.Ops[0].(Sticker)
	if !st.HasExplicitXY() || *st.X != 12 || *st.Y != 40 {
		t.Fatalf("unexpected coordinates: %+v", st)
	}
	if st.FontSize != 49 {
		t.Fatalf("expected rounded fontsize 49, got %d", st.FontSize)
	}
}

func TestParse_MusicSourceForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind SourceKind
		val  string
	}{
		{"query", `"query":"upbeat pop"`, SourceQuery, "upbeat pop"},
		{"file", `"file":"./music/track.mp3"`, SourceFile, "./music/track.mp3"},
		{"url", `"url":"https://example.test/a.mp3"`, SourceURL, "https://example.test/a.mp3"},
		{"nested source", `"source":{"catalog_id":"lofi"}`, SourceCatalog, "lofi"},
		{"source hint string ignored", `"source":"jamendo","query":"lofi beat"`, SourceQuery, "lofi beat"},
		{"catalog wins over query", `"query":"x","catalog_id":"y"`, SourceCatalog, "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(`[{"action":"music","start":0,"end":5,` + tt.in + `}]`)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			m := p.Ops[0].(Music)
			if m.Source.Kind != tt.kind || m.Source.Value != tt.val {
				t.Fatalf("got %+v, want kind=%v value=%q", m.Source, tt.kind, tt.val)
			}
		})
	}
}

func TestParseTimecode(t *testing.T) {
	tests := map[string]float64{
		"12.5":       12.5,
		"1:20":       80,
		"00:01:20.5": 80.5,
		"3s":         3,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := ParseTimecode(in)
			if err != nil {
				t.Fatalf("ParseTimecode(%q): %v", in, err)
			}
			if got != want {
				t.Fatalf("ParseTimecode(%q) = %v, want %v", in, got, want)
			}
		})
	}
	for _, bad := range []string{"", "a:b", "1:2:3:4", "-5"} {
		if _, err := ParseTimecode(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
