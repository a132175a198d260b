package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// Decode type-checks a JSON array of raw operations. Any malformed element
// fails the whole plan.
func Decode(text string) (Plan, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return Plan{}, &ParseError{Reason: "plan is not a JSON array: " + err.Error(), Excerpt: truncate(text, 120)}
	}
	ops := make([]Operation, 0, len(elems))
	for i, el := range elems {
		op, err := decodeElement(i, el)
		if err != nil {
			return Plan{}, err
		}
		ops = append(ops, op)
	}
	return Plan{Ops: ops}, nil
}

func decodeElement(i int, raw json.RawMessage) (Operation, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, &SchemaError{Index: i, Reason: "element is not a JSON object"}
	}
	f := newFields(i, m)

	action, err := f.requiredString("action")
	if err != nil {
		return nil, err
	}
	switch Action(strings.ToLower(strings.TrimSpace(action))) {
	case ActionCut:
		return decodeCut(f)
	case ActionSpeed:
		return decodeSpeed(f)
	case ActionSticker:
		return decodeSticker(f)
	case ActionMusic:
		return decodeMusic(f)
	default:
		return nil, f.errorf("action", "unknown action %q", action)
	}
}

func decodeCut(f fields) (Operation, error) {
	start, end, err := f.window()
	if err != nil {
		return nil, err
	}
	return Cut{Idx: f.idx, Start: start, End: end}, nil
}

func decodeSpeed(f fields) (Operation, error) {
	start, end, err := f.window()
	if err != nil {
		return nil, err
	}
	rate, ok, err := f.number("rate")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, f.errorf("rate", "required")
	}
	if rate <= 0 || math.IsInf(rate, 0) {
		return nil, f.errorf("rate", "must be > 0, got %g", rate)
	}
	return SpeedChange{Idx: f.idx, Start: start, End: end, Rate: rate}, nil
}

func decodeSticker(f fields) (Operation, error) {
	start, end, err := f.window()
	if err != nil {
		return nil, err
	}
	content, err := f.stickerContent()
	if err != nil {
		return nil, err
	}

	s := Sticker{
		Idx:      f.idx,
		Start:    start,
		End:      end,
		Content:  content,
		Position: DefaultPosition,
		FontSize: DefaultFontSize,
	}

	if pos, ok, err := f.str("position"); err != nil {
		return nil, err
	} else if ok && strings.TrimSpace(pos) != "" {
		p, valid := normalizePosition(pos)
		if !valid {
			return nil, f.errorf("position", "unknown position %q", pos)
		}
		s.Position = p
	}

	if x, ok, err := f.number("x"); err != nil {
		return nil, err
	} else if ok {
		s.X = &x
	}
	if y, ok, err := f.number("y"); err != nil {
		return nil, err
	} else if ok {
		s.Y = &y
	}

	if fs, ok, err := f.number("fontsize"); err != nil {
		return nil, err
	} else if ok {
		if fs <= 0 || fs > MaxFontSize {
			return nil, f.errorf("fontsize", "must be within (0, %d], got %g", MaxFontSize, fs)
		}
		s.FontSize = int(math.Round(fs))
	}
	return s, nil
}

func decodeMusic(f fields) (Operation, error) {
	start, end, err := f.window()
	if err != nil {
		return nil, err
	}
	src, err := f.musicSource()
	if err != nil {
		return nil, err
	}

	m := Music{
		Idx:    f.idx,
		Start:  start,
		End:    end,
		Source: src,
		Volume: DefaultVolume,
		Loop:   true,
		Fade:   DefaultFade,
	}

	if v, ok, err := f.number("volume"); err != nil {
		return nil, err
	} else if ok {
		if v < 0 || v > 1 {
			return nil, f.errorf("volume", "must be within [0, 1], got %g", v)
		}
		m.Volume = v
	}
	if l, ok, err := f.boolean("loop"); err != nil {
		return nil, err
	} else if ok {
		m.Loop = l
	}
	if fd, ok, err := f.number("fade"); err != nil {
		return nil, err
	} else if ok {
		if fd < 0 {
			return nil, f.errorf("fade", "must be >= 0, got %g", fd)
		}
		m.Fade = fd
	}
	return m, nil
}

type fields struct {
	idx int
	m   map[string]json.RawMessage
}

func newFields(idx int, m map[string]json.RawMessage) fields {
	norm := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return fields{idx: idx, m: norm}
}

func (f fields) errorf(field, format string, args ...any) error {
	return &SchemaError{Index: f.idx, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (f fields) present(key string) bool {
	v, ok := f.m[key]
	return ok && string(v) != "null"
}

func (f fields) str(key string) (string, bool, error) {
	if !f.present(key) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(f.m[key], &s); err != nil {
		return "", false, f.errorf(key, "expected a string")
	}
	return s, true, nil
}

func (f fields) requiredString(key string) (string, error) {
	s, ok, err := f.str(key)
	if err != nil {
		return "", err
	}
	if !ok || strings.TrimSpace(s) == "" {
		return "", f.errorf(key, "required")
	}
	return s, nil
}

// number accepts a JSON number or a numeric string such as "2.5" or "2x".
func (f fields) number(key string) (float64, bool, error) {
	if !f.present(key) {
		return 0, false, nil
	}
	raw := f.m[key]
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, f.errorf(key, "expected a number")
	}
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "x")
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, f.errorf(key, "expected a number, got %q", s)
	}
	return n, true, nil
}

func (f fields) boolean(key string) (bool, bool, error) {
	if !f.present(key) {
		return false, false, nil
	}
	var b bool
	if err := json.Unmarshal(f.m[key], &b); err == nil {
		return b, true, nil
	}
	var s string
	if err := json.Unmarshal(f.m[key], &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true, nil
		}
	}
	return false, false, f.errorf(key, "expected a boolean")
}

// seconds reads a time value given as seconds or as a clock string.
func (f fields) seconds(key string) (float64, bool, error) {
	if !f.present(key) {
		return 0, false, nil
	}
	raw := f.m[key]
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n < 0 || math.IsInf(n, 0) {
			return 0, false, f.errorf(key, "must be a non-negative number of seconds, got %g", n)
		}
		return n, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, f.errorf(key, "expected seconds")
	}
	sec, err := ParseTimecode(s)
	if err != nil {
		return 0, false, f.errorf(key, "%v", err)
	}
	return sec, true, nil
}

// window reads start plus end (or start plus duration) and enforces start < end.
func (f fields) window() (float64, float64, error) {
	start, ok, err := f.seconds("start")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, f.errorf("start", "required")
	}
	end, ok, err := f.seconds("end")
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		d, hasDur, err := f.seconds("duration")
		if err != nil {
			return 0, 0, err
		}
		if !hasDur {
			return 0, 0, f.errorf("end", "required (or duration)")
		}
		end = start + d
		if math.IsInf(end, 0) {
			return 0, 0, f.errorf("duration", "too large")
		}
	}
	if start >= end {
		return 0, 0, f.errorf("end", "must be greater than start (start=%g, end=%g)", start, end)
	}
	return start, end, nil
}

func (f fields) stickerContent() (StickerContent, error) {
	if f.present("content") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(f.m["content"], &obj); err == nil && obj != nil {
			return newFields(f.idx, obj).contentFromKeys("content")
		}
		s, _, err := f.str("content")
		if err != nil {
			return StickerContent{}, f.errorf("content", "expected an object or a string")
		}
		if strings.TrimSpace(s) == "" {
			return StickerContent{}, f.errorf("content", "required")
		}
		return classifyContent(s), nil
	}
	return f.contentFromKeys("content")
}

func (f fields) contentFromKeys(field string) (StickerContent, error) {
	for _, k := range []struct {
		key  string
		kind ContentKind
	}{
		{"image", ContentImage},
		{"emoji", ContentEmoji},
		{"text", ContentText},
	} {
		s, ok, err := f.str(k.key)
		if err != nil {
			return StickerContent{}, f.errorf(field, "%q must be a string", k.key)
		}
		if ok && strings.TrimSpace(s) != "" {
			return StickerContent{Kind: k.kind, Value: strings.TrimSpace(s)}, nil
		}
	}
	return StickerContent{}, f.errorf(field, "one of emoji, image or text is required")
}

func (f fields) musicSource() (MusicSource, error) {
	if f.present("source") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(f.m["source"], &obj); err == nil && obj != nil {
			if src, ok, err := newFields(f.idx, obj).sourceFromKeys(); err != nil || ok {
				return src, err
			}
		}
	}
	src, ok, err := f.sourceFromKeys()
	if err != nil {
		return MusicSource{}, err
	}
	if !ok {
		return MusicSource{}, f.errorf("source", "one of catalog_id, url, file or query is required")
	}
	return src, nil
}

func (f fields) sourceFromKeys() (MusicSource, bool, error) {
	for _, k := range []struct {
		key  string
		kind SourceKind
	}{
		{"catalog_id", SourceCatalog},
		{"catalog", SourceCatalog},
		{"url", SourceURL},
		{"file", SourceFile},
		{"query", SourceQuery},
	} {
		s, ok, err := f.str(k.key)
		if err != nil {
			return MusicSource{}, false, err
		}
		if ok && strings.TrimSpace(s) != "" {
			return MusicSource{Kind: k.kind, Value: strings.TrimSpace(s)}, true, nil
		}
	}
	return MusicSource{}, false, nil
}

// classifyContent decides what a bare string sticker refers to.
func classifyContent(s string) StickerContent {
	s = strings.TrimSpace(s)
	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return StickerContent{Kind: ContentImage, Value: s}
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".png", ".webp", ".jpg", ".jpeg", ".gif":
		return StickerContent{Kind: ContentImage, Value: s}
	}
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return StickerContent{Kind: ContentText, Value: s}
		}
	}
	return StickerContent{Kind: ContentEmoji, Value: s}
}

func normalizePosition(s string) (Position, bool) {
	p := strings.ToLower(strings.TrimSpace(s))
	p = strings.NewReplacer("_", "-", " ", "-").Replace(p)
	switch Position(p) {
	case TopLeft, TopRight, BottomLeft, BottomRight, Center:
		return Position(p), true
	case "centre", "middle":
		return Center, true
	default:
		return "", false
	}
}
