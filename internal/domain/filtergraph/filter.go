package filtergraph

import (
	"strconv"
	"strings"
)

// Filter is a single ffmpeg filter with its options.
type Filter struct {
	Name string
	Args []Arg
}

// Arg is one option. An empty Key makes it positional.
type Arg struct {
	Key   string
	Value string
}

func F(name string, args ...Arg) Filter { return Filter{Name: name, Args: args} }

// Str is a keyed option whose value is escaped for both parsing levels.
func Str(key, value string) Arg { return Arg{Key: key, Value: value} }

func Num(key string, v float64) Arg { return Arg{Key: key, Value: FormatSeconds(v)} }

func Int(key string, v int) Arg { return Arg{Key: key, Value: strconv.Itoa(v)} }

// Pos is a positional option.
func Pos(value string) Arg { return Arg{Value: value} }

// FormatSeconds renders a time or factor with millisecond precision.
func FormatSeconds(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		v := escapeGraph(escapeOption(a.Value))
		if a.Key == "" {
			parts[i] = v
		} else {
			parts[i] = a.Key + "=" + v
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// escapeOption protects a value from the filter option parser, which splits
// on ':' and strips one level of quoting.
func escapeOption(s string) string {
	if !strings.ContainsAny(s, `\':`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '\\' || r == '\'' || r == ':' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeGraph protects an already option-escaped value from the graph parser,
// which splits on '[', ']', ',' and ';'. Values without quotes are wrapped in
// single quotes for readability; others are backslash-escaped.
func escapeGraph(s string) string {
	if !strings.ContainsAny(s, `\'[],;`) {
		return s
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\'[],;`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
