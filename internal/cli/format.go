package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/forPelevin/promptcut/internal/domain/filtergraph"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/types"
)

// fatih/color disables itself when stdout is not a TTY or NO_COLOR is set.
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printError(w io.Writer, msg string) {
	_, _ = errorColor.Fprintf(w, "✗ %s\n", msg)
}

func printLabelValue(w io.Writer, label, value string) {
	_, _ = labelColor.Fprintf(w, "  %s: ", label)
	_, _ = fmt.Fprintln(w, value)
}

func printReport(w io.Writer, rep types.Report) {
	if rep.DryRun {
		_, _ = headerColor.Fprintln(w, "▸ Dry run")
		for _, inv := range rep.Invocations {
			_, _ = labelColor.Fprintf(w, "  [%s] ", inv.Stage)
			_, _ = fmt.Fprintln(w, "ffmpeg "+quoteArgs(inv.Args))
		}
		return
	}

	_, _ = successColor.Fprintf(w, "✓ %s\n", rep.Output)
	printLabelValue(w, "request", rep.RequestID)
	printLabelValue(w, "duration", fmt.Sprintf("%ss -> %ss", filtergraph.FormatSeconds(rep.SourceDuration), filtergraph.FormatSeconds(rep.OutputDuration)))
	printLabelValue(w, "operations", formatCounts(rep.Operations))
	printLabelValue(w, "stages", strings.Join(rep.Stages, ", "))

	for _, s := range rep.Stickers {
		switch s.Outcome {
		case types.StickerDropped:
			_, _ = dimColor.Fprintf(w, "  sticker #%d dropped (removed by cuts)\n", s.Index)
		case types.StickerText:
			_, _ = warningColor.Fprintf(w, "⚠ sticker #%d drawn as text\n", s.Index)
		}
	}
	for _, m := range rep.Music {
		if m.Skipped {
			_, _ = warningColor.Fprintf(w, "⚠ music #%d skipped (%s)\n", m.Index, m.Source)
		}
	}
}

func printTimeline(w io.Writer, p plan.Plan, m *timeline.Map) {
	_, _ = successColor.Fprintf(w, "✓ plan is valid (%d operations)\n", len(p.Ops))
	printLabelValue(w, "duration", fmt.Sprintf("%ss -> %ss", filtergraph.FormatSeconds(m.SourceDuration()), filtergraph.FormatSeconds(m.Duration())))
	_, _ = headerColor.Fprintln(w, "▸ Segments")
	for _, s := range m.Segments() {
		_, _ = fmt.Fprintf(w, "  [%s, %s) x%s -> %s\n",
			filtergraph.FormatSeconds(s.Start), filtergraph.FormatSeconds(s.End),
			filtergraph.FormatSeconds(s.Rate), filtergraph.FormatSeconds(s.OutStart))
	}
	for _, iv := range m.Removed() {
		_, _ = dimColor.Fprintf(w, "  removed %s\n", iv)
	}
}

func formatCounts(c map[string]int) string {
	if len(c) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, c[k]))
	}
	return strings.Join(parts, " ")
}

// quoteArgs renders args for copy-pasting into a POSIX shell.
func quoteArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`;|&()<>[]*?{}!#~") {
			out[i] = a
			continue
		}
		out[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(out, " ")
}
