package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/promptcut/internal/assets"
	"github.com/forPelevin/promptcut/internal/domain/plan"
	"github.com/forPelevin/promptcut/internal/domain/timeline"
	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/ports"
	"github.com/forPelevin/promptcut/internal/ports/adapters/catalog"
	"github.com/forPelevin/promptcut/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/promptcut/internal/ports/adapters/httpfetch"
	"github.com/forPelevin/promptcut/internal/ports/adapters/openrouter"
	"github.com/forPelevin/promptcut/internal/types"
	"github.com/forPelevin/promptcut/internal/urlpolicy"
	"github.com/forPelevin/promptcut/internal/usecase"
	"github.com/forPelevin/promptcut/internal/workspace"
)

type Config struct {
	Input string
	// Output defaults to <OutDir>/<name>-edited-<timestamp>-<hash>.mp4.
	Output string
	OutDir string

	// Exactly one of PlanText and Instruction is used; PlanText wins.
	PlanText    string
	Instruction string
	DryRun      bool

	// Duck scales the original audio under music, in (0, 1]. 0 means 1.
	Duck float64

	// WorkDir holds request workspaces and the shared asset cache.
	// If empty, defaults to ".promptcut".
	WorkDir string

	StickerDirs []string
	EmojiURL    string
	CatalogPath string
	FontFile    string

	FFmpegPath  string
	FFprobePath string

	FetchTimeout  time.Duration
	FetchMaxBytes int64

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	Logger *slog.Logger
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	st, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("input %s is a directory", c.Input)
	}
	if c.Duck < 0 || c.Duck > 1 {
		return fmt.Errorf("duck must be within [0, 1], got %g", c.Duck)
	}
	if c.FontFile != "" {
		if _, err := os.Stat(c.FontFile); err != nil {
			return fmt.Errorf("stat font file: %w", err)
		}
	}
	if err := validateEmojiURL(c.EmojiURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.PlanText) != "" {
		return nil
	}
	if strings.TrimSpace(c.Instruction) == "" {
		return errors.New("a plan or a prompt is required")
	}
	if c.OpenRouterAPIKey == "" {
		return errors.New("OPENROUTER_API_KEY is required to plan from a prompt")
	}
	return openrouter.ValidateBaseURL(
		c.OpenRouterBaseURL,
		c.OpenRouterAllowedHosts,
	)
}

// validateEmojiURL checks a template with one %s for the codepoints.
func validateEmojiURL(tmpl string) error {
	if tmpl == "" {
		return nil
	}
	if strings.Count(tmpl, "%s") != 1 || strings.Count(tmpl, "%") != 1 {
		return fmt.Errorf("invalid PROMPTCUT_EMOJI_URL %q: exactly one %%s placeholder is required", tmpl)
	}
	_, err := urlpolicy.Web("PROMPTCUT_EMOJI_URL").Check(fmt.Sprintf(tmpl, "1f525"))
	return err
}

// Run wires the adapters and executes one edit.
func Run(ctx context.Context, cfg Config) (types.Report, error) {
	if err := cfg.Validate(); err != nil {
		return types.Report{}, err
	}
	log := logging.OrDiscard(cfg.Logger)

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = ".promptcut"
	}
	layout := workspace.Layout{Root: workDir}

	output := cfg.Output
	if output == "" {
		outDir := cfg.OutDir
		if outDir == "" {
			outDir = "out"
		}
		output = buildOutputPath(outDir, cfg.Input, time.Now().UTC())
	}
	if !cfg.DryRun {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return types.Report{}, fmt.Errorf("create output dir: %w", err)
		}
	}

	// adapters
	engine := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, logging.WithComponent(log, "ffmpeg"))
	fetch := httpfetch.New(cfg.FetchTimeout, cfg.FetchMaxBytes, logging.WithComponent(log, "httpfetch"))
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return types.Report{}, err
	}
	store, err := assets.NewDirStore(layout.CacheDir())
	if err != nil {
		return types.Report{}, err
	}
	emojiURL := cfg.EmojiURL
	if emojiURL == "" {
		emojiURL = assets.DefaultEmojiURL
	}
	res := assets.NewResolver(
		assets.Config{StickerDirs: cfg.StickerDirs, EmojiURL: emojiURL},
		store, fetch, cat,
		logging.WithComponent(log, "assets"),
	)

	deps := usecase.Deps{
		Engine:   engine,
		Stickers: res,
		Music:    res,
		Layout:   layout,
		Log:      log,
	}
	if strings.TrimSpace(cfg.PlanText) == "" {
		deps.Planner = openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL, logging.WithComponent(log, "openrouter"))
	}

	uc := usecase.New(deps, usecase.Options{FontFile: cfg.FontFile, Duck: cfg.Duck})
	out, err := uc.Run(ctx, usecase.Input{
		Input:       cfg.Input,
		Output:      output,
		PlanText:    cfg.PlanText,
		Instruction: cfg.Instruction,
		DryRun:      cfg.DryRun,
	})
	if err != nil {
		return types.Report{}, err
	}
	return out.Report, nil
}

// Check validates plan text against a source of the given duration without
// touching media or disk.
func Check(text string, duration float64) (plan.Plan, *timeline.Map, error) {
	if duration <= 0 {
		return plan.Plan{}, nil, fmt.Errorf("duration must be > 0, got %g", duration)
	}
	p, err := plan.Parse(text)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	m, err := timeline.Resequence(duration, p)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	return p, m, nil
}

func buildOutputPath(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-edited-%s-%s.mp4", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MediaEngine = (*ffmpeg.Adapter)(nil)
var _ ports.PlanSource = (*openrouter.Adapter)(nil)
var _ ports.Fetcher = (*httpfetch.Fetcher)(nil)
var _ ports.Catalog = (*catalog.Catalog)(nil)
var _ assets.Store = (*assets.DirStore)(nil)
