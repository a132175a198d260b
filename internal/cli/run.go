package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/pipeline"
	"github.com/forPelevin/promptcut/internal/types"
)

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <input>",
		Short: "Edit a video from a prompt or a JSON plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args[0])
		},
	}

	cmd.Flags().String("prompt", "", "Natural-language editing instruction")
	cmd.Flags().String("plan-file", "", "JSON plan file (- for stdin)")
	cmd.Flags().String("out", "", "Output file (default: <out-dir>/<name>-edited-<ts>-<hash>.mp4)")
	cmd.Flags().String("out-dir", "out", "Output directory when --out is not set")
	cmd.Flags().Float64("duck", 1, "Original audio volume while music plays, in (0, 1]")
	cmd.Flags().Bool("dry-run", false, "Print the engine invocations without running them")
	cmd.Flags().String("report", "", "Write the JSON report to this file")
	cmd.MarkFlagsMutuallyExclusive("prompt", "plan-file")

	// Hidden tuning flag (internal)
	cmd.Flags().Duration("timeout", 2*time.Hour, "Overall time limit")
	_ = cmd.Flags().MarkHidden("timeout")
	return cmd
}

func runEdit(cmd *cobra.Command, input string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	planFile, _ := cmd.Flags().GetString("plan-file")
	out, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")
	duck, _ := cmd.Flags().GetFloat64("duck")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	reportPath, _ := cmd.Flags().GetString("report")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if prompt == "" && planFile == "" {
		return errors.New("one of --prompt or --plan-file is required")
	}
	var planText string
	if planFile != "" {
		t, err := readPlanFile(planFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		planText = t
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logging.NewLogger(
		getenvDefault("PROMPTCUT_LOG_LEVEL", "warn"),
		getenvDefault("PROMPTCUT_LOG_FORMAT", "text"),
	)

	cfg := pipeline.Config{
		Input:       absIn,
		Output:      out,
		OutDir:      outDir,
		PlanText:    planText,
		Instruction: prompt,
		DryRun:      dryRun,
		Duck:        duck,

		WorkDir:     getenvDefault("PROMPTCUT_WORK_DIR", ".promptcut"),
		StickerDirs: filepath.SplitList(getenvDefault("PROMPTCUT_STICKER_DIRS", "stickers")),
		EmojiURL:    os.Getenv("PROMPTCUT_EMOJI_URL"),
		CatalogPath: os.Getenv("PROMPTCUT_CATALOG"),
		FontFile:    os.Getenv("PROMPTCUT_FONT_FILE"),

		FFmpegPath:  getenvDefault("PROMPTCUT_FFMPEG", "ffmpeg"),
		FFprobePath: getenvDefault("PROMPTCUT_FFPROBE", "ffprobe"),

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:        getenvDefault("OPENROUTER_MODEL", "z-ai/glm-4.5-air:free"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: splitList(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),

		Logger: log,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	rep, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), rep)
	if reportPath != "" {
		if err := writeReport(reportPath, rep); err != nil {
			return err
		}
	}
	return nil
}

func writeReport(path string, rep types.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
