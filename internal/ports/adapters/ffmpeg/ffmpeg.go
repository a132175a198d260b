package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/promptcut/internal/logging"
	"github.com/forPelevin/promptcut/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     *slog.Logger
}

func New(ffmpegPath, ffprobePath string, log *slog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	log = logging.OrDiscard(log)
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,width,height",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("ffprobe: %w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	s := strings.TrimSpace(out.Format.Duration)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || sec <= 0 {
		return types.MediaInfo{}, fmt.Errorf("parse duration %q: invalid", s)
	}
	info := types.MediaInfo{Duration: sec}
	for _, st := range out.Streams {
		switch st.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = st.Width, st.Height
			}
		}
	}
	return info, nil
}

// Run executes one invocation in inv.Dir. stderr is captured in full and
// returned inside a types.EngineError on failure, with the working
// directory replaced by a placeholder.
func (a *Adapter) Run(ctx context.Context, inv types.Invocation) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, inv.Args...)
	cmd.Dir = inv.Dir
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	a.log.Debug("ffmpeg finished", "stage", inv.Stage, "elapsed", time.Since(started).Round(time.Millisecond), "err", err)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &types.EngineError{Stage: inv.Stage, Diagnostics: scrub(stderr.String(), inv.Dir), Err: err}
	}

	st, err := os.Stat(inv.Output)
	if err != nil || st.Size() == 0 {
		return &types.EngineError{
			Stage:       inv.Stage,
			Diagnostics: scrub(stderr.String(), inv.Dir),
			Err:         errors.New("engine produced no output"),
		}
	}
	return nil
}

func scrub(s, dir string) string {
	s = strings.TrimSpace(s)
	if dir != "" {
		s = strings.ReplaceAll(s, dir, "<workdir>")
	}
	return s
}
