//go:build integration

package itest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd, nil
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", errors.New("could not locate go.mod")
}

func requireTools(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func ffmpeg(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)...)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
}

// sourceVideo synthesizes a test pattern with a sine tone, or without audio
// when withAudio is false.
func sourceVideo(t *testing.T, dir string, seconds int, withAudio bool) string {
	t.Helper()
	out := filepath.Join(dir, fmt.Sprintf("source-%ds.mp4", seconds))
	args := []string{"-f", "lavfi", "-i", fmt.Sprintf("testsrc2=size=320x240:rate=25:duration=%d", seconds)}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:sample_rate=48000:duration=%d", seconds))
	}
	args = append(args, "-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p")
	if withAudio {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	ffmpeg(t, append(args, out)...)
	return out
}

func stickerImage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	ffmpeg(t, "-f", "lavfi", "-i", "color=c=orange:size=72x72", "-frames:v", "1", path)
}

func toneTrack(t *testing.T, path string, seconds int) {
	t.Helper()
	ffmpeg(t, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=880:sample_rate=44100:duration=%d", seconds), "-c:a", "libmp3lame", path)
}

type probeResult struct {
	Duration float64
	Video    bool
	Audio    bool
}

func probe(t *testing.T, path string) probeResult {
	t.Helper()
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type",
		"-of", "json",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("ffprobe: %v\n%s", err, string(b))
	}
	var raw struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("parse ffprobe output: %v", err)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64)
	if err != nil {
		t.Fatalf("parse duration %q: %v", raw.Format.Duration, err)
	}
	res := probeResult{Duration: sec}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			res.Video = true
		case "audio":
			res.Audio = true
		}
	}
	return res
}

func assertDuration(t *testing.T, got, want float64) {
	t.Helper()
	// Container durations round to the audio frame and the last video frame.
	if d := got - want; d > 0.15 || d < -0.15 {
		t.Fatalf("duration %.3fs, want %.3fs", got, want)
	}
}
