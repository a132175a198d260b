package types

import (
	"fmt"
	"strings"
)

type MediaInfo struct {
	Duration float64
	HasAudio bool
	Width    int
	Height   int
}

// Invocation is one external media-engine run.
type Invocation struct {
	Stage  string   `json:"stage"`
	Args   []string `json:"args"`
	Output string   `json:"output"`
	Dir    string   `json:"dir"`
}

// EngineError is returned when an invocation exits non-zero or produces no
// output. Diagnostics holds the engine's full stderr.
type EngineError struct {
	Stage       string
	Diagnostics string
	Err         error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("engine stage %s failed", e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if d := strings.TrimSpace(e.Diagnostics); d != "" {
		msg += "\n" + d
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

type StickerOutcome string

const (
	StickerOverlay StickerOutcome = "overlay"
	StickerText    StickerOutcome = "text"
	StickerDropped StickerOutcome = "dropped"
)

type StickerReport struct {
	Index   int            `json:"index"`
	Outcome StickerOutcome `json:"outcome"`
	Start   float64        `json:"start,omitempty"`
	End     float64        `json:"end,omitempty"`
}

type MusicReport struct {
	Index   int     `json:"index"`
	Source  string  `json:"source"`
	Start   float64 `json:"start,omitempty"`
	End     float64 `json:"end,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
}

// Report summarizes one executed (or dry-run) edit.
type Report struct {
	RequestID      string          `json:"request_id"`
	Input          string          `json:"input"`
	Output         string          `json:"output"`
	SourceDuration float64         `json:"source_duration"`
	OutputDuration float64         `json:"output_duration"`
	Operations     map[string]int  `json:"operations"`
	Stickers       []StickerReport `json:"stickers,omitempty"`
	Music          []MusicReport   `json:"music,omitempty"`
	Stages         []string        `json:"stages"`
	DryRun         bool            `json:"dry_run,omitempty"`
	Invocations    []Invocation    `json:"invocations,omitempty"`
}
