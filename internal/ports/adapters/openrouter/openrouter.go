package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/promptcut/internal/logging"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

const (
	requestTimeout = 90 * time.Second
	defaultModel   = "anthropic/claude-3.5-sonnet"
)

func New(apiKey, model, baseURL string, log *slog.Logger) *Adapter {
	if model == "" {
		model = defaultModel
	}
	log = logging.OrDiscard(log)
	baseURL = normalizeBaseURL(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}, log: log}
}

// Plan asks the model to turn instruction into an edit plan for a video of
// the given duration. The reply is returned as-is; extracting and
// validating the JSON array is the caller's job.
func (a *Adapter) Plan(ctx context.Context, instruction string, duration float64) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", errors.New("openrouter: empty instruction")
	}
	if a.key == "" {
		return "", errors.New("openrouter: OPENROUTER_API_KEY is not set")
	}

	payload := map[string]any{
		"model":       a.model,
		"stream":      false,
		"temperature": 0,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(instruction, duration)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	url := a.baseURL + "/api/v1/chat/completions"

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return "", fmt.Errorf("openrouter: %s", redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: response has no choices")
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	a.log.Debug("plan received", "model", a.model, "elapsed", time.Since(started).Round(time.Millisecond), "bytes", len(content))
	return content, nil
}

const systemPrompt = "You convert video editing instructions into machine-readable JSON. " +
	"Respond with a JSON array only: no commentary, no markdown."

func buildPrompt(instruction string, duration float64) string {
	var b strings.Builder
	b.WriteString("Given a natural-language video editing instruction, output a JSON array of edits. ")
	b.WriteString("Each edit is an object with an \"action\" of \"cut\", \"speed\", \"sticker\" or \"music\".\n")
	b.WriteString("- cut: start, end (seconds).\n")
	b.WriteString("- speed: start, end (seconds) and rate (> 0).\n")
	b.WriteString("- sticker: start and end, or start and duration, and content: ")
	b.WriteString(`{"emoji":"🔥"} or {"image":"cat"} or {"text":"hello"}. `)
	b.WriteString("Optional: position (top-left, top-right, bottom-left, bottom-right, center), x, y, fontsize.\n")
	b.WriteString("- music: start and end, or start and duration, and one of ")
	b.WriteString(`{"query":"upbeat pop instrumental"}, {"file":"./music/track.mp3"}, {"url":"https://..."}, {"catalog_id":"calm-piano"}. `)
	b.WriteString("Optional: volume (0.0-1.0, default 0.4), loop (default true), fade (seconds, default 1).\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- cut and speed edits must not overlap each other. Stickers and music may overlap anything.\n")
	b.WriteString("- Times refer to the original video. Use seconds as numbers; convert timecodes like 00:01:20.\n")
	b.WriteString("- If nothing valid can be derived, return [].\n\n")
	b.WriteString("Example: \"Cut from 00:01:20 to 00:01:45\" -> ")
	b.WriteString(`[{"action":"cut","start":80.0,"end":105.0}]` + "\n")
	b.WriteString("Example: \"Add fire emoji at 0:20 for 2 seconds\" -> ")
	b.WriteString(`[{"action":"sticker","start":20.0,"end":22.0,"content":{"emoji":"🔥"},"position":"bottom-right","fontsize":72}]` + "\n\n")
	if duration > 0 {
		b.WriteString("The video is " + strconv.FormatFloat(duration, 'f', 3, 64) + " seconds long.\n")
	}
	b.WriteString("Instruction:\n\"\"\"" + instruction + "\"\"\"")
	return b.String()
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
