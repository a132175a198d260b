package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePlan(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExecute_Check(t *testing.T) {
	tests := []struct {
		name     string
		plan     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:     "valid",
			plan:     `[{"action":"cut","start":5,"end":10},{"action":"speed","start":10,"end":20,"rate":2}]`,
			args:     []string{"--duration", "30"},
			wantCode: exitOK,
			wantOut:  "30.000s -> 20.000s",
		},
		{
			name:     "overlap",
			plan:     `[{"action":"cut","start":0,"end":10},{"action":"speed","start":5,"end":15,"rate":2}]`,
			args:     []string{"--duration", "30"},
			wantCode: exitInvalidPlan,
		},
		{
			name:     "not json",
			plan:     "no plan here",
			args:     []string{"--duration", "30"},
			wantCode: exitInvalidPlan,
		},
		{
			name:     "missing duration",
			plan:     "[]",
			wantCode: exitFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append([]string{"check", writePlan(t, tt.plan)}, tt.args...)
			code := Execute(args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("exit code %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			if tt.wantOut != "" && !strings.Contains(stdout.String(), tt.wantOut) {
				t.Fatalf("stdout missing %q: %s", tt.wantOut, stdout.String())
			}
		})
	}
}

func TestExecute_EditFlagErrors(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	plan := writePlan(t, "[]")

	tests := []struct {
		name string
		args []string
	}{
		{"no plan or prompt", []string{"edit", input}},
		{"both plan and prompt", []string{"edit", input, "--prompt", "cut", "--plan-file", plan}},
		{"missing input", []string{"edit", input + ".nope", "--plan-file", plan}},
		{"bad duck", []string{"edit", input, "--plan-file", plan, "--duck", "2"}},
		{"no args", []string{"edit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := Execute(tt.args, &stdout, &stderr); code != exitFailure {
				t.Fatalf("exit code %d, want %d", code, exitFailure)
			}
			if stderr.Len() == 0 {
				t.Fatalf("expected an error message")
			}
		})
	}
}

func TestQuoteArgs(t *testing.T) {
	got := quoteArgs([]string{"-i", "in.mp4", "-filter_complex", "[0:v]drawtext=text='hi'[v1]", "my file.mp4"})
	want := `-i in.mp4 -filter_complex '[0:v]drawtext=text='\''hi'\''[v1]' 'my file.mp4'`
	if got != want {
		t.Fatalf("quoteArgs:\n got: %s\nwant: %s", got, want)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a.test, ,b.test ")
	if len(got) != 2 || got[0] != "a.test" || got[1] != "b.test" {
		t.Fatalf("unexpected %v", got)
	}
	if splitList("") != nil {
		t.Fatalf("empty input must give nil")
	}
}
