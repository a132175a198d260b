package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/promptcut/internal/usecase"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInvalidPlan = 2
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}

// Execute runs the command line and returns the process exit code: 2 when
// the plan itself is invalid, 1 for any other failure.
func Execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		printError(stderr, err.Error())
		if usecase.InvalidPlan(err) {
			return exitInvalidPlan
		}
		return exitFailure
	}
	return exitOK
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "promptcut",
		Short:         "Apply an edit plan (cuts, speed changes, stickers, music) to a video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEditCmd(), newCheckCmd())
	return root
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func readPlanFile(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read plan from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read plan: %w", err)
	}
	return string(b), nil
}
