package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/forPelevin/promptcut/internal/pipeline"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <plan-file>",
		Short: "Validate a plan and print the resulting timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, _ := cmd.Flags().GetFloat64("duration")
			if duration <= 0 {
				return errors.New("--duration must be > 0")
			}
			text, err := readPlanFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			p, m, err := pipeline.Check(text, duration)
			if err != nil {
				return err
			}
			printTimeline(cmd.OutOrStdout(), p, m)
			return nil
		},
	}
	cmd.Flags().Float64("duration", 0, "Source duration in seconds")
	return cmd
}
