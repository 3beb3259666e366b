package main

import (
	"github.com/spf13/cobra"
)

func newFinalizeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize PIPELINE_ID",
		Short: "Recompute a pipeline summary",
		Long: `Recompute the summary of a pipeline from every handoff stored for it
and replace the stored summary. Finalizing again is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.service()
			if err != nil {
				return err
			}
			summary, err := svc.FinalizePipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), root.output, summary)
		},
	}
}

// statusOutput is printed by status.
type statusOutput struct {
	PipelineID string `json:"pipeline_id"`
	State      string `json:"state"`
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status PIPELINE_ID",
		Short: "Show whether a pipeline summary is current",
		Long: `Report the pipeline state:
  empty      no handoffs are stored
  open       handoffs exist that the stored summary does not cover
  finalized  the stored summary covers every handoff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.service()
			if err != nil {
				return err
			}
			state, err := svc.PipelineStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), root.output, statusOutput{PipelineID: args[0], State: state.String()})
		},
	}
}

func newFormatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "Compare context formats across all handoffs",
		Long: `Average fidelity, drift and compression per context format over every
stored handoff, best fidelity first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.service()
			if err != nil {
				return err
			}
			rollups, err := svc.RollupByFormat(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), root.output, rollups)
		},
	}
}
