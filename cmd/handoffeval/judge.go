package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-handoff/internal/domain"
	"github.com/ahrav/go-handoff/internal/judge"
)

// judgmentOutput is a judge result as printed.
type judgmentOutput struct {
	Kind     string           `json:"kind"`
	Judgment domain.Judgment `json:"judgment"`
	Error    string           `json:"error,omitempty"`
}

func newJudgmentOutput(res judge.Result) *judgmentOutput {
	out := &judgmentOutput{Kind: res.Kind.String(), Judgment: res.Judgment}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func newJudgeCmd(root *rootOptions) *cobra.Command {
	var sentPath, receivedPath string

	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Ask the LLM judge to assess one handoff",
		Long: `Ask the configured LLM judge how well the received context preserves
the sent context. Nothing is stored.

When the provider is unreachable or its reply cannot be parsed, a
heuristic judgment is printed and kind tells which one was used.
The judge must be enabled with judge.enabled or HANDOFF_JUDGE_ENABLED.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := root.service()
			if err != nil {
				return err
			}
			sent, err := os.ReadFile(sentPath)
			if err != nil {
				return fmt.Errorf("reading sent context: %w", err)
			}
			received, err := os.ReadFile(receivedPath)
			if err != nil {
				return fmt.Errorf("reading received context: %w", err)
			}

			res, err := svc.JudgeHandoff(cmd.Context(), string(sent), string(received))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), root.output, newJudgmentOutput(res))
		},
	}

	cmd.Flags().StringVar(&sentPath, "sent", "", "File holding the context sent")
	cmd.Flags().StringVar(&receivedPath, "received", "", "File holding the context received")
	_ = cmd.MarkFlagRequired("sent")
	_ = cmd.MarkFlagRequired("received")
	return cmd
}
