package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-handoff/internal/application"
	"github.com/ahrav/go-handoff/internal/domain"
)

type evaluateOptions struct {
	pipelineID   string
	handoffID    string
	agentFrom    string
	agentTo      string
	sentPath     string
	receivedPath string
	format       string
	tokensBefore int
	tokensAfter  int
	metadata     map[string]string
	withJudge    bool
}

// evaluateOutput is printed by evaluate.
type evaluateOutput struct {
	Evaluation *domain.HandoffEvaluation `json:"evaluation"`
	Judgment   *judgmentOutput           `json:"judgment,omitempty"`
}

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score and store one handoff",
		Long: `Score the context one agent sent against what the next agent received,
and store the result under the pipeline.

Token counts default to whitespace-separated word counts.

Examples:
  handoffeval evaluate --from planner --to coder --sent sent.json --received received.txt
  handoffeval evaluate --pipeline-id run-7 --handoff-id h2 --from a --to b \
    --sent a.md --received b.md --format markdown --judge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.pipelineID, "pipeline-id", "", "Pipeline id (default: a new UUID)")
	f.StringVar(&opts.handoffID, "handoff-id", "", "Handoff id (default: a new UUID)")
	f.StringVar(&opts.agentFrom, "from", "", "Sending agent")
	f.StringVar(&opts.agentTo, "to", "", "Receiving agent")
	f.StringVar(&opts.sentPath, "sent", "", "File holding the context sent")
	f.StringVar(&opts.receivedPath, "received", "", "File holding the context received")
	f.StringVar(&opts.format, "format", "", "Context format (default: text)")
	f.IntVar(&opts.tokensBefore, "tokens-before", -1, "Token count of the sent context")
	f.IntVar(&opts.tokensAfter, "tokens-after", -1, "Token count of the received context")
	f.StringToStringVar(&opts.metadata, "meta", nil, "Extra metadata as key=value pairs")
	f.BoolVar(&opts.withJudge, "judge", false, "Also ask the LLM judge")
	for _, name := range []string{"from", "to", "sent", "received"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runEvaluate(cmd *cobra.Command, root *rootOptions, opts *evaluateOptions) error {
	svc, err := root.service()
	if err != nil {
		return err
	}

	sent, err := os.ReadFile(opts.sentPath)
	if err != nil {
		return fmt.Errorf("reading sent context: %w", err)
	}
	received, err := os.ReadFile(opts.receivedPath)
	if err != nil {
		return fmt.Errorf("reading received context: %w", err)
	}

	req := application.HandoffRequest{
		PipelineID:      idOrNew(opts.pipelineID),
		HandoffID:       idOrNew(opts.handoffID),
		AgentFrom:       opts.agentFrom,
		AgentTo:         opts.agentTo,
		ContextSent:     string(sent),
		ContextReceived: string(received),
		Format:          opts.format,
	}
	if cmd.Flags().Changed("tokens-before") {
		req.TokensBefore = &opts.tokensBefore
	}
	if cmd.Flags().Changed("tokens-after") {
		req.TokensAfter = &opts.tokensAfter
	}
	if len(opts.metadata) > 0 {
		req.Metadata = make(map[string]any, len(opts.metadata))
		for k, v := range opts.metadata {
			req.Metadata[k] = v
		}
	}

	ctx := cmd.Context()
	record, err := svc.EvaluateAndStoreHandoff(ctx, req)
	if err != nil {
		return err
	}

	out := evaluateOutput{Evaluation: record}
	if opts.withJudge {
		res, err := svc.JudgeHandoff(ctx, req.ContextSent, req.ContextReceived)
		if err != nil {
			return err
		}
		out.Judgment = newJudgmentOutput(res)
	}
	return render(cmd.OutOrStdout(), root.output, out)
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
