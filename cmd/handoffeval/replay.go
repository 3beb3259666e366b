package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-handoff/internal/application"
	"github.com/ahrav/go-handoff/internal/domain"
)

// replayEntry is one handoff in a replay file.
type replayEntry struct {
	PipelineID      string               `yaml:"pipeline_id"`
	HandoffID       string               `yaml:"handoff_id"`
	AgentFrom       string               `yaml:"agent_from"`
	AgentTo         string               `yaml:"agent_to"`
	Format          string               `yaml:"format"`
	ContextSent     string               `yaml:"context_sent"`
	ContextReceived string               `yaml:"context_received"`
	TokensBefore    *int                 `yaml:"tokens_before"`
	TokensAfter     *int                 `yaml:"tokens_after"`
	Vectors         *domain.VectorBundle `yaml:"vectors"`
	Metadata        map[string]any       `yaml:"metadata"`
}

func (e replayEntry) request() application.HandoffRequest {
	return application.HandoffRequest{
		PipelineID:      e.PipelineID,
		HandoffID:       idOrNew(e.HandoffID),
		AgentFrom:       e.AgentFrom,
		AgentTo:         e.AgentTo,
		ContextSent:     e.ContextSent,
		ContextReceived: e.ContextReceived,
		TokensBefore:    e.TokensBefore,
		TokensAfter:     e.TokensAfter,
		Vectors:         e.Vectors,
		Metadata:        e.Metadata,
		Format:          e.Format,
	}
}

// replayOutput is printed by replay.
type replayOutput struct {
	Evaluated int                          `json:"evaluated"`
	Pipelines []*domain.PipelineEvaluation `json:"pipelines"`
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Score a YAML file of handoffs and finalize their pipelines",
		Long: `Evaluate every handoff listed in FILE in order, then finalize each
pipeline they belong to. Entries without a pipeline_id are rejected.

Example FILE:
  - pipeline_id: run-1
    agent_from: planner
    agent_to: coder
    format: json
    context_sent: '{"task": "port the parser", "deadline": "2025-03-01"}'
    context_received: 'Port the parser by 2025-03-01.'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.service()
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading replay file: %w", err)
			}
			var entries []replayEntry
			if err := yaml.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("parsing replay file: %w", err)
			}

			ctx := cmd.Context()
			var pipelines []string
			seen := make(map[string]struct{})
			for i, entry := range entries {
				if entry.PipelineID == "" {
					return fmt.Errorf("entry %d: pipeline_id is required", i)
				}
				if _, err := svc.EvaluateAndStoreHandoff(ctx, entry.request()); err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
				if _, ok := seen[entry.PipelineID]; !ok {
					seen[entry.PipelineID] = struct{}{}
					pipelines = append(pipelines, entry.PipelineID)
				}
			}

			out := replayOutput{Evaluated: len(entries), Pipelines: make([]*domain.PipelineEvaluation, 0, len(pipelines))}
			for _, id := range pipelines {
				summary, err := svc.FinalizePipeline(ctx, id)
				if err != nil {
					return err
				}
				out.Pipelines = append(out.Pipelines, summary)
			}
			return render(cmd.OutOrStdout(), root.output, out)
		},
	}
}
