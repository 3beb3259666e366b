package domain

import (
	"math"
	"time"
)

const (
	// FidelityFloor bounds each term of the end-to-end geometric mean so a
	// single zero cannot collapse the product.
	FidelityFloor = 1e-6

	// rollupScale rounds rollup fields to four decimal places.
	rollupScale = 1e4
)

// PipelineScore is the aggregate derived from every handoff of a pipeline.
// It is only ever produced by ComputePipelineRollup.
type PipelineScore struct {
	AvgFidelity      float64 `json:"avg_fidelity"`
	AvgDrift         float64 `json:"avg_drift"`
	TotalCompression float64 `json:"total_compression"`
	EndToEndFidelity float64 `json:"end_to_end_fidelity"`
}

// PipelineEvaluation is the materialized summary of a pipeline run.
// Handoffs is a snapshot in storage order taken when the rollup was computed.
type PipelineEvaluation struct {
	PipelineID           string              `json:"pipeline_id"`
	Handoffs             []HandoffEvaluation `json:"handoffs"`
	OverallPipelineScore PipelineScore       `json:"overall_pipeline_score"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// FormatRollup holds average scores across all handoffs sharing a format.
type FormatRollup struct {
	Format         string  `json:"format"`
	AvgFidelity    float64 `json:"avg_fidelity"`
	AvgDrift       float64 `json:"avg_drift"`
	AvgCompression float64 `json:"avg_compression"`
	Count          int     `json:"count"`
}

// PipelineState is the observable lifecycle state of a pipeline.
type PipelineState int

const (
	// PipelineEmpty means no handoffs have been recorded for the id.
	PipelineEmpty PipelineState = iota
	// PipelineOpen means handoffs exist but no summary covers all of them.
	PipelineOpen
	// PipelineFinalized means the stored summary reflects every handoff.
	PipelineFinalized
)

// String implements fmt.Stringer.
func (s PipelineState) String() string {
	switch s {
	case PipelineOpen:
		return "open"
	case PipelineFinalized:
		return "finalized"
	default:
		return "empty"
	}
}

// ComputePipelineRollup derives the pipeline score from its handoffs.
// Averages are arithmetic means; end-to-end fidelity is the geometric mean
// of per-handoff fidelity with each term floored at FidelityFloor, so loss
// compounds across stages. Empty input yields the zero score.
func ComputePipelineRollup(handoffs []HandoffEvaluation) PipelineScore {
	if len(handoffs) == 0 {
		return PipelineScore{}
	}

	var sumFidelity, sumDrift, sumCompression, sumLog float64
	for _, h := range handoffs {
		s := h.EvalScores
		sumFidelity += s.Fidelity
		sumDrift += s.Drift
		sumCompression += s.Compression
		sumLog += math.Log(math.Max(s.Fidelity, FidelityFloor))
	}

	n := float64(len(handoffs))
	return PipelineScore{
		AvgFidelity:      roundScore(sumFidelity / n),
		AvgDrift:         roundScore(sumDrift / n),
		TotalCompression: roundScore(sumCompression / n),
		EndToEndFidelity: roundScore(math.Exp(sumLog / n)),
	}
}

func roundScore(v float64) float64 {
	return math.Round(v*rollupScale) / rollupScale
}
