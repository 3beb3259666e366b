package domain

import (
	"fmt"
	"math"
)

// Grade is the letter grade attached to a judgment's overall score.
type Grade string

// Letter grades, best first.
const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps an overall score onto a letter grade using fixed thresholds.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.9:
		return GradeA
	case score >= 0.8:
		return GradeB
	case score >= 0.7:
		return GradeC
	case score >= 0.6:
		return GradeD
	default:
		return GradeF
	}
}

// JudgmentSource records whether a judgment came from the external judge or
// from the local heuristic fallback.
type JudgmentSource string

const (
	SourceLLM       JudgmentSource = "llm"
	SourceHeuristic JudgmentSource = "heuristic"
)

// Judgment is a structured quality assessment of a single handoff.
// All numeric fields are normalized into [0,1] before a Judgment is built.
type Judgment struct {
	Fidelity        float64        `json:"fidelity"`
	Drift           float64        `json:"drift"`
	Completeness    float64        `json:"completeness"`
	Consistency     float64        `json:"consistency"`
	Preserved       []string       `json:"preserved_facts"`
	Lost            []string       `json:"lost_facts"`
	Added           []string       `json:"added_facts"`
	Reasoning       string         `json:"reasoning"`
	Recommendations []string       `json:"recommendations"`
	OverallScore    float64        `json:"overall_score"`
	Grade           Grade          `json:"quality_grade"`
	Source          JudgmentSource `json:"source"`
}

// ScoreWeights are the coefficients of the overall judgment score.
// Drift enters the sum inverted, as (1 - drift).
type ScoreWeights struct {
	Fidelity     float64 `json:"fidelity" yaml:"fidelity" mapstructure:"fidelity" validate:"min=0,max=1"`
	Drift        float64 `json:"drift" yaml:"drift" mapstructure:"drift" validate:"min=0,max=1"`
	Completeness float64 `json:"completeness" yaml:"completeness" mapstructure:"completeness" validate:"min=0,max=1"`
	Consistency  float64 `json:"consistency" yaml:"consistency" mapstructure:"consistency" validate:"min=0,max=1"`
}

// DefaultScoreWeights are the weights used when none are configured.
var DefaultScoreWeights = ScoreWeights{
	Fidelity:     0.35,
	Drift:        0.25,
	Completeness: 0.25,
	Consistency:  0.15,
}

// Validate requires non-negative weights that sum to one.
func (w ScoreWeights) Validate() error {
	verr := NewValidationError("ScoreWeights")
	checkStruct(verr, w)
	sum := w.Fidelity + w.Drift + w.Completeness + w.Consistency
	if math.Abs(sum-1) > 1e-6 {
		verr.AddCause(ErrInvalidWeights, fmt.Sprintf("weights must sum to 1, got %.6f", sum))
	}
	return verr.ErrOrNil()
}

// Overall computes the weighted overall score.
func (w ScoreWeights) Overall(fidelity, drift, completeness, consistency float64) float64 {
	return fidelity*w.Fidelity +
		(1-drift)*w.Drift +
		completeness*w.Completeness +
		consistency*w.Consistency
}
