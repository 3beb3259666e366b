package judge

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/ahrav/go-handoff/internal/domain"
)

const heuristicNotice = "[Heuristic evaluation - detailed analysis unavailable]"

var heuristicRecommendations = []string{
	"Re-run evaluation with proper LLM response",
	"Check context format compatibility",
}

// Heuristic estimates a judgment without a provider, from the length ratio
// of the two contexts and the Jaccard overlap of their lowercase words.
func Heuristic(sent, received string, weights domain.ScoreWeights, consistencyPrior float64) domain.Judgment {
	sentLen := utf8.RuneCountInString(sent)
	lengthRatio := math.Min(float64(utf8.RuneCountInString(received))/float64(max(sentLen, 1)), 1)
	overlap := wordOverlap(sent, received)

	fidelity := (lengthRatio + overlap) / 2
	drift := 1 - overlap
	completeness := lengthRatio

	return domain.Judgment{
		Fidelity:     fidelity,
		Drift:        drift,
		Completeness: completeness,
		Consistency:  consistencyPrior,
		Preserved:    []string{heuristicNotice},
		Lost:         []string{},
		Added:        []string{},
		Reasoning: fmt.Sprintf(
			"Fallback heuristic evaluation; no LLM judgment was available. Length ratio: %.2f, Keyword overlap: %.2f",
			lengthRatio, overlap),
		Recommendations: append([]string(nil), heuristicRecommendations...),
		OverallScore:    weights.Overall(fidelity, drift, completeness, consistencyPrior),
		Grade:           domain.GradeFor((fidelity + (1 - drift) + completeness) / 3),
		Source:          domain.SourceHeuristic,
	}
}

func wordOverlap(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	var inter int
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(max(union, 1))
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
