// Package scoring computes per-handoff information survival metrics:
// fidelity, relevance drift, compression efficiency, temporal coherence and
// response utility. Every function is pure and deterministic, and works
// without an embedding model by falling back to lexical term statistics.
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultTopK is the number of most frequent terms compared by drift.
	DefaultTopK = 10

	// DefaultDriftBlend is the weight of the fidelity-based component of
	// drift; the remainder weighs the top-term divergence.
	DefaultDriftBlend = 0.5

	// relativeEpsilon bounds the denominator of relative response utility.
	relativeEpsilon = 1e-8

	// zeroNormSquared treats vectors with a norm below 1e-12 as zero.
	zeroNormSquared = 1e-24
)

var (
	tokenPattern   = regexp.MustCompile(`[A-Za-z0-9]+`)
	yearPattern    = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	isoDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// UtilityMode selects how response utility expresses improvement.
type UtilityMode string

const (
	// UtilityAbsolute reports the raw score delta.
	UtilityAbsolute UtilityMode = "absolute"
	// UtilityRelative reports the delta relative to the baseline magnitude.
	UtilityRelative UtilityMode = "relative"
)

// Engine computes handoff metrics with tunable drift parameters.
// The zero value is not usable; start from DefaultEngine.
type Engine struct {
	// TopK is the number of frequent terms compared on each side by drift.
	TopK int

	// DriftBlend weighs (1 - fidelity) against top-term divergence.
	DriftBlend float64
}

// DefaultEngine is used by the package-level functions.
var DefaultEngine = Engine{TopK: DefaultTopK, DriftBlend: DefaultDriftBlend}

// HandoffInput is the raw material of one handoff evaluation.
type HandoffInput struct {
	Sent     string
	Received string

	// TokensBefore and TokensAfter are nil when unknown; compression is
	// then reported as 0.
	TokensBefore *int
	TokensAfter  *int

	// SentVec and ReceivedVec are optional embeddings. Both must be
	// present for vector fidelity to be used.
	SentVec     []float64
	ReceivedVec []float64
}

// HandoffMetrics are the scores computed for one handoff.
type HandoffMetrics struct {
	Fidelity    float64
	Drift       float64
	Compression float64

	// TemporalCoherence is nil when either side lacks temporal markers.
	TemporalCoherence *float64
}

// Fidelity estimates the fraction of information preserved, in [0,1].
func Fidelity(sent, received string, sentVec, receivedVec []float64) (float64, error) {
	return DefaultEngine.Fidelity(sent, received, sentVec, receivedVec)
}

// RelevanceDrift estimates topical deviation, in [0,1]. A non-positive topK
// uses DefaultTopK.
func RelevanceDrift(sent, received string, sentVec, receivedVec []float64, topK int) (float64, error) {
	e := DefaultEngine
	if topK > 0 {
		e.TopK = topK
	}
	return e.RelevanceDrift(sent, received, sentVec, receivedVec)
}

// EvaluateHandoff computes every core metric with DefaultEngine.
func EvaluateHandoff(in HandoffInput) (HandoffMetrics, error) {
	return DefaultEngine.EvaluateHandoff(in)
}

// Fidelity uses vector cosine similarity mapped from [-1,1] to [0,1] when
// both vectors are supplied, and term-frequency cosine over the combined
// vocabulary otherwise. A zero-norm side yields 0.
func (e Engine) Fidelity(sent, received string, sentVec, receivedVec []float64) (float64, error) {
	if sentVec != nil && receivedVec != nil {
		if len(sentVec) != len(receivedVec) {
			return 0, newMetricError("fidelity", ErrVectorShape, "got %d vs %d", len(sentVec), len(receivedVec))
		}
		sim := cosine(sentVec, receivedVec)
		return clip01(0.5 * (sim + 1)), nil
	}
	return clip01(termCosine(tokenize(sent), tokenize(received))), nil
}

// RelevanceDrift blends (1 - fidelity) with the Jaccard distance between the
// top-K term sets of each side. When both sets are empty the term component
// is undefined and the fidelity component is returned alone.
func (e Engine) RelevanceDrift(sent, received string, sentVec, receivedVec []float64) (float64, error) {
	fidelity, err := e.Fidelity(sent, received, sentVec, receivedVec)
	if err != nil {
		return 0, err
	}
	return e.drift(fidelity, tokenize(sent), tokenize(received)), nil
}

func (e Engine) drift(fidelity float64, sentTokens, receivedTokens []string) float64 {
	base := 1 - fidelity
	topA := topKSet(sentTokens, e.TopK)
	topB := topKSet(receivedTokens, e.TopK)
	if len(topA) == 0 && len(topB) == 0 {
		return base
	}
	termDrift := 1 - jaccard(topA, topB)
	return clip01(e.DriftBlend*base + (1-e.DriftBlend)*termDrift)
}

// EvaluateHandoff computes fidelity, drift, compression and temporal
// coherence for one handoff. Compression is 0 unless both token counts are
// supplied.
func (e Engine) EvaluateHandoff(in HandoffInput) (HandoffMetrics, error) {
	fidelity, err := e.Fidelity(in.Sent, in.Received, in.SentVec, in.ReceivedVec)
	if err != nil {
		return HandoffMetrics{}, err
	}

	var compression float64
	if in.TokensBefore != nil && in.TokensAfter != nil {
		if compression, err = CompressionEfficiency(*in.TokensBefore, *in.TokensAfter); err != nil {
			return HandoffMetrics{}, err
		}
	}

	return HandoffMetrics{
		Fidelity:          fidelity,
		Drift:             e.drift(fidelity, tokenize(in.Sent), tokenize(in.Received)),
		Compression:       compression,
		TemporalCoherence: TemporalCoherence(in.Sent, in.Received),
	}, nil
}

// CompressionEfficiency returns the relative token reduction in [0,1].
// Expansion yields exactly 0.
func CompressionEfficiency(before, after int) (float64, error) {
	if before < 0 || after < 0 {
		return 0, newMetricError("compression", ErrNegativeTokens, "before=%d after=%d", before, after)
	}
	if after > before {
		return 0, nil
	}
	return float64(before-after) / float64(max(before, 1)), nil
}

// TemporalCoherence returns the Jaccard similarity of the year and ISO date
// markers found on each side. It returns nil when either side has no
// markers, since coherence is undefined without a signal to compare.
func TemporalCoherence(sent, received string) *float64 {
	a := temporalMarkers(sent)
	b := temporalMarkers(received)
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	v := clip01(jaccard(a, b))
	return &v
}

// ResponseUtility measures how much supplying context improved a downstream
// score.
func ResponseUtility(baseline, withContext float64, mode UtilityMode) (float64, error) {
	delta := withContext - baseline
	switch mode {
	case UtilityAbsolute:
		return delta, nil
	case UtilityRelative:
		return delta / math.Max(math.Abs(baseline), relativeEpsilon), nil
	default:
		return 0, newMetricError("response_utility", ErrUnknownUtilityMode, "%q", string(mode))
	}
}

func tokenize(text string) []string {
	tokens := tokenPattern.FindAllString(text, -1)
	for i, t := range tokens {
		tokens[i] = strings.ToLower(t)
	}
	return tokens
}

// cosine divides by the square root of the product of squared norms so
// identical vectors score exactly 1.
func cosine(a, b []float64) float64 {
	var dot, sa, sb float64
	for i := range a {
		dot += a[i] * b[i]
		sa += a[i] * a[i]
		sb += b[i] * b[i]
	}
	if sa < zeroNormSquared || sb < zeroNormSquared {
		return 0
	}
	return dot / math.Sqrt(sa*sb)
}

// termCosine builds term-frequency vectors over the combined vocabulary in
// first-seen order, keeping the summation order deterministic.
func termCosine(a, b []string) float64 {
	countA, vocab := countTerms(a, nil)
	countB, vocab := countTerms(b, vocab)
	if len(vocab) == 0 {
		return 0
	}
	va := make([]float64, len(vocab))
	vb := make([]float64, len(vocab))
	for i, t := range vocab {
		va[i] = float64(countA[t])
		vb[i] = float64(countB[t])
	}
	return cosine(va, vb)
}

func countTerms(tokens, vocab []string) (map[string]int, []string) {
	counts := make(map[string]int, len(tokens))
	seen := make(map[string]struct{}, len(vocab))
	for _, t := range vocab {
		seen[t] = struct{}{}
	}
	for _, t := range tokens {
		counts[t]++
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			vocab = append(vocab, t)
		}
	}
	return counts, vocab
}

// topKSet returns the k most frequent tokens; ties keep first-seen order.
func topKSet(tokens []string, k int) map[string]struct{} {
	counts, order := countTerms(tokens, nil)
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > k {
		order = order[:k]
	}
	set := make(map[string]struct{}, len(order))
	for _, t := range order {
		set[t] = struct{}{}
	}
	return set
}

func temporalMarkers(text string) map[string]struct{} {
	markers := make(map[string]struct{})
	for _, m := range yearPattern.FindAllString(text, -1) {
		markers[m] = struct{}{}
	}
	for _, m := range isoDatePattern.FindAllString(text, -1) {
		markers[m] = struct{}{}
	}
	return markers
}

func jaccard(a, b map[string]struct{}) float64 {
	var inter int
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
