package judge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-handoff/internal/domain"
)

// Normalization bounds and neutral defaults.
const (
	maxItemRunes       = 300
	maxReasoningRunes  = 1000
	maxPreserved       = 15
	maxLost            = 10
	maxAdded           = 10
	maxRecommendations = 5

	nearDuplicateSimilarity = 0.9

	defaultScore       = 0.5
	defaultConsistency = 0.8

	noReasoning = "No detailed reasoning provided."
)

// ErrSchema indicates that a parsed response lacks the minimal judgment
// fields: fidelity, drift and a preserved list.
var ErrSchema = errors.New("judge response does not match the required schema")

// normalize converts a parsed judge response into a bounded Judgment.
// Scores are clamped into [0,1]; unusable score values fall back to neutral
// defaults; lists are trimmed, de-duplicated and capped.
func normalize(obj gjson.Result, weights domain.ScoreWeights) (domain.Judgment, error) {
	var missing []string
	for _, key := range []string{"fidelity", "drift"} {
		if !obj.Get(key).Exists() {
			missing = append(missing, key)
		}
	}
	if !obj.Get("preserved").IsArray() {
		missing = append(missing, "preserved")
	}
	if len(missing) > 0 {
		return domain.Judgment{}, fmt.Errorf("%w: missing %s", ErrSchema, strings.Join(missing, ", "))
	}

	folder := cases.Fold()
	j := domain.Judgment{
		Fidelity:        score(obj.Get("fidelity"), defaultScore),
		Drift:           score(obj.Get("drift"), defaultScore),
		Completeness:    score(obj.Get("completeness"), defaultScore),
		Consistency:     score(obj.Get("consistency"), defaultConsistency),
		Preserved:       stringList(obj.Get("preserved"), maxPreserved, folder),
		Lost:            stringList(obj.Get("lost"), maxLost, folder),
		Added:           stringList(obj.Get("added"), maxAdded, folder),
		Recommendations: stringList(obj.Get("recommendations"), maxRecommendations, folder),
		Reasoning:       reasoning(obj.Get("reasoning")),
		Source:          domain.SourceLLM,
	}
	j.OverallScore = weights.Overall(j.Fidelity, j.Drift, j.Completeness, j.Consistency)
	j.Grade = domain.GradeFor(j.OverallScore)
	return j, nil
}

// score reads a number, or a string holding one, and clamps it into [0,1].
func score(r gjson.Result, fallback float64) float64 {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return fallback
		}
		v = parsed
	default:
		return fallback
	}
	if math.IsNaN(v) {
		return fallback
	}
	return math.Max(0, math.Min(1, v))
}

func stringList(r gjson.Result, limit int, folder cases.Caser) []string {
	out := make([]string, 0)
	if !r.IsArray() {
		return out
	}

	var folded []string
	for _, item := range r.Array() {
		if len(out) == limit {
			break
		}
		s := truncateRunes(itemText(item), maxItemRunes)
		if s == "" {
			continue
		}
		f := folder.String(s)
		if nearDuplicate(f, folded) {
			continue
		}
		out = append(out, s)
		folded = append(folded, f)
	}
	return out
}

func itemText(item gjson.Result) string {
	switch item.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return strings.TrimSpace(item.Str)
	default:
		return strings.TrimSpace(item.Raw)
	}
}

// nearDuplicate reports whether s is within edit-distance similarity
// nearDuplicateSimilarity of any already accepted item.
func nearDuplicate(s string, accepted []string) bool {
	for _, prev := range accepted {
		longest := max(utf8.RuneCountInString(s), utf8.RuneCountInString(prev))
		if longest == 0 {
			return true
		}
		sim := 1 - float64(levenshtein.ComputeDistance(s, prev))/float64(longest)
		if sim >= nearDuplicateSimilarity {
			return true
		}
	}
	return false
}

func reasoning(r gjson.Result) string {
	text := itemText(r)
	if text == "" {
		return noReasoning
	}
	return truncateRunes(text, maxReasoningRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:runeOffset(s, n)])
}
