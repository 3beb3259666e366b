package judge

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

// TruncationMarker is appended to contexts cut by SmartTruncate.
const TruncationMarker = "...[truncated]"

// boundaryThreshold is the fraction of the budget a natural boundary must
// lie beyond to be preferred over a hard cut.
const boundaryThreshold = 0.8

// truncationBoundaries are tried in order; the first one found late enough
// in the budget wins.
var truncationBoundaries = []string{". ", "\n", "- ", "}", "]"}

const systemPrompt = "You are an expert AI system evaluator specializing in information transfer analysis. " +
	"You assess how well information is preserved when passed between AI agents. " +
	"You MUST respond with ONLY valid JSON - no explanations outside the JSON structure. " +
	"Be precise, analytical, and thorough in your evaluation."

const chainOfThoughtPrompt = `Analyze this agent-to-agent information handoff:

**CONTEXT SENT (Source Agent):**
{{.Sent}}

**CONTEXT RECEIVED (Target Agent):**
{{.Received}}

Evaluate the quality of information transfer. Think step-by-step:

1. **Fidelity Analysis**: What fraction of the original information was accurately preserved?
2. **Drift Detection**: How much did the meaning deviate from the original?
3. **Completeness Check**: What proportion of the source context is covered?
4. **Consistency Validation**: Is the received context internally coherent?
5. **Fact Tracking**: Which specific facts were preserved, lost, or added?

Respond with ONLY this JSON structure (no other text):

{
  "fidelity": <float 0.0-1.0>,
  "drift": <float 0.0-1.0>,
  "completeness": <float 0.0-1.0>,
  "consistency": <float 0.0-1.0>,
  "preserved": ["fact1", "fact2", ...],
  "lost": ["missing_fact1", ...],
  "added": ["new_fact1", ...],
  "reasoning": "Brief explanation of scores",
  "recommendations": ["improvement1", ...]
}

Guidelines:
- fidelity: 1.0 = perfect preservation, 0.0 = completely different
- drift: 0.0 = no semantic change, 1.0 = completely different meaning
- completeness: 1.0 = all info covered, 0.0 = nothing covered
- consistency: 1.0 = perfectly coherent, 0.0 = contradictory
- preserved: 5-10 key facts that survived the handoff
- lost: important facts that were dropped (if any)
- added: facts in received but not in sent (potential hallucinations)
- reasoning: 2-3 sentences explaining the evaluation
- recommendations: 2-3 actionable suggestions for improvement

JSON Response:`

const simplePrompt = `Evaluate this information handoff:

SENT:
{{.Sent}}

RECEIVED:
{{.Received}}

Respond with ONLY valid JSON (no other text):

{
  "fidelity": <0.0-1.0>,
  "drift": <0.0-1.0>,
  "completeness": <0.0-1.0>,
  "consistency": <0.0-1.0>,
  "preserved": ["fact1", "fact2"],
  "lost": ["missing1"],
  "added": ["new1"],
  "reasoning": "explanation",
  "recommendations": ["suggestion1"]
}

JSON:`

var (
	chainOfThoughtTemplate = template.Must(template.New("chainOfThought").Parse(chainOfThoughtPrompt))
	simpleTemplate         = template.Must(template.New("simple").Parse(simplePrompt))
)

// promptData is substituted into the user prompt templates.
type promptData struct {
	Sent     string
	Received string
}

// SystemPrompt returns the instruction demanding JSON-only output.
func SystemPrompt() string { return systemPrompt }

// UserPrompt renders the user prompt embedding both contexts, each cut to
// maxChars with SmartTruncate.
func UserPrompt(sent, received string, maxChars int, chainOfThought bool) (string, error) {
	tmpl := simpleTemplate
	if chainOfThought {
		tmpl = chainOfThoughtTemplate
	}

	var buf bytes.Buffer
	data := promptData{
		Sent:     SmartTruncate(sent, maxChars),
		Received: SmartTruncate(received, maxChars),
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// SmartTruncate shortens text to at most maxChars runes, preferring to cut
// just after a sentence end, line break, list item or closing brace found in
// the last fifth of the budget. Truncated text ends with TruncationMarker.
// A non-positive maxChars disables truncation.
func SmartTruncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	cut := runeOffset(text, maxChars)
	truncated := text[:cut]
	threshold := float64(maxChars) * boundaryThreshold

	for _, boundary := range truncationBoundaries {
		idx := strings.LastIndex(truncated, boundary)
		if idx < 0 {
			continue
		}
		if float64(utf8.RuneCountInString(truncated[:idx])) > threshold {
			return truncated[:idx+len(boundary)] + TruncationMarker
		}
	}
	return truncated + TruncationMarker
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
