package judge

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	jsonFencePattern  = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	plainFencePattern = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")
	jsonTagPattern    = regexp.MustCompile(`(?s)<json>\s*(\{.*?\})\s*</json>`)
)

// extraction is one step of the parse cascade. It returns the candidate
// text it isolated, if any.
type extraction struct {
	name    string
	extract func(text string) (string, bool)
}

// cascade lists the extraction strategies in the order they are attempted.
var cascade = []extraction{
	{"direct", func(text string) (string, bool) { return text, true }},
	{"json_fence", submatch(jsonFencePattern)},
	{"plain_fence", submatch(plainFencePattern)},
	{"json_tag", submatch(jsonTagPattern)},
	{"balanced_braces", balancedObject},
	{"brace_span", braceSpan},
}

// extractObject runs the cascade over text and returns the first candidate
// that is a well-formed JSON object, together with the name of the strategy
// that produced it.
func extractObject(text string) (gjson.Result, string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return gjson.Result{}, "", false
	}
	for _, step := range cascade {
		candidate, ok := step.extract(text)
		if !ok {
			continue
		}
		if obj, ok := asObject(candidate); ok {
			return obj, step.name, true
		}
	}
	return gjson.Result{}, "", false
}

func asObject(candidate string) (gjson.Result, bool) {
	candidate = strings.TrimSpace(candidate)
	if !gjson.Valid(candidate) {
		return gjson.Result{}, false
	}
	obj := gjson.Parse(candidate)
	return obj, obj.IsObject()
}

func submatch(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
}

// balancedObject isolates the object starting at the first '{' by matching
// braces, skipping braces inside JSON strings.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// braceSpan slices from the first '{' to the last '}'.
func braceSpan(text string) (string, bool) {
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last <= first {
		return "", false
	}
	return text[first : last+1], true
}
