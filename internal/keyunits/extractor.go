// Package keyunits extracts salient lexical units (JSON key paths, quoted
// phrases, capitalized sequences and frequent terms) from handoff contexts.
// The units serve as human-auditable evidence of what survived a handoff;
// they are not a similarity score.
package keyunits

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/cases"
)

const (
	// DefaultMaxArrayItems bounds how many elements of each JSON array are
	// traversed.
	DefaultMaxArrayItems = 20

	// DefaultTopTerms is the number of frequent terms contributed per text.
	DefaultTopTerms = 10

	// DefaultPreservedLimit is the number of sender units checked for
	// preservation.
	DefaultPreservedLimit = 20
)

var (
	quotedPattern      = regexp.MustCompile(`"([^"]{3,})"|'([^']{3,})'`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]+(?:\s+[A-Z][A-Za-z0-9]+){0,4}\b`)
	termPattern        = regexp.MustCompile(`[A-Za-z0-9]{3,}`)

	stopWords = map[string]struct{}{
		"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
		"from": {}, "your": {}, "you": {}, "are": {}, "was": {}, "were": {},
		"have": {}, "has": {}, "had": {}, "into": {}, "about": {}, "based": {},
		"similar": {},
	}
)

// Extractor pulls key units out of text.
// The zero value is not usable; use New or Default.
// An Extractor holds no mutable state and is safe for concurrent use.
type Extractor struct {
	maxArrayItems  int
	topTerms       int
	preservedLimit int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxArrayItems sets how many elements of each JSON array are flattened.
func WithMaxArrayItems(n int) Option { return func(e *Extractor) { e.maxArrayItems = n } }

// WithTopTerms sets how many frequent terms are contributed.
func WithTopTerms(n int) Option { return func(e *Extractor) { e.topTerms = n } }

// WithPreservedLimit sets the default number of sender units checked by
// KeyInfoPreserved.
func WithPreservedLimit(n int) Option { return func(e *Extractor) { e.preservedLimit = n } }

// New creates an Extractor. Non-positive option values fall back to the
// package defaults.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxArrayItems:  DefaultMaxArrayItems,
		topTerms:       DefaultTopTerms,
		preservedLimit: DefaultPreservedLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.maxArrayItems <= 0 {
		e.maxArrayItems = DefaultMaxArrayItems
	}
	if e.topTerms <= 0 {
		e.topTerms = DefaultTopTerms
	}
	if e.preservedLimit <= 0 {
		e.preservedLimit = DefaultPreservedLimit
	}
	return e
}

// Default is the Extractor used by the package-level functions.
var Default = New()

// ExtractKeyUnits extracts key units from text using default limits.
func ExtractKeyUnits(text string) []string { return Default.Extract(text) }

// ComputeKeyInfoPreserved reports which of the first limit units of sent
// occur in received. A non-positive limit uses DefaultPreservedLimit.
func ComputeKeyInfoPreserved(sent, received string, limit int) []string {
	return Default.KeyInfoPreserved(sent, received, limit)
}

// Extract returns the key units of text in priority order: JSON key paths,
// quoted phrases, capitalized sequences, then frequent terms. Units are
// trimmed and de-duplicated case-insensitively, keeping the first spelling
// seen.
func (e *Extractor) Extract(text string) []string {
	sources := [][]string{
		e.jsonPaths(text),
		quotedPhrases(text),
		capitalizedSequences(text),
		topTerms(text, e.topTerms),
	}

	folder := cases.Fold()
	seen := make(map[string]struct{})
	var units []string
	for _, src := range sources {
		for _, item := range src {
			norm := strings.TrimSpace(item)
			if norm == "" {
				continue
			}
			key := folder.String(norm)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			units = append(units, norm)
		}
	}
	return units
}

// KeyInfoPreserved keeps the first limit units of sent whose folded form is
// a substring of the folded received text. The check is lexical only.
func (e *Extractor) KeyInfoPreserved(sent, received string, limit int) []string {
	if limit <= 0 {
		limit = e.preservedLimit
	}
	units := e.Extract(sent)
	if len(units) > limit {
		units = units[:limit]
	}

	folder := cases.Fold()
	haystack := folder.String(received)
	preserved := make([]string, 0, len(units))
	for _, u := range units {
		if strings.Contains(haystack, folder.String(u)) {
			preserved = append(preserved, u)
		}
	}
	return preserved
}

// jsonPaths flattens a JSON object or array into dotted and bracketed paths
// in document order. Text that is not JSON contributes nothing.
func (e *Extractor) jsonPaths(text string) []string {
	if !gjson.Valid(text) {
		return nil
	}
	var paths []string
	e.flatten(gjson.Parse(text), "", &paths)
	return paths
}

func (e *Extractor) flatten(node gjson.Result, prefix string, out *[]string) {
	switch {
	case node.IsObject():
		node.ForEach(func(key, value gjson.Result) bool {
			path := key.String()
			if prefix != "" {
				path = prefix + "." + path
			}
			*out = append(*out, path)
			e.flatten(value, path, out)
			return true
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			if i >= e.maxArrayItems {
				return false
			}
			path := fmt.Sprintf("%s[%d]", prefix, i)
			*out = append(*out, path)
			e.flatten(value, path, out)
			i++
			return true
		})
	}
}

func quotedPhrases(text string) []string {
	var phrases []string
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		phrase := m[1]
		if phrase == "" {
			phrase = m[2]
		}
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

func capitalizedSequences(text string) []string {
	return capitalizedPattern.FindAllString(text, -1)
}

// topTerms returns the k most frequent lowercase terms of text, excluding
// stop words. Ties keep first-seen order.
func topTerms(text string, k int) []string {
	freq := make(map[string]int)
	var order []string
	for _, tok := range termPattern.FindAllString(text, -1) {
		tok = strings.ToLower(tok)
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if freq[tok] == 0 {
			order = append(order, tok)
		}
		freq[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool { return freq[order[i]] > freq[order[j]] })
	if len(order) > k {
		order = order[:k]
	}
	return order
}
