package judge

import (
	"encoding/json"

	"github.com/ahrav/go-handoff/internal/domain"
)

// ResultKind tags how a judgment was obtained.
type ResultKind int

const (
	// KindOK means the provider answered with a well-formed judgment.
	KindOK ResultKind = iota
	// KindUnavailable means no provider call succeeded: the judge is
	// unconfigured, the request failed, or the response was empty.
	KindUnavailable
	// KindParseFailure means the provider answered but no judgment could be
	// parsed from the text.
	KindParseFailure
)

// String implements fmt.Stringer.
func (k ResultKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnavailable:
		return "unavailable"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name.
func (k ResultKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Result is the outcome of judging one handoff.
// Every kind carries a complete Judgment: OK results hold the provider's
// judgment, the others a heuristic one.
type Result struct {
	Kind     ResultKind
	Judgment domain.Judgment

	// Raw is the provider text when it could not be parsed.
	Raw string

	// Err is the provider error behind an Unavailable result, if any.
	Err error
}

// Usable reports whether the result carries a graded judgment.
func (r Result) Usable() bool { return r.Judgment.Grade != "" }

// Fallback reports whether the judgment came from the heuristic.
func (r Result) Fallback() bool { return r.Kind != KindOK }

// MarshalJSON renders the error as a message.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind     ResultKind      `json:"kind"`
		Judgment domain.Judgment `json:"judgment"`
		Raw      string          `json:"raw,omitempty"`
		Error    string          `json:"error,omitempty"`
	}{Kind: r.Kind, Judgment: r.Judgment, Raw: r.Raw}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
