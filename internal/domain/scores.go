package domain

// EvalScores holds the per-handoff metric values.
// Fidelity, Drift and Compression are required and bounded to [0,1].
// TemporalCoherence is nil when neither side carried a temporal signal.
// ResponseUtility is an unbounded delta and nil when not measured.
type EvalScores struct {
	Fidelity          float64  `json:"fidelity" validate:"min=0,max=1"`
	Drift             float64  `json:"drift" validate:"min=0,max=1"`
	Compression       float64  `json:"compression" validate:"min=0,max=1"`
	TemporalCoherence *float64 `json:"temporal_coherence,omitempty" validate:"omitempty,min=0,max=1"`
	ResponseUtility   *float64 `json:"response_utility,omitempty"`
}

// NewEvalScores constructs an EvalScores value, rejecting out-of-range
// values instead of clamping them.
func NewEvalScores(fidelity, drift, compression float64, temporal, utility *float64) (EvalScores, error) {
	s := EvalScores{
		Fidelity:          fidelity,
		Drift:             drift,
		Compression:       compression,
		TemporalCoherence: temporal,
		ResponseUtility:   utility,
	}
	if err := s.Validate(); err != nil {
		return EvalScores{}, err
	}
	return s, nil
}

// Validate checks every score against its range.
func (s EvalScores) Validate() error {
	verr := NewValidationError("EvalScores")
	s.checkFinite(verr)
	checkStruct(verr, s)
	return verr.ErrOrNil()
}

func (s EvalScores) checkFinite(verr *ValidationError) {
	checkFinite(verr, "fidelity", s.Fidelity)
	checkFinite(verr, "drift", s.Drift)
	checkFinite(verr, "compression", s.Compression)
	if s.TemporalCoherence != nil {
		checkFinite(verr, "temporal_coherence", *s.TemporalCoherence)
	}
	if s.ResponseUtility != nil {
		checkFinite(verr, "response_utility", *s.ResponseUtility)
	}
}

// Float returns a pointer to v, for populating optional score fields.
func Float(v float64) *float64 { return &v }
