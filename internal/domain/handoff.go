package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Reserved metadata keys that are promoted to typed fields.
const (
	MetadataKeyFormat = "format"
	MetadataKeyTokens = "tokens"
)

// VectorBundle carries optional precomputed embeddings for a handoff.
// A nil slice means the vector is absent; a present vector must be non-empty.
type VectorBundle struct {
	Sent     []float64 `json:"sent,omitempty"`
	Received []float64 `json:"received,omitempty"`
	Output   []float64 `json:"output,omitempty"`
}

// Validate rejects vectors that are present but empty or non-finite.
func (v *VectorBundle) Validate() error {
	verr := NewValidationError("VectorBundle")
	v.check(verr)
	return verr.ErrOrNil()
}

func (v *VectorBundle) check(verr *ValidationError) {
	if v == nil {
		return
	}
	for _, vec := range []struct {
		name   string
		values []float64
	}{
		{"vectors.sent", v.Sent},
		{"vectors.received", v.Received},
		{"vectors.output", v.Output},
	} {
		if vec.values == nil {
			continue
		}
		if len(vec.values) == 0 {
			verr.AddCause(ErrEmptyVector, fmt.Sprintf("%s must be non-empty when present", vec.name))
			continue
		}
		for i, x := range vec.values {
			checkFinite(verr, fmt.Sprintf("%s[%d]", vec.name, i), x)
		}
	}
}

// TokenCounts records the token volume on each side of a handoff.
type TokenCounts struct {
	Before int `json:"before" validate:"gte=0"`
	After  int `json:"after" validate:"gte=0"`
}

// HandoffMetadata is the open key/value map attached to a handoff record.
// Format is the one structurally significant key: it discriminates the
// context representation and drives per-format rollups.
type HandoffMetadata struct {
	Format string         `json:"format" validate:"required,format"`
	Tokens TokenCounts    `json:"tokens"`
	Extra  map[string]any `json:"-" validate:"-"`
}

// NewHandoffMetadata builds metadata from a typed format and token counts plus
// free-form extras. Reserved keys in extra are ignored.
func NewHandoffMetadata(format string, tokens TokenCounts, extra map[string]any) HandoffMetadata {
	md := HandoffMetadata{Format: format, Tokens: tokens}
	if len(extra) > 0 {
		md.Extra = make(map[string]any, len(extra))
		for k, v := range extra {
			if k == MetadataKeyFormat || k == MetadataKeyTokens {
				continue
			}
			md.Extra[k] = v
		}
	}
	return md
}

// MarshalJSON flattens Extra next to the typed keys.
func (m HandoffMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	maps.Copy(out, m.Extra)
	out[MetadataKeyFormat] = m.Format
	out[MetadataKeyTokens] = m.Tokens
	return json.Marshal(out)
}

// UnmarshalJSON splits the typed keys from the free-form remainder.
func (m *HandoffMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = HandoffMetadata{}
	if f, ok := raw[MetadataKeyFormat]; ok {
		if err := json.Unmarshal(f, &m.Format); err != nil {
			return fmt.Errorf("metadata.format: %w", err)
		}
		delete(raw, MetadataKeyFormat)
	}
	if t, ok := raw[MetadataKeyTokens]; ok {
		if err := json.Unmarshal(t, &m.Tokens); err != nil {
			return fmt.Errorf("metadata.tokens: %w", err)
		}
		delete(raw, MetadataKeyTokens)
	}

	if len(raw) == 0 {
		return nil
	}
	m.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("metadata.%s: %w", k, err)
		}
		m.Extra[k] = val
	}
	return nil
}

// HandoffEvaluation is the immutable record of one stage-to-stage transfer.
// Records are created once and appended; they are never updated in place.
type HandoffEvaluation struct {
	PipelineID       string          `json:"pipeline_id" validate:"required"`
	HandoffID        string          `json:"handoff_id" validate:"required"`
	AgentFrom        string          `json:"agent_from" validate:"required"`
	AgentTo          string          `json:"agent_to" validate:"required"`
	ContextSent      string          `json:"context_sent"`
	ContextReceived  string          `json:"context_received"`
	EvalScores       EvalScores      `json:"eval_scores"`
	Vectors          *VectorBundle   `json:"vectors,omitempty" validate:"-"`
	KeyInfoPreserved []string        `json:"key_info_preserved"`
	Metadata         HandoffMetadata `json:"metadata"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Validate runs the complete schema check over the record.
func (h *HandoffEvaluation) Validate() error {
	verr := NewValidationError("HandoffEvaluation")
	h.EvalScores.checkFinite(verr)
	h.Vectors.check(verr)
	checkStruct(verr, h)
	return verr.ErrOrNil()
}
