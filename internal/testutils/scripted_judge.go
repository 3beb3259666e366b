// Package testutils provides deterministic test doubles for the evaluation
// engine's external collaborators.
package testutils

import (
	"context"
	"sync"

	"github.com/ahrav/go-handoff/internal/ports"
)

var _ ports.TextJudge = (*ScriptedJudge)(nil)

// ScriptedResponse is one canned reply of a ScriptedJudge.
type ScriptedResponse struct {
	// Text is returned when Err is nil.
	Text string
	// Err is returned instead of text when set.
	Err error
}

// Reply scripts a successful response.
func Reply(text string) ScriptedResponse { return ScriptedResponse{Text: text} }

// Fail scripts a failed response.
func Fail(err error) ScriptedResponse { return ScriptedResponse{Err: err} }

// ScriptedJudge implements ports.TextJudge by replaying canned responses in
// order. Once the script is exhausted the last response repeats.
// It records every request and is safe for concurrent use.
type ScriptedJudge struct {
	mu        sync.Mutex
	model     string
	responses []ScriptedResponse
	requests  []ports.JudgeRequest
}

// NewScriptedJudge creates a judge that replays responses.
func NewScriptedJudge(model string, responses ...ScriptedResponse) *ScriptedJudge {
	return &ScriptedJudge{model: model, responses: responses}
}

// JudgeText implements ports.TextJudge.
func (s *ScriptedJudge) JudgeText(ctx context.Context, req ports.JudgeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return "", nil
	}
	resp := s.responses[min(idx, len(s.responses)-1)]
	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Text, nil
}

// GetModel implements ports.TextJudge.
func (s *ScriptedJudge) GetModel() string { return s.model }

// Requests returns a copy of every request received so far.
func (s *ScriptedJudge) Requests() []ports.JudgeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.JudgeRequest(nil), s.requests...)
}

// CallCount returns the number of requests received.
func (s *ScriptedJudge) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
