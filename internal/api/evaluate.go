package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nik-kale/guidekit/internal/condition"
)

// evaluateRequest carries either a predicate expression or a content
// activation condition set, plus the evaluation context assembled by the
// host (telemetry fields, route fields, custom attributes).
type evaluateRequest struct {
	Expression *condition.Expression `json:"expression,omitempty"`
	Activation *condition.Activation `json:"activation,omitempty"`
	Context    map[string]any        `json:"context"`
}

type evaluateResponse struct {
	Result   bool     `json:"result"`
	Warnings []string `json:"warnings,omitempty"`
}

// handleEvaluate answers "would this condition activate for this context".
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if req.Expression == nil && req.Activation == nil {
		writeErrorCode(w, r, http.StatusBadRequest, ErrCodeBadRequest, "expression or activation is required")
		return
	}

	ctx := condition.Context(req.Context)
	resp := evaluateResponse{}
	if req.Expression != nil {
		resp.Result = s.eval.Evaluate(*req.Expression, ctx)
	} else {
		resp.Result = s.eval.Activates(*req.Activation, ctx)
		resp.Warnings = req.Activation.Lint()
	}
	writeJSON(w, http.StatusOK, resp)
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
