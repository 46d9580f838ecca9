package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
)

const testAdminKey = "test-key"

func newTestHandler() http.Handler {
	log := zerolog.Nop()
	se := segment.NewEngine(log)
	ex := experiment.NewEngine(log, "test-salt", experiment.WithSegments(se))
	fl := flow.NewEngine(log)
	srv := NewServer(log, testAdminKey, 0, condition.NewEvaluator(log), se, ex, fl, nil)
	return srv.Router()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-API-Key", testAdminKey)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got %s", rr.Body.String())
	}
}

func TestAdminAuth(t *testing.T) {
	handler := newTestHandler()

	seg := map[string]any{
		"id": "s1", "enabled": true,
		"rules": []map[string]any{
			{"conditions": []map[string]any{
				{"kind": "user", "field": "plan", "operator": "equals", "value": "premium"},
			}},
		},
	}

	// Without the key the write is rejected.
	rr := doJSON(t, handler, http.MethodPost, "/v1/segments", seg, false)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rr.Code)
	}
	var errResp ErrorResponse
	decodeBody(t, rr, &errResp)
	if errResp.Code != ErrCodeUnauthorized {
		t.Errorf("Expected code UNAUTHORIZED, got %s", errResp.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/segments", seg, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 with key, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSegmentEndpoints(t *testing.T) {
	handler := newTestHandler()

	seg := map[string]any{
		"id": "premium-users", "enabled": true,
		"rules": []map[string]any{
			{"conditions": []map[string]any{
				{"kind": "user", "field": "plan", "operator": "equals", "value": "premium"},
			}},
		},
	}
	if rr := doJSON(t, handler, http.MethodPost, "/v1/segments", seg, true); rr.Code != http.StatusOK {
		t.Fatalf("define segment: %d %s", rr.Code, rr.Body.String())
	}

	// Invalid definitions come back as validation errors.
	bad := map[string]any{"id": "bad"}
	rr := doJSON(t, handler, http.MethodPost, "/v1/segments", bad, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid segment, got %d", rr.Code)
	}

	attrs := map[string]any{
		"userId": "u1",
		"user":   map[string]any{"plan": "premium"},
	}
	rr = doJSON(t, handler, http.MethodPost, "/v1/profiles/attributes", attrs, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("update attributes: %d %s", rr.Code, rr.Body.String())
	}
	var profile struct {
		Segments []string `json:"segments"`
	}
	decodeBody(t, rr, &profile)
	if len(profile.Segments) != 1 || profile.Segments[0] != "premium-users" {
		t.Fatalf("segments = %v, want [premium-users]", profile.Segments)
	}

	rr = doJSON(t, handler, http.MethodGet, "/v1/profiles/segments?userId=u1", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("segments for: %d", rr.Code)
	}
	var got struct {
		Segments []string `json:"segments"`
	}
	decodeBody(t, rr, &got)
	if len(got.Segments) != 1 {
		t.Fatalf("segments = %v", got.Segments)
	}

	// Identity is required.
	rr = doJSON(t, handler, http.MethodGet, "/v1/profiles/segments", nil, false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without identity, got %d", rr.Code)
	}
}

func TestCohortEndpoints(t *testing.T) {
	handler := newTestHandler()

	member := map[string]any{"userId": "u1", "name": "Beta"}
	if rr := doJSON(t, handler, http.MethodPost, "/v1/cohorts/beta/members", member, false); rr.Code != http.StatusOK {
		t.Fatalf("add member: %d %s", rr.Code, rr.Body.String())
	}
	if rr := doJSON(t, handler, http.MethodDelete, "/v1/cohorts/beta/members", member, false); rr.Code != http.StatusOK {
		t.Fatalf("remove member: %d %s", rr.Code, rr.Body.String())
	}

	// Empty identity is rejected.
	rr := doJSON(t, handler, http.MethodPost, "/v1/cohorts/beta/members", map[string]any{}, false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for empty identity, got %d", rr.Code)
	}
}

func experimentPayload() map[string]any {
	return map[string]any{
		"id": "checkout-cta",
		"variants": []map[string]any{
			{"id": "control", "weight": 50, "isControl": true},
			{"id": "bold-cta", "weight": 50, "config": map[string]any{"label": "Buy now"}},
		},
		"goals": []map[string]any{{"id": "purchase", "primary": true}},
	}
}

func TestExperimentEndpoints(t *testing.T) {
	handler := newTestHandler()

	if rr := doJSON(t, handler, http.MethodPost, "/v1/experiments", experimentPayload(), true); rr.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}

	// Draft experiments answer assign with assigned=false.
	assign := map[string]any{"userId": "u1"}
	rr := doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/assign", assign, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("assign draft: %d", rr.Code)
	}
	var resp assignResponse
	decodeBody(t, rr, &resp)
	if resp.Assigned {
		t.Fatal("draft experiment assigned a variant")
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/status", map[string]any{"status": "running"}, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/assign", assign, false)
	decodeBody(t, rr, &resp)
	if !resp.Assigned || resp.VariantID == "" {
		t.Fatalf("assign running: %+v", resp)
	}
	first := resp.VariantID

	// Assignment is stable across calls.
	rr = doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/assign", assign, false)
	decodeBody(t, rr, &resp)
	if resp.VariantID != first {
		t.Fatalf("assignment moved: %s then %s", first, resp.VariantID)
	}

	if rr := doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/goals/purchase/events", assign, false); rr.Code != http.StatusOK {
		t.Fatalf("track goal: %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/v1/experiments/checkout-cta/analysis", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("analysis: %d", rr.Code)
	}
	var analysis experiment.Analysis
	decodeBody(t, rr, &analysis)
	if analysis.TotalParticipants != 1 {
		t.Fatalf("participants = %d, want 1", analysis.TotalParticipants)
	}

	// Unknown experiment ids map to 404.
	rr = doJSON(t, handler, http.MethodGet, "/v1/experiments/missing/analysis", nil, false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}

	// Invalid lifecycle transitions are client errors.
	rr = doJSON(t, handler, http.MethodPost, "/v1/experiments/checkout-cta/status", map[string]any{"status": "draft"}, true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad transition, got %d", rr.Code)
	}
}

func flowPayload() map[string]any {
	return map[string]any{
		"id":        "onboarding",
		"startStep": "welcome",
		"settings":  map[string]any{"allowSkip": true},
		"steps": []map[string]any{
			{"id": "welcome", "order": 1},
			{"id": "setup", "order": 2},
			{"id": "done", "order": 3},
		},
	}
}

func TestFlowEndpoints(t *testing.T) {
	handler := newTestHandler()

	if rr := doJSON(t, handler, http.MethodPost, "/v1/flows", flowPayload(), true); rr.Code != http.StatusOK {
		t.Fatalf("define flow: %d %s", rr.Code, rr.Body.String())
	}

	rr := doJSON(t, handler, http.MethodPost, "/v1/flows/onboarding/start", map[string]any{"userId": "u1"}, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}
	var exec executionResponse
	decodeBody(t, rr, &exec)
	if exec.CurrentStep != "welcome" || exec.Status != "active" {
		t.Fatalf("start response: %+v", exec)
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/"+exec.ExecutionID+"/advance", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("advance: %d %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &exec)
	if exec.CurrentStep != "setup" {
		t.Fatalf("step = %s, want setup", exec.CurrentStep)
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/"+exec.ExecutionID+"/skip", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("skip: %d %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &exec)
	if len(exec.Skipped) != 1 {
		t.Fatalf("skipped = %v", exec.Skipped)
	}

	rr = doJSON(t, handler, http.MethodGet, "/v1/executions/"+exec.ExecutionID+"/progress", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("progress: %d", rr.Code)
	}
	var progress flow.Progress
	decodeBody(t, rr, &progress)
	if progress.TotalSteps != 3 || progress.SkippedSteps != 1 {
		t.Fatalf("progress: %+v", progress)
	}

	// Back-navigation is not allowed by this flow's settings.
	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/"+exec.ExecutionID+"/back", nil, false)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for back, got %d", rr.Code)
	}

	// Complete the flow, then verify terminal conflict.
	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/"+exec.ExecutionID+"/advance", nil, false)
	decodeBody(t, rr, &exec)
	if exec.Status != "completed" {
		t.Fatalf("status = %s, want completed", exec.Status)
	}
	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/"+exec.ExecutionID+"/advance", nil, false)
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for terminal execution, got %d", rr.Code)
	}

	// Unknown executions map to 404.
	rr = doJSON(t, handler, http.MethodPost, "/v1/executions/missing/advance", nil, false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}

	// Admin stop aborts active executions.
	rr = doJSON(t, handler, http.MethodPost, "/v1/flows/onboarding/start", map[string]any{"userId": "u2"}, false)
	decodeBody(t, rr, &exec)
	rr = doJSON(t, handler, http.MethodPost, "/v1/flows/onboarding/stop", nil, true)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop: %d", rr.Code)
	}
	var stop struct {
		Aborted int `json:"aborted"`
	}
	decodeBody(t, rr, &stop)
	if stop.Aborted != 1 {
		t.Fatalf("aborted = %d, want 1", stop.Aborted)
	}
}

func TestChecklistEndpoints(t *testing.T) {
	handler := newTestHandler()

	checklist := map[string]any{
		"id": "getting-started",
		"items": []map[string]any{
			{"id": "profile", "label": "Fill in your profile"},
			{"id": "invite", "label": "Invite a teammate"},
		},
	}
	if rr := doJSON(t, handler, http.MethodPost, "/v1/checklists", checklist, true); rr.Code != http.StatusOK {
		t.Fatalf("define checklist: %d %s", rr.Code, rr.Body.String())
	}

	rr := doJSON(t, handler, http.MethodPost, "/v1/checklists/getting-started/items/profile", map[string]any{"completed": true}, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rr.Code, rr.Body.String())
	}
	var toggle struct {
		Percent int `json:"percent"`
	}
	decodeBody(t, rr, &toggle)
	if toggle.Percent != 50 {
		t.Fatalf("percent = %d, want 50", toggle.Percent)
	}

	rr = doJSON(t, handler, http.MethodPost, "/v1/checklists/missing/items/profile", map[string]any{"completed": true}, false)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	handler := newTestHandler()

	payload := map[string]any{
		"expression": map[string]any{"operator": "equals", "field": "user.plan", "value": "premium"},
		"context":    map[string]any{"user": map[string]any{"plan": "premium"}},
	}
	rr := doJSON(t, handler, http.MethodPost, "/v1/evaluate", payload, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate: %d %s", rr.Code, rr.Body.String())
	}
	var resp evaluateResponse
	decodeBody(t, rr, &resp)
	if !resp.Result {
		t.Fatal("expected expression to evaluate true")
	}

	payload = map[string]any{
		"activation": map[string]any{},
		"context":    map[string]any{},
	}
	rr = doJSON(t, handler, http.MethodPost, "/v1/evaluate", payload, false)
	decodeBody(t, rr, &resp)
	if resp.Result {
		t.Fatal("empty activation must not activate")
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1 lint warning", resp.Warnings)
	}

	// Neither expression nor activation is a client error.
	rr = doJSON(t, handler, http.MethodPost, "/v1/evaluate", map[string]any{"context": map[string]any{}}, false)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}

	// Malformed JSON is a client error.
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for malformed JSON, got %d", w.Code)
	}
}
