package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/nik-kale/guidekit/internal/api"
	"github.com/nik-kale/guidekit/internal/condition"
	"github.com/nik-kale/guidekit/internal/experiment"
	"github.com/nik-kale/guidekit/internal/flow"
	"github.com/nik-kale/guidekit/internal/segment"
	"github.com/nik-kale/guidekit/internal/snapshot"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zerolog.Nop()
	se := segment.NewEngine(log)
	ex := experiment.NewEngine(log, "test-salt", experiment.WithSegments(se))
	fl := flow.NewEngine(log)
	srv := api.NewServer(log, "test-key", 0, condition.NewEvaluator(log), se, ex, fl, nil,
		api.WithSnapshot(snapshot.NewHolder()))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func testSegment() segment.Segment {
	return segment.Segment{
		ID:      "premium-users",
		Enabled: true,
		Rules: []segment.Rule{{
			Conditions: []segment.Condition{{
				Kind:     segment.KindUser,
				Field:    "plan",
				Operator: condition.OpEquals,
				Value:    "premium",
			}},
		}},
	}
}

func TestDefineSegment(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "test-key")

	if err := c.DefineSegment(context.Background(), testSegment()); err != nil {
		t.Fatalf("DefineSegment: %v", err)
	}
}

func TestDefineSegment_BadKey(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "wrong-key")

	err := c.DefineSegment(context.Background(), testSegment())
	if err == nil {
		t.Fatal("expected error with wrong API key")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want status 401", err)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "test-key")
	ctx := context.Background()

	exp := experiment.Experiment{
		ID: "checkout-cta",
		Variants: []experiment.Variant{
			{ID: "control", Weight: 50, IsControl: true},
			{ID: "bold-cta", Weight: 50},
		},
	}
	if err := c.CreateExperiment(ctx, exp); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}
	if err := c.SetExperimentStatus(ctx, "checkout-cta", experiment.StatusRunning); err != nil {
		t.Fatalf("SetExperimentStatus: %v", err)
	}

	// Invalid transitions surface as API errors.
	if err := c.SetExperimentStatus(ctx, "checkout-cta", experiment.StatusDraft); err == nil {
		t.Error("expected error for running -> draft")
	}
}

func TestDefineFlow_ReturnsWarnings(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "test-key")

	def := flow.Flow{
		ID:        "onboarding",
		StartStep: "welcome",
		Steps: []flow.Step{
			{ID: "welcome", Order: 1, Branches: []flow.Branch{
				{Target: "done", Kind: flow.BranchEvent},
			}},
			{ID: "done", Order: 2},
		},
	}
	warnings, err := c.DefineFlow(context.Background(), def)
	if err != nil {
		t.Fatalf("DefineFlow: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning for the event branch")
	}
}

func TestDefineChecklist(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "test-key")

	def := flow.Checklist{
		ID: "getting-started",
		Items: []flow.ChecklistItem{
			{ID: "profile", Label: "Fill in your profile"},
		},
	}
	if err := c.DefineChecklist(context.Background(), def); err != nil {
		t.Fatalf("DefineChecklist: %v", err)
	}
}

func TestDefinitions_ConditionalFetch(t *testing.T) {
	ts := newTestServer(t)
	c := New(ts.URL, "test-key")
	ctx := context.Background()

	if err := c.DefineSegment(ctx, testSegment()); err != nil {
		t.Fatalf("DefineSegment: %v", err)
	}

	snap, err := c.Definitions(ctx, "")
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if snap == nil || len(snap.Definitions["segment"]) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Conditional fetch with the current ETag is not modified.
	again, err := c.Definitions(ctx, snap.ETag)
	if err != nil {
		t.Fatalf("conditional Definitions: %v", err)
	}
	if again != nil {
		t.Errorf("expected nil snapshot for matching ETag, got %+v", again)
	}
}
