package governance

import (
	"context"
	"testing"
)

func TestContentPolicy_Evaluate(t *testing.T) {
	policy := NewContentPolicy()
	ctx := context.Background()

	// Test Allow (Default)
	res1, err := policy.Evaluate(ctx, Request{Field: "title", Text: "5 ways to plan a launch"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny by term, case-insensitive
	policy.DenyTerm("Guaranteed Results")
	res2, err := policy.Evaluate(ctx, Request{Field: "title", Text: "GUARANTEED results in 7 days"})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}

	// Test Deny by pattern
	if err := policy.DenyPattern(`\b\d{2,}% off\b`); err != nil {
		t.Fatal(err)
	}
	res3, _ := policy.Evaluate(ctx, Request{Field: "title", Text: "Get 50% off today"})
	if res3.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res3.Effect)
	}

	if err := policy.DenyPattern(`(`); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}
}

func TestViolations(t *testing.T) {
	policy := NewContentPolicy()
	policy.DenyTerm("miracle")

	got := Violations(context.Background(), policy, "topic", []string{"a miracle cure", "a real plan", "Miracle growth"})
	if len(got) != 2 {
		t.Fatalf("Expected 2 violations, got %d: %v", len(got), got)
	}

	if Violations(context.Background(), nil, "topic", []string{"miracle"}) != nil {
		t.Error("nil engine should report no violations")
	}
}
