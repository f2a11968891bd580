package graph

import "testing"

func TestInterpretVerdictForceActionFails(t *testing.T) {
	v := interpretVerdict(VerifyOutcome{Passed: true, ForceAction: true})
	if v.status != StatusFailed {
		t.Fatalf("expected forceAction to fail regardless of passed, got %q", v.status)
	}
}

func TestInterpretVerdictNeedsLLMAwaitsHuman(t *testing.T) {
	v := interpretVerdict(VerifyOutcome{Passed: false, NeedsLLM: true})
	if v.status != StatusAwaitingHuman {
		t.Fatalf("expected needsLlm to await human, got %q", v.status)
	}
}

func TestInterpretVerdictPassed(t *testing.T) {
	v := interpretVerdict(VerifyOutcome{Passed: true, Results: []string{"ok"}})
	if v.status != StatusPassed {
		t.Fatalf("expected passed, got %q", v.status)
	}
	if !v.verified.Passed || len(v.verified.Checks) != 1 {
		t.Fatalf("unexpected verification result: %+v", v.verified)
	}
}

func TestInterpretVerdictFailed(t *testing.T) {
	v := interpretVerdict(VerifyOutcome{Passed: false})
	if v.status != StatusFailed {
		t.Fatalf("expected failed, got %q", v.status)
	}
}
