package graph

import "testing"

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []NodeStatus{StatusDone, StatusPassed, StatusFailed, StatusSkipped} {
		if !IsTerminalStatus(s) {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	for _, s := range []NodeStatus{StatusPending, StatusRunning, StatusAwaitingHuman, StatusBlocked, "unknown_status"} {
		if IsTerminalStatus(s) {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestIsIncomplete(t *testing.T) {
	for _, s := range []NodeStatus{StatusPending, StatusRunning, StatusAwaitingHuman, StatusBlocked} {
		if !IsIncomplete(s) {
			t.Errorf("expected %q to be incomplete", s)
		}
	}
	for _, s := range []NodeStatus{StatusDone, StatusPassed, StatusFailed, StatusSkipped} {
		if IsIncomplete(s) {
			t.Errorf("expected %q to not be incomplete", s)
		}
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	rp := DefaultRetryPolicy()
	if rp.BackoffMs != 5000 || rp.OnExhaust != "escalate" {
		t.Fatalf("unexpected default retry policy: %+v", rp)
	}
}
