package tor

import "testing"

// TestStateString tests state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		state    State
		expected string
	}{
		{NotReady, "NotReady"},
		{Initializing, "Initializing"},
		{Failed, "Failed"},
		{Running(BootstrapStatus{Progress: 100, Tag: "done"}), "Running(100% (done))"},
		{State{Kind: Kind(42)}, "Unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := tc.state.String(); got != tc.expected {
				t.Errorf("String() = %q, expected %q", got, tc.expected)
			}
		})
	}
}

// TestStateEquality verifies that States compare by value.
func TestStateEquality(t *testing.T) {
	t.Parallel()

	a := Running(BootstrapStatus{Severity: "NOTICE", Progress: 50, Tag: "loading_descriptors"})
	b := Running(BootstrapStatus{Severity: "NOTICE", Progress: 50, Tag: "loading_descriptors"})
	c := Running(BootstrapStatus{Severity: "NOTICE", Progress: 55, Tag: "loading_descriptors"})

	if a != b {
		t.Error("expected identical Running states to be equal")
	}
	if a == c {
		t.Error("expected Running states with different progress to differ")
	}
	if NotReady == Failed {
		t.Error("expected NotReady and Failed to differ")
	}
}

// TestStateStatus tests the coarse UI status mapping.
func TestStateStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		state    State
		expected Status
	}{
		{"not ready is disconnected", NotReady, StatusDisconnected},
		{"initializing is in progress", Initializing, StatusInProgress},
		{"partial bootstrap is in progress", Running(BootstrapStatus{Progress: 40}), StatusInProgress},
		{"full bootstrap is connected", Running(BootstrapStatus{Progress: 100}), StatusConnected},
		{"failed is failed", Failed, StatusFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.state.Status(); got != tc.expected {
				t.Errorf("Status() = %q, expected %q", got, tc.expected)
			}
		})
	}
}
