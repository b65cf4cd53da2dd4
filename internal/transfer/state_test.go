package transfer

import "testing"

func TestParseState(t *testing.T) {
	cases := []struct {
		raw  string
		want State
	}{
		{"downloading", StateDownloading},
		{"forcedDL", StateDownloading},
		{"metaDL", StateDownloading},
		{"uploading", StateSeeding},
		{"stalledUP", StateSeeding},
		{"pausedUP", StateSeeding},
		{"stalledDL", StateStalled},
		{"error", StateErrored},
		{"missingFiles", StateErrored},
		{"pausedDL", StatePaused},
		{"queuedDL", StateQueued},
		{"checkingDL", StateChecking},
		{"", StateUnknown},
		{"somethingNew", StateUnknown},
	}
	for _, tc := range cases {
		if got := ParseState(tc.raw); got != tc.want {
			t.Errorf("ParseState(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestParseStateStalledErrorAmbiguity(t *testing.T) {
	// A raw state carrying both markers must classify as errored, and both
	// classifications funnel to the same forced-resume remedy either way.
	got := ParseState("stalledError")
	if got != StateErrored {
		t.Fatalf("ParseState(stalledError) = %s, want %s", got, StateErrored)
	}
	if !got.NeedsIntervention() || !StateStalled.NeedsIntervention() {
		t.Fatal("both stalled and errored must need intervention")
	}
}

func TestStateCompleted(t *testing.T) {
	if !StateSeeding.Completed() {
		t.Fatal("seeding means the payload is on disk")
	}
	for _, s := range []State{StateQueued, StateDownloading, StateStalled, StateErrored, StatePaused, StateChecking, StateUnknown} {
		if s.Completed() {
			t.Errorf("%s must not report completed", s)
		}
	}
}
