package transfer

import "strings"

// State is the closed set of transfer conditions the daemon reasons about.
// Every raw client state maps to exactly one of these values; anything the
// parser does not recognize becomes StateUnknown rather than leaking the raw
// string upward.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateSeeding     State = "seeding"
	StateStalled     State = "stalled"
	StateErrored     State = "errored"
	StatePaused      State = "paused"
	StateChecking    State = "checking"
	StateUnknown     State = "unknown"
)

// Completed reports whether the state means the payload is fully on disk.
func (s State) Completed() bool {
	return s == StateSeeding
}

// NeedsIntervention reports whether the item has stopped making progress and
// should be force-resumed. Stalled and errored items both land here: the
// client exposes no reliable way to tell a recoverable stall from a
// recoverable error, and the remedy is the same.
func (s State) NeedsIntervention() bool {
	return s == StateStalled || s == StateErrored
}

// ParseState maps a raw client state string onto the closed enum. Raw states
// that mention both a stall and an error classify as errored, the more severe
// of the two.
func ParseState(raw string) State {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return StateUnknown
	}

	hasError := strings.Contains(normalized, "error") || normalized == "missingfiles"
	if hasError {
		return StateErrored
	}
	if strings.Contains(normalized, "stalled") {
		// A stalled upload is a finished payload with no takers, not a
		// stuck download.
		if strings.HasSuffix(normalized, "up") {
			return StateSeeding
		}
		return StateStalled
	}

	switch normalized {
	case "uploading", "forcedup", "checkingup", "queuedup", "seeding":
		return StateSeeding
	case "pausedup", "stoppedup":
		// Finished but paused: the payload is complete.
		return StateSeeding
	case "downloading", "forceddl", "metadl", "allocating":
		return StateDownloading
	case "pauseddl", "stoppeddl", "paused":
		return StatePaused
	case "queueddl", "queued":
		return StateQueued
	case "checkingdl", "checkingresumedata", "moving":
		return StateChecking
	}
	return StateUnknown
}
