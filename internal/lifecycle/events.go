package lifecycle

import (
	"time"

	"seedkeeper/internal/transfer"
)

// CompletionEvent records one observed transition into a completed state.
type CompletionEvent struct {
	Handle     string
	Name       string
	From       transfer.State
	To         transfer.State
	ObservedAt time.Time
}

// detectCompletions diffs the current observations against the previous
// poll. An item produces exactly one event per transition into a completed
// state; an item first seen already completed (for example after a process
// restart) also produces an event, which the idempotent handler will no-op
// if the acquisition was already processed.
func detectCompletions(previous map[string]transfer.State, items []transfer.Item, now time.Time) []CompletionEvent {
	var events []CompletionEvent
	for _, item := range items {
		if !item.State.Completed() {
			continue
		}
		prev, seen := previous[item.Handle]
		if seen && prev.Completed() {
			continue
		}
		from := prev
		if !seen {
			from = transfer.StateUnknown
		}
		events = append(events, CompletionEvent{
			Handle:     item.Handle,
			Name:       item.Name,
			From:       from,
			To:         item.State,
			ObservedAt: now,
		})
	}
	return events
}
