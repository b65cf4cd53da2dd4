// Package lifecycle polls the transfer client, diffs observations against
// the previous poll, and drives the completion pipeline: verify, hand to
// metadata processing, settle. It also recovers stalled items and steers
// the seed/download slot allocation.
//
// The previous-observation map is the only in-memory state and is
// disposable: completion handling checks the acquisition's persisted status
// first, so replayed observations after a restart are safe no-ops.
package lifecycle
