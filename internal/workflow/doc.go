// Package workflow schedules the daemon's control loops: the periodic ratio
// check, the lifecycle poll, and the once-daily VIP plan. Each loop is
// serial with itself, logs per-iteration errors, and keeps running until the
// manager is stopped.
package workflow
