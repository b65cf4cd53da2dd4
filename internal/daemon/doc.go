// Package daemon wires the store and the workflow manager into a resident
// process with single-instance locking.
package daemon
