// Package quality scores candidate releases and decides acceptance,
// rejection, and replacement for works that may already have an accepted
// acquisition.
package quality
