// Package transfer talks to the external transfer client over its WebAPI.
// Raw client states are parsed into a closed State enum at this boundary so
// the rest of the daemon never handles free-form state strings.
package transfer
