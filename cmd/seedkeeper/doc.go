// Command seedkeeper is the operator CLI. It reads the daemon's store
// directly, so most commands work whether or not seedkeeperd is running.
package main
