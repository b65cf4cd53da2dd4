// Package download holds the acquisition data model and the SQLite store
// that every control loop coordinates through: acquisitions, ratio
// snapshots, the emergency singleton, VIP state, the wishlist, and the
// audit log.
package download
