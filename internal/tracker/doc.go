// Package tracker wraps the private tracker's JSON API: account statistics,
// category rules, promotional events, release search, and premium renewal.
package tracker
