// Package vip makes the once-daily premium renewal decision. The decision
// tree is evaluated strictly in order: ratio emergency blocks any spend,
// a distant expiry skips the run, a short point balance blocks, and only
// then does the planner buy. Every run also re-scrapes category promo rules
// and promotes wishlist entries that became free or affordable.
package vip
