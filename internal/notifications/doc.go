// Package notifications delivers control-loop events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. The Service methods cover the daemon's major milestones (ratio
// emergency toggles, VIP decisions, integrity failures, replacements) so
// loops can emit consistent messages without duplicating HTTP glue.
//
// Extend this package if you need alternative transports; all loop code
// depends only on the simple Service interface.
package notifications
