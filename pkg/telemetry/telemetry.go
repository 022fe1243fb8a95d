// Package telemetry gates product analytics for a helpdesk site.
//
// A Gate fetches the site's telemetry settings once, decides whether
// analytics are allowed, and if so initializes the injected analytics
// client exactly once. Every operation the host application calls
// (Capture, RecordSession, StopSession) goes through the same check and
// silently does nothing when telemetry is off. Nothing in this package
// returns an error to the host for a guarded operation: telemetry must
// never break the application it observes.
//
// Files in this package:
// - gate.go: the Gate, its state and guarded operations
// - analytics.go: the analytics client contract and its init config
// - logger.go: "[Telemetry]" prefixed logging
// - context.go: carrying a Gate through a context
// - env.go: process-level kill switch and site naming
package telemetry
